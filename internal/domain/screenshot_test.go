package domain

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

// TestSanitizeTimestamp 测试时间戳到文件名标记的转换。
func TestSanitizeTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-05-01T12:30:45.123Z", "2024-05-01_12-30-45"},
		{"2024-05-01T12:30:45", "2024-05-01_12-30-45"},
		{"short", "short"},
		{"", ""},
		{"TTTT", "____"},
		{"2024-05-01T12:30:45.999999+00:00", "2024-05-01_12-30-45"},
	}
	for _, tt := range tests {
		if got := SanitizeTimestamp(tt.in); got != tt.want {
			t.Errorf("SanitizeTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeScreenshot(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0xff}
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "raw base64", value: encoded},
		{name: "data uri", value: "data:image/png;base64," + encoded},
		{name: "wrapped lines", value: encoded[:4] + "\n" + encoded[4:]},
		{name: "malformed", value: "data:image/png;base64,@@not-base64@@", wantErr: true},
		{name: "bad padding", value: "QUJDRA=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeScreenshot(tt.value)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidScreenshot) {
					t.Fatalf("DecodeScreenshot() error = %v, want ErrInvalidScreenshot", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeScreenshot() error = %v", err)
			}
			if !bytes.Equal(got, raw) {
				t.Errorf("DecodeScreenshot() = %x, want %x", got, raw)
			}
		})
	}
}

// TestDecodeScreenshot_DataURIRoundTrip 验证 data URI 解码后重新编码得到原始载荷。
func TestDecodeScreenshot_DataURIRoundTrip(t *testing.T) {
	payload := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
	got, err := DecodeScreenshot("data:image/png;base64," + payload)
	if err != nil {
		t.Fatalf("DecodeScreenshot() error = %v", err)
	}
	if back := base64.StdEncoding.EncodeToString(got); back != payload {
		t.Errorf("round trip = %s, want %s", back, payload)
	}
}
