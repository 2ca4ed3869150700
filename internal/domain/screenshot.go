package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// tokenLength 是文件名标记的最大长度（字符数）。
const tokenLength = 19

// timestampReplacer 将时间戳中不适合出现在文件名里的字符替换掉。
var timestampReplacer = strings.NewReplacer(":", "-", ".", "-", "T", "_")

// SanitizeTimestamp 从客户端时间戳派生文件名标记。
//
// 规则：将所有 ':' 与 '.' 替换为 '-'，所有 'T' 替换为 '_'，然后截取前 19 个字符。
// 例如 "2024-05-01T12:30:45.123Z" 得到 "2024-05-01_12-30-45"。
// 截断后相同的时间戳会得到相同标记，后写入的截图会覆盖先前的文件。
func SanitizeTimestamp(ts string) string {
	s := []rune(timestampReplacer.Replace(ts))
	if len(s) > tokenLength {
		s = s[:tokenLength]
	}
	return string(s)
}

// MediaFileName 返回槽位对应的媒体文件名，如 "<token>-before.png"。
func MediaFileName(token, slot string) string {
	return token + "-" + slot + ".png"
}

// DecodeScreenshot 将截图字符串解码为原始字节。
// 支持裸 base64 和 data URI（"<元数据>,<base64>"）两种形式：
// 存在逗号时取第一个逗号之后的全部内容。解码前会去除空白字符。
func DecodeScreenshot(value string) ([]byte, error) {
	payload := value
	if _, after, found := strings.Cut(value, ","); found {
		payload = after
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScreenshot, err)
	}
	return data, nil
}
