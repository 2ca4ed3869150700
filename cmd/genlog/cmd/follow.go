// Package cmd 提供 genlog 命令行工具的所有子命令实现。
// 本文件实现 follow 命令，通过 WebSocket 跟随新追加的记录。
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Follow newly appended generation logs",
	Long: `Stream generation logs as they are appended (WebSocket).

Examples:
  # Follow until Ctrl+C
  genlog follow

  # Stop after 5 records
  genlog follow --count 5 -o json`,
	Args: cobra.NoArgs,
	RunE: runFollow,
}

// followCount 大于 0 时收到指定条数后退出
var followCount int

func init() {
	rootCmd.AddCommand(followCmd)
	followCmd.Flags().IntVarP(&followCount, "count", "c", 0, "Exit after receiving N records")
}

func runFollow(cmd *cobra.Command, args []string) error {
	client := NewClient()
	wsURL, err := buildWebSocketURL(client.baseURL, "/logs/stream")
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect log stream: %w", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	printer := NewPrinter(cmd.OutOrStdout())
	if printer.format == "table" {
		fmt.Fprintln(cmd.ErrOrStderr(), "Following generation logs (Ctrl+C to stop)...")
	}

	received := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// 用户中断视为正常退出
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("log stream closed: %w", err)
		}

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if err := printer.PrintStreamMessage(&msg); err != nil {
			return err
		}

		received++
		if followCount > 0 && received >= followCount {
			stop()
			return nil
		}
	}
}

func buildWebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme: %s", u.Scheme)
	}

	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
