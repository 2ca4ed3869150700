// Package cmd 提供 genlog 命令行工具的所有子命令实现。
// 本文件实现 status 命令，显示服务信息与健康状态。
package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Show the status of the generation log server.

Displays:
  - Server name and state
  - Health check result
  - Whether the log store is readable

Examples:
  genlog status
  genlog status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := NewClient().GetStatus()
	if err != nil {
		return err
	}
	return NewPrinter(cmd.OutOrStdout()).PrintStatus(status)
}
