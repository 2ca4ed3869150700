// Package cmd 提供 genlog 命令行工具的所有子命令实现。
// 本文件实现 list 命令，列出最近的生成日志。
package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent generation logs",
	Long: `List the most recent generation logs, oldest first.

Examples:
  # Show the last 100 logs (server default)
  genlog list

  # Show the last 10 logs
  genlog list --limit 10

  # Output as YAML
  genlog list -o yaml`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// listLimit 为负数时使用服务端默认值
var listLimit int

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", -1, "Number of logs to show (default: server default)")
}

func runList(cmd *cobra.Command, args []string) error {
	list, err := NewClient().ListLogs(listLimit)
	if err != nil {
		return err
	}
	return NewPrinter(cmd.OutOrStdout()).PrintLogs(list)
}
