// Package main 是 genlog 命令行工具的入口点。
// genlog 用于查看和提交生成日志服务中的记录。
package main

import (
	"os"

	"github.com/oriys/genlog/cmd/genlog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
