// Package cmd 包含 genlog CLI 工具的所有命令实现
// 使用 cobra 框架构建命令行接口
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 全局命令行标志变量
var (
	cfgFile   string // 配置文件路径
	apiURL    string // API 服务器地址
	outputFmt string // 输出格式（table/json/yaml）
)

// rootCmd 是 CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "genlog",
	Short: "genlog - generation log CLI",
	Long: `genlog 是生成日志服务的命令行客户端。

使用示例:
  # 查看服务状态
  genlog status

  # 查看最近 20 条记录
  genlog list --limit 20

  # 提交一条记录并附带截图
  genlog submit --file body.json --before before.png --after after.png

  # 实时跟随新记录
  genlog follow`,
	SilenceUsage: true,
}

// Execute 执行根命令，由 main 包调用。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认为 $HOME/.genlog.yaml）")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "u", "http://localhost:8000", "API 服务器地址")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "输出格式（table、json、yaml）")

	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig 按优先级加载配置：命令行标志 > 环境变量 > 配置文件
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".genlog")
	}

	// 环境变量格式：GENLOG_<KEY>，如 GENLOG_API_URL
	viper.SetEnvPrefix("GENLOG")
	viper.AutomaticEnv()

	// 配置文件不存在时忽略
	_ = viper.ReadInConfig()
}
