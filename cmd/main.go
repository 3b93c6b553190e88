package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wecomCmder",
	Short: "企业微信指令回调服务",
	Long:  "接收企业微信应用回调，执行菜单与文本指令，并提供管理后台接口。",
	// 不带子命令时直接启动服务
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
