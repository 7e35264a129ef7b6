package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version 当前版本号
const Version = "1.0.0"

var (
	cfgFile  string
	addr     string
	logLevel string
)

// rootCmd 是根命令，不带子命令时启动服务
var rootCmd = &cobra.Command{
	Use:   "token-manager",
	Short: "联邦站点 token 管理服务",
	Long: `token-manager 通过 Beam 代理向各站点下发 token 的创建、刷新、撤销和状态查询任务，
并根据站点回复维护本地的 token 记录。`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "token-manager version %s\n", Version)
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "监听地址，覆盖 server.address")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别，覆盖 log.level")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd, versionCmd)
}

// cmdArgs 命令行覆盖项，空值会被忽略
func cmdArgs() map[string]string {
	return map[string]string{
		"server.address": addr,
		"log.level":      logLevel,
	}
}
