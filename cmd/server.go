package cmd

import (
	"SquizFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动SquizFM服务器",
	Long:  `启动SquizFM猜歌游戏的HTTP服务器，提供API服务和实时同步通道`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
