package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"SquizFM/config"
	"SquizFM/core/catalog"

	"github.com/spf13/cobra"
)

var (
	playlistID string
	categoryID string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "曲库命令行工具",
	Long:  `一个简单的曲库命令行工具，可以浏览歌单分类并检查歌单里的可用曲目`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		client := catalog.NewClient(cfg, nil)
		ctx := context.Background()

		// 没有参数时列出所有分类
		if playlistID == "" && categoryID == "" {
			categories, err := client.LoadCategories(ctx)
			if err != nil {
				log.Fatalf("获取分类失败: %v", err)
			}
			fmt.Printf("共 %d 个分类:\n", len(categories))
			for i, c := range categories {
				fmt.Printf("%d. %s [%s]\n", i+1, c.Name, c.ID)
			}
			return
		}

		if categoryID != "" {
			playlists, err := client.LoadCategoryPlaylists(ctx, categoryID)
			if err != nil {
				log.Fatalf("获取歌单失败: %v", err)
			}
			fmt.Printf("分类 %s 下共 %d 个歌单:\n", categoryID, len(playlists))
			for i, p := range playlists {
				fmt.Printf("%d. %s [%s]\n", i+1, p.Name, p.ID)
			}
			return
		}

		tracks, err := client.LoadPlaylistTracks(ctx, playlistID)
		if err != nil {
			log.Fatalf("获取歌单曲目失败: %v", err)
		}
		if len(tracks) == 0 {
			fmt.Println("歌单里没有可用于游戏的曲目")
			os.Exit(1)
		}

		fmt.Printf("歌单 %s 共 %d 首可用曲目:\n", playlistID, len(tracks))
		for i, t := range tracks {
			fmt.Printf("%d. %s - %s (热度 %d)\n", i+1, t.Name, t.ArtistNames(), t.Popularity)
		}
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	// 添加命令行参数
	catalogCmd.Flags().StringVarP(&playlistID, "playlist", "p", "", "要检查的歌单ID")
	catalogCmd.Flags().StringVarP(&categoryID, "category", "c", "", "要列出歌单的分类ID")
}
