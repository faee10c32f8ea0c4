package catalog

import (
	"context"
	"fmt"
	"net/url"

	"SquizFM/logger"
	"SquizFM/model"
)

// LoadCategories 获取曲库分类列表
func (c *Client) LoadCategories(ctx context.Context) ([]model.CatalogCategory, error) {
	path := fmt.Sprintf("/browse/categories?country=%s&limit=50", url.QueryEscape(c.country))

	var result struct {
		Categories struct {
			Items []model.CatalogCategory `json:"items"`
		} `json:"categories"`
	}
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("获取分类列表失败: %w", err)
	}

	logger.Debug("获取曲库分类成功", logger.Int("count", len(result.Categories.Items)))
	return result.Categories.Items, nil
}

// LoadCategoryPlaylists 获取某分类下的歌单列表
func (c *Client) LoadCategoryPlaylists(ctx context.Context, categoryID string) ([]model.CatalogPlaylist, error) {
	path := fmt.Sprintf("/browse/categories/%s/playlists?country=%s&limit=50",
		url.PathEscape(categoryID), url.QueryEscape(c.country))

	var result struct {
		Playlists struct {
			Items []model.CatalogPlaylist `json:"items"`
		} `json:"playlists"`
	}
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("获取分类歌单失败 (分类: %s): %w", categoryID, err)
	}

	// 上游偶尔会在列表里混入空项
	playlists := make([]model.CatalogPlaylist, 0, len(result.Playlists.Items))
	for _, p := range result.Playlists.Items {
		if p.ID != "" {
			playlists = append(playlists, p)
		}
	}

	logger.Debug("获取分类歌单成功",
		logger.String("categoryId", categoryID),
		logger.Int("count", len(playlists)))
	return playlists, nil
}

// LoadPlaylist 获取单个歌单的基本信息
func (c *Client) LoadPlaylist(ctx context.Context, playlistID string) (*model.CatalogPlaylist, error) {
	path := fmt.Sprintf("/playlists/%s?fields=id,name,images", url.PathEscape(playlistID))

	var playlist model.CatalogPlaylist
	if err := c.getJSON(ctx, path, &playlist); err != nil {
		return nil, fmt.Errorf("获取歌单失败 (歌单: %s): %w", playlistID, err)
	}
	return &playlist, nil
}
