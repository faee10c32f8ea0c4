package catalog

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"SquizFM/logger"
	"SquizFM/model"
)

// maxLabelLen 选项文案（曲名、艺术家串）的最大长度，
// 超出的曲目在手机屏幕上排版会溢出，直接排除。
const maxLabelLen = 24

// DecoyEligible 判断曲目能否作为干扰项：只看文案长度，不要求试听地址
func DecoyEligible(t *model.CatalogTrack) bool {
	if t == nil || t.ID == "" {
		return false
	}
	if len(t.Name) >= maxLabelLen {
		return false
	}
	if len(t.ArtistNames()) >= maxLabelLen {
		return false
	}
	return true
}

// Eligible 判断曲目能否作为题目使用，题目还必须有试听地址
func Eligible(t *model.CatalogTrack) bool {
	return DecoyEligible(t) && t.PreviewURL != ""
}

// LoadPlaylistTracks 获取歌单全部可出题的曲目，按热度降序排列。
// 会翻页取完整个歌单，并过滤掉无法使用的曲目。
func (c *Client) LoadPlaylistTracks(ctx context.Context, playlistID string) ([]model.CatalogTrack, error) {
	return c.loadTracks(ctx, playlistID, Eligible)
}

// LoadDecoyCandidates 获取歌单中可作干扰项的曲目，
// 包含没有试听地址的那些。
func (c *Client) LoadDecoyCandidates(ctx context.Context, playlistID string) ([]model.CatalogTrack, error) {
	return c.loadTracks(ctx, playlistID, DecoyEligible)
}

func (c *Client) loadTracks(ctx context.Context, playlistID string, keep func(*model.CatalogTrack) bool) ([]model.CatalogTrack, error) {
	var tracks []model.CatalogTrack
	seen := make(map[string]bool)

	path := fmt.Sprintf("/playlists/%s/tracks?market=%s&limit=100",
		url.PathEscape(playlistID), url.QueryEscape(c.country))

	for path != "" {
		var page struct {
			Items []struct {
				Track *model.CatalogTrack `json:"track"`
			} `json:"items"`
			Next string `json:"next"`
		}
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("获取歌单曲目失败 (歌单: %s): %w", playlistID, err)
		}

		for _, item := range page.Items {
			t := item.Track
			if !keep(t) {
				continue
			}
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			tracks = append(tracks, *t)
		}

		path = nextPath(page.Next, c.baseURL)
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].Popularity > tracks[j].Popularity
	})

	logger.Debug("获取歌单曲目成功",
		logger.String("playlistId", playlistID),
		logger.Int("count", len(tracks)))
	return tracks, nil
}

// nextPath 将上游返回的完整翻页URL转回相对路径
func nextPath(next, baseURL string) string {
	if next == "" {
		return ""
	}
	if strings.HasPrefix(next, baseURL) {
		return next[len(baseURL):]
	}
	// next 不在当前baseURL下时放弃翻页，避免请求打到未知地址
	logger.Warn("歌单翻页地址异常，停止翻页", logger.String("next", next))
	return ""
}
