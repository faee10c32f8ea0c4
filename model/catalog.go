package model

import "strings"

// 曲库API返回的原始记录。字段名跟随上游接口。

// CatalogCategory 曲库分类
type CatalogCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogPlaylist 曲库歌单
type CatalogPlaylist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []CatalogImage `json:"images,omitempty"`
}

// CatalogImage 封面图
type CatalogImage struct {
	URL string `json:"url"`
}

// CatalogArtist 艺术家
type CatalogArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogAlbum 专辑
type CatalogAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []CatalogImage `json:"images,omitempty"`
}

// CatalogTrack 曲库曲目，选曲与干扰项装配的候选单元
type CatalogTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Popularity int             `json:"popularity"` // 0-100
	Artists    []CatalogArtist `json:"artists"`
	Album      CatalogAlbum    `json:"album"`
	PreviewURL string          `json:"preview_url"`
}

// ArtistNames 艺术家名称按 ", " 拼接后的展示串
func (t *CatalogTrack) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// ToChoice 裁剪为呈现给玩家的选项
func (t *CatalogTrack) ToChoice() Choice {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	album := ChoiceAlbum{ID: t.Album.ID, Name: t.Album.Name}
	if len(t.Album.Images) > 0 {
		album.Image = t.Album.Images[0].URL
	}
	return Choice{
		ID:      t.ID,
		Name:    t.Name,
		Artists: names,
		Album:   album,
	}
}
