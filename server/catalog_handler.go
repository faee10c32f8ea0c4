package server

import (
	"net/http"

	"SquizFM/core/catalog"

	"github.com/gorilla/mux"
)

// CatalogHandler 曲库浏览相关的HTTP处理器
type CatalogHandler struct {
	client *catalog.Client
}

// NewCatalogHandler 创建曲库处理器
func NewCatalogHandler(client *catalog.Client) *CatalogHandler {
	return &CatalogHandler{client: client}
}

// CategoriesHandler 返回可选的歌单分类
func (h *CatalogHandler) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := h.client.LoadCategories(r.Context())
	if err != nil {
		http.Error(w, "Failed to load categories", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
	})
}

// CategoryPlaylistsHandler 返回某分类下的歌单
func (h *CatalogHandler) CategoryPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	categoryID := mux.Vars(r)["id"]
	playlists, err := h.client.LoadCategoryPlaylists(r.Context(), categoryID)
	if err != nil {
		http.Error(w, "Failed to load playlists", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"playlists": playlists,
	})
}

// PlaylistHandler 返回单个歌单的元信息
func (h *CatalogHandler) PlaylistHandler(w http.ResponseWriter, r *http.Request) {
	playlistID := mux.Vars(r)["id"]
	playlist, err := h.client.LoadPlaylist(r.Context(), playlistID)
	if err != nil {
		http.Error(w, "Failed to load playlist", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}
