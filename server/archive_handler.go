package server

import (
	"net/http"
	"strconv"

	"SquizFM/repository"

	"github.com/gorilla/mux"
)

// ArchiveHandler 历史对局归档相关的HTTP处理器
type ArchiveHandler struct {
	repo repository.ArchiveRepository
}

// NewArchiveHandler 创建归档处理器
func NewArchiveHandler(repo repository.ArchiveRepository) *ArchiveHandler {
	return &ArchiveHandler{repo: repo}
}

// limitParam parses the limit query parameter with a default and a cap.
func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// LeaderboardHandler 返回历史得分排行榜
func (h *ArchiveHandler) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 20, 100)
	entries, err := h.repo.Leaderboard(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// RecentGamesHandler 返回最近归档的对局
func (h *ArchiveHandler) RecentGamesHandler(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 10, 50)
	records, err := h.repo.RecentRecords(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to load recent games", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"games": records,
	})
}

// GameRecordHandler 按游戏代码查询归档
func (h *ArchiveHandler) GameRecordHandler(w http.ResponseWriter, r *http.Request) {
	gameCode := mux.Vars(r)["code"]
	record, err := h.repo.GetRecordByCode(r.Context(), gameCode)
	if err != nil {
		http.Error(w, "Failed to load game record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Game record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
