package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"SquizFM/core/auth"
	"SquizFM/core/game"
	"SquizFM/logger"

	"github.com/gorilla/mux"
)

// GameHandler 游戏会话相关的HTTP处理器
type GameHandler struct {
	manager *game.SessionManager
	driver  *game.Driver
}

// NewGameHandler 创建游戏处理器
func NewGameHandler(manager *game.SessionManager, driver *game.Driver) *GameHandler {
	return &GameHandler{manager: manager, driver: driver}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

// writeGameError 把会话层错误映射到HTTP状态码
func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, game.ErrNameTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, game.ErrGameCompleted),
		errors.Is(err, game.ErrGamePaused),
		errors.Is(err, game.ErrRoundOpen),
		errors.Is(err, game.ErrTrackOpen),
		errors.Is(err, game.ErrNoOpenRound),
		errors.Is(err, game.ErrNoOpenTrack),
		errors.Is(err, game.ErrTrackCompleted),
		errors.Is(err, game.ErrAttemptsExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ========== 认证中间件 ==========

type contextKey string

const claimsContextKey contextKey = "claims"

// parseAuth 解析 Authorization 头里的会话令牌
func parseAuth(r *http.Request) (*auth.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errors.New("authorization header is required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.New("invalid authorization header format")
	}
	return auth.ParseToken(parts[1])
}

// GameAuth 校验令牌属于路径里的游戏，主持端和玩家端均可
func (h *GameHandler) GameAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := parseAuth(r)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if claims.GameID != mux.Vars(r)["id"] {
			http.Error(w, "Token not valid for this game", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// HostAuth 只放行主持端令牌
func (h *GameHandler) HostAuth(next http.HandlerFunc) http.HandlerFunc {
	return h.GameAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != auth.RoleHost {
			http.Error(w, "Host token required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PlayerAuth 只放行玩家端令牌
func (h *GameHandler) PlayerAuth(next http.HandlerFunc) http.HandlerFunc {
	return h.GameAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != auth.RolePlayer || claims.PlayerID == "" {
			http.Error(w, "Player token required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// claimsFromContext 从请求上下文取出令牌声明
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims
}

// ========== 游戏生命周期 ==========

// CreateGameHandler 创建一局新游戏，返回游戏代码和主持端令牌
func (h *GameHandler) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := h.manager.StartGame(r.Context())
	if err != nil {
		writeGameError(w, err)
		return
	}

	token, err := auth.GenerateToken(gameID, "", auth.RoleHost)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	// 服务端计时从创建起接管这局游戏
	h.driver.Watch(gameID)

	rules := h.manager.Rules()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"gameId": gameID,
		"token":  token,
		"rules": map[string]interface{}{
			"roundsLimit":      rules.RoundsLimit,
			"tracksLimit":      rules.TracksLimit,
			"choicesTimeoutMs": rules.ChoicesTimeout.Milliseconds(),
			"choicesStartupMs": rules.ChoicesStartup.Milliseconds(),
			"resultsTimeoutMs": rules.ResultsTimeout.Milliseconds(),
			"guessAttempts":    rules.GuessAttempts,
		},
	})
}

// GetGameHandler 返回完整会话快照和汇总得分
func (h *GameHandler) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	view, err := h.manager.LoadSessionView(r.Context(), gameID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	scores, err := h.manager.AggregateScores(r.Context(), gameID)
	if err != nil {
		writeGameError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"view":   view,
		"scores": scores,
	})
}

// JoinGameHandler 玩家加入游戏，返回玩家信息和玩家端令牌
func (h *GameHandler) JoinGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	player, err := h.manager.JoinGame(r.Context(), gameID, req.Name)
	if err != nil {
		writeGameError(w, err)
		return
	}

	token, err := auth.GenerateToken(gameID, player.ID, auth.RolePlayer)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"player": player,
		"token":  token,
	})
}

// RemoveGameHandler 删除游戏及其全部数据
func (h *GameHandler) RemoveGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if err := h.manager.RemoveGame(r.Context(), gameID); err != nil {
		writeGameError(w, err)
		return
	}
	h.driver.Stop(gameID)
	w.WriteHeader(http.StatusNoContent)
}

// StartRoundHandler 主持人选定歌单开启新回合
func (h *GameHandler) StartRoundHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	var req struct {
		PlaylistID string `json:"playlistId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlaylistID == "" {
		http.Error(w, "playlistId is required", http.StatusBadRequest)
		return
	}

	round, err := h.manager.StartRound(r.Context(), gameID, req.PlaylistID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// AdvanceHandler 主持人手动推进游戏进程
func (h *GameHandler) AdvanceHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if err := h.manager.Advance(r.Context(), gameID); err != nil {
		writeGameError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PauseHandler 暂停游戏
func (h *GameHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if err := h.manager.PauseGame(r.Context(), gameID); err != nil {
		writeGameError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeHandler 恢复游戏
func (h *GameHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if err := h.manager.ResumeGame(r.Context(), gameID); err != nil {
		writeGameError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EndGameHandler 提前结束游戏
func (h *GameHandler) EndGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if err := h.manager.EndGame(r.Context(), gameID); err != nil {
		writeGameError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestartGameHandler 用同一游戏代码重开一局
func (h *GameHandler) RestartGameHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if err := h.manager.RestartGame(r.Context(), gameID); err != nil {
		writeGameError(w, err)
		return
	}
	h.driver.Watch(gameID)
	w.WriteHeader(http.StatusNoContent)
}

// RestartTrackHandler 重播当前曲目
func (h *GameHandler) RestartTrackHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	view, err := h.manager.LoadSessionView(r.Context(), gameID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	if view.Round == nil || view.Track == nil {
		http.Error(w, game.ErrNoOpenTrack.Error(), http.StatusConflict)
		return
	}
	if err := h.manager.RestartTrack(r.Context(), gameID, view.Round.ID, view.Track.ID); err != nil {
		writeGameError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitGuessHandler 玩家对当前曲目作答
func (h *GameHandler) SubmitGuessHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	claims := claimsFromContext(r.Context())

	var req struct {
		ChoiceID string `json:"choiceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChoiceID == "" {
		http.Error(w, "choiceId is required", http.StatusBadRequest)
		return
	}

	guess, err := h.manager.SubmitGuess(r.Context(), gameID, claims.PlayerID, req.ChoiceID)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, guess)
}

// PresenceHandler 前台/后台状态上报。
// 主持端令牌更新游戏的在场标记，玩家令牌更新自己的。
func (h *GameHandler) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	claims := claimsFromContext(r.Context())

	var req struct {
		Present bool `json:"present"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	if claims.Role == auth.RoleHost {
		err = h.manager.SetGamePresence(r.Context(), gameID, req.Present)
	} else {
		err = h.manager.SetPlayerPresence(r.Context(), gameID, claims.PlayerID, req.Present)
	}
	if err != nil {
		writeGameError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
