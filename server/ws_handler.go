package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"SquizFM/core/auth"
	"SquizFM/core/game"
	"SquizFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler 游戏实时同步的 WebSocket 处理器
type WSHandler struct {
	manager *game.SessionManager
	hub     *game.GameHub
	driver  *game.Driver
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(manager *game.SessionManager, hub *game.GameHub, driver *game.Driver) *WSHandler {
	return &WSHandler{manager: manager, hub: hub, driver: driver}
}

// ServeWS 建立 WebSocket 连接。
// 令牌通过 token 查询参数传递，主持端连接为大屏角色，玩家连接为手柄角色。
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]

	claims, err := auth.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	if claims.GameID != gameID {
		http.Error(w, "Token not valid for this game", http.StatusForbidden)
		return
	}

	if _, err := h.manager.GetGame(r.Context(), gameID); err != nil {
		writeGameError(w, err)
		return
	}

	role := game.RoleController
	if claims.Role == auth.RoleHost {
		role = game.RoleScreen
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &game.Client{
		Hub:      h.hub,
		Conn:     conn,
		Send:     make(chan []byte, 64),
		GameID:   gameID,
		PlayerID: claims.PlayerID,
		Role:     role,
	}

	h.hub.Register(client)
	h.setPresence(context.Background(), client, true)

	// 服务端计时可能因进程重启而丢失，重连时补上
	h.driver.Watch(gameID)

	go client.WritePump()
	go func() {
		client.ReadPump(context.Background(), h.handleMessage)
		h.setPresence(context.Background(), client, false)
	}()
}

// setPresence 按连接角色更新在场标记
func (h *WSHandler) setPresence(ctx context.Context, client *game.Client, present bool) {
	var err error
	if client.Role == game.RoleScreen {
		err = h.manager.SetGamePresence(ctx, client.GameID, present)
	} else {
		err = h.manager.SetPlayerPresence(ctx, client.GameID, client.PlayerID, present)
	}
	if err != nil && !errors.Is(err, game.ErrGameNotFound) {
		logger.Warn("更新在场标记失败",
			logger.String("game", client.GameID),
			logger.String("player", client.PlayerID),
			logger.ErrorField(err))
	}
}

// handleMessage 按角色分发客户端消息
func (h *WSHandler) handleMessage(ctx context.Context, client *game.Client, msg *game.WSMessage) {
	var err error

	switch msg.Type {
	case game.MsgTypeGuess:
		if client.Role != game.RoleController {
			client.SendError("guess requires a player connection")
			return
		}
		var data game.GuessData
		if jsonErr := json.Unmarshal(msg.Data, &data); jsonErr != nil || data.ChoiceID == "" {
			client.SendError("choiceId is required")
			return
		}
		_, err = h.manager.SubmitGuess(ctx, client.GameID, client.PlayerID, data.ChoiceID)

	case game.MsgTypePresence:
		var data game.PresenceData
		if jsonErr := json.Unmarshal(msg.Data, &data); jsonErr != nil {
			client.SendError("invalid presence payload")
			return
		}
		h.setPresence(ctx, client, data.Present)
		return

	case game.MsgTypeAdvance:
		if !h.requireScreen(client) {
			return
		}
		err = h.manager.Advance(ctx, client.GameID)

	case game.MsgTypeStartRound:
		if !h.requireScreen(client) {
			return
		}
		var data game.StartRoundData
		if jsonErr := json.Unmarshal(msg.Data, &data); jsonErr != nil || data.PlaylistID == "" {
			client.SendError("playlistId is required")
			return
		}
		_, err = h.manager.StartRound(ctx, client.GameID, data.PlaylistID)

	case game.MsgTypePause:
		if !h.requireScreen(client) {
			return
		}
		err = h.manager.PauseGame(ctx, client.GameID)

	case game.MsgTypeResume:
		if !h.requireScreen(client) {
			return
		}
		err = h.manager.ResumeGame(ctx, client.GameID)

	case game.MsgTypeRestartTrack:
		if !h.requireScreen(client) {
			return
		}
		err = h.restartCurrentTrack(ctx, client.GameID)

	default:
		client.SendError("unknown message type")
		return
	}

	if err != nil {
		client.SendError(err.Error())
	}
}

// requireScreen 主持端专属消息的角色校验
func (h *WSHandler) requireScreen(client *game.Client) bool {
	if client.Role != game.RoleScreen {
		client.SendError("host connection required")
		return false
	}
	return true
}

// restartCurrentTrack 重播当前曲目
func (h *WSHandler) restartCurrentTrack(ctx context.Context, gameID string) error {
	view, err := h.manager.LoadSessionView(ctx, gameID)
	if err != nil {
		return err
	}
	if view.Round == nil || view.Track == nil {
		return game.ErrNoOpenTrack
	}
	return h.manager.RestartTrack(ctx, gameID, view.Round.ID, view.Track.ID)
}
