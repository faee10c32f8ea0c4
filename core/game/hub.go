package game

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"SquizFM/logger"
	"SquizFM/store"

	"github.com/gorilla/websocket"
)

// Client 一条 WebSocket 连接：主持端大屏或玩家手机端
type Client struct {
	Hub      *GameHub
	Conn     *websocket.Conn
	Send     chan []byte
	GameID   string
	PlayerID string // 主持端为空
	Role     string // screen / controller
}

// GameHub 游戏 WebSocket 管理中心。
// 订阅共享存储的变更事件，任何会话状态变化都会把
// 刷新后的快照推给这局游戏的所有连接。
type GameHub struct {
	manager *SessionManager

	// 游戏 -> 客户端集合
	games map[string]map[*Client]bool

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 存储变更通知
	notify chan store.Event

	// 回合/曲目ID到游戏ID的反查表，随每次快照刷新维护
	rounds map[string]string
	tracks map[string]string

	mu sync.RWMutex

	unsub store.UnsubscribeFunc
	done  chan struct{}
}

// NewGameHub 创建游戏 Hub
func NewGameHub(manager *SessionManager) *GameHub {
	return &GameHub{
		manager:    manager,
		games:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		notify:     make(chan store.Event, 256),
		rounds:     make(map[string]string),
		tracks:     make(map[string]string),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *GameHub) Run() {
	h.unsub = h.manager.WatchPath("", func(e store.Event) {
		select {
		case h.notify <- e:
		default:
			// 通知队列满时丢弃。后续事件会再触发刷新。
		}
	})

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
			h.syncGame(client.GameID)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.notify:
			if gameID := h.resolveGame(event.Path); gameID != "" {
				h.syncGame(gameID)
			}

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *GameHub) Stop() {
	if h.unsub != nil {
		h.unsub()
	}
	close(h.done)
}

// resolveGame 从文档路径解析所属游戏，非本 Hub 关注的路径返回空串
func (h *GameHub) resolveGame(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "games", "games-players", "games-rounds", "games-used":
		return parts[1]
	case "rounds-tracks":
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.rounds[parts[1]]
	case "tracks-players":
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.tracks[parts[1]]
	}
	return ""
}

// syncGame 把刷新后的会话快照推给这局游戏的所有连接
func (h *GameHub) syncGame(gameID string) {
	h.mu.RLock()
	empty := len(h.games[gameID]) == 0
	h.mu.RUnlock()
	if empty {
		return
	}

	ctx := context.Background()
	view, err := h.manager.LoadSessionView(ctx, gameID)
	if err != nil {
		logger.Warn("快照装载失败，跳过本次推送",
			logger.String("gameId", gameID), logger.ErrorField(err))
		return
	}
	scores, err := h.manager.AggregateScores(ctx, gameID)
	if err != nil {
		logger.Warn("得分汇总失败，跳过本次推送",
			logger.String("gameId", gameID), logger.ErrorField(err))
		return
	}
	now, err := h.manager.Now(ctx)
	if err != nil {
		now = time.Now().UnixMilli()
	}

	// 维护反查表，后续曲目/作答事件才找得到所属游戏
	h.mu.Lock()
	if view.Round != nil {
		h.rounds[view.Round.ID] = gameID
	}
	if view.Track != nil {
		h.tracks[view.Track.ID] = gameID
	}
	h.mu.Unlock()

	data := &SyncData{
		Game:    view.Game,
		Rounds:  view.Rounds,
		Round:   view.Round,
		Track:   view.Track,
		Players: view.Players,
		Guesses: view.Guesses,
		Scores:  scores,
		Now:     now,
	}

	screenPayload, err := marshalSync(gameID, data)
	if err != nil {
		logger.Error("快照序列化失败", logger.String("gameId", gameID), logger.ErrorField(err))
		return
	}
	controllerPayload, err := marshalSync(gameID, data.redactForController())
	if err != nil {
		logger.Error("快照序列化失败", logger.String("gameId", gameID), logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	clientList := make([]*Client, 0, len(h.games[gameID]))
	for client := range h.games[gameID] {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		payload := controllerPayload
		if client.Role == RoleScreen {
			payload = screenPayload
		}
		select {
		case client.Send <- payload:
		default:
			// 发送缓冲区满，注销客户端
			h.unregisterClient(client)
		}
	}
}

func marshalSync(gameID string, data *SyncData) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&WSMessage{
		Type:      MsgTypeSync,
		GameID:    gameID,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
}

// registerClient 注册客户端
func (h *GameHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.games[client.GameID] == nil {
		h.games[client.GameID] = make(map[*Client]bool)
	}
	h.games[client.GameID][client] = true

	logger.Info("client registered",
		logger.String("game", client.GameID),
		logger.String("player", client.PlayerID),
		logger.String("role", client.Role))
}

// unregisterClient 注销客户端
func (h *GameHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.games[client.GameID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(h.games, client.GameID)
			}
		}
	}

	logger.Info("client unregistered",
		logger.String("game", client.GameID),
		logger.String("player", client.PlayerID))
}

// cleanup 清理所有连接
func (h *GameHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.games {
		for client := range clients {
			close(client.Send)
		}
	}
	h.games = make(map[string]map[*Client]bool)
}

// Register 注册客户端
func (h *GameHub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *GameHub) Unregister(client *Client) {
	h.unregister <- client
}

// GameClientCount 一局游戏当前的连接数
func (h *GameHub) GameClientCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096) // 4KB
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("game", c.GameID),
						logger.String("player", c.PlayerID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("invalid message format",
					logger.ErrorField(err),
					logger.String("game", c.GameID))
				continue
			}

			// 处理心跳
			if msg.Type == MsgTypePing {
				pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
				continue
			}

			handler(ctx, c, &msg)
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msg *WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return nil // 缓冲区满，丢弃消息
	}
}

// SendError 发送错误消息给客户端
func (c *Client) SendError(message string) {
	raw, err := json.Marshal(&ErrorData{Message: message})
	if err != nil {
		return
	}
	_ = c.SendMessage(&WSMessage{Type: MsgTypeError, GameID: c.GameID, Data: raw})
}
