package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/game"
	"go.uber.org/zap"
)

// GameService 房间操作接口（由 game.Manager 实现）
type GameService interface {
	CreateSession(hostID, hostName string) (string, error)
	JoinSession(code, playerID, playerName string) error
	StartGame(code, requesterID string) error
	SendMessage(code, playerID, text string) error
	CastVote(code, voterID, targetID string) error
	ReturnToLobby(code, requesterID string) error
	Disconnect(code, playerID string) error
	Snapshot(code string) (*game.PublicSnapshot, error)
	PrivateSnapshot(code, playerID string) (*game.PrivateSnapshot, error)
}

// Options 连接参数
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 8192,
		SendBufferSize: 256,
	}
}

// Hub WebSocket连接管理中心
//
// Hub 实现 game.Notifier。推送在房间锁内执行，所以 Hub 持有自身锁时
// 不能调用 GameService。
type Hub struct {
	// 客户端连接池
	clients map[string]*Client
	// 房间码到客户端的映射
	rooms map[string]map[string]*Client
	mu    sync.RWMutex

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	games   GameService
	options Options
	logger  *zap.Logger
}

// NewHub 创建Hub
func NewHub(games GameService, options Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if options.WriteWait <= 0 {
		options.WriteWait = def.WriteWait
	}
	if options.PongWait <= 0 {
		options.PongWait = def.PongWait
	}
	if options.PingPeriod <= 0 || options.PingPeriod >= options.PongWait {
		options.PingPeriod = options.PongWait * 9 / 10
	}
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = def.MaxMessageSize
	}
	if options.SendBufferSize <= 0 {
		options.SendBufferSize = def.SendBufferSize
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		games:      games,
		options:    options,
		logger:     logger,
	}
}

// Run 运行Hub，ctx 取消后断开所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket Hub已停止")
			return
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID))

	// 发送连接成功消息，客户端ID即玩家ID
	client.send(MessageTypeConnected, "", &ConnectedData{PlayerID: client.ID})
}

// unregisterClient 注销客户端，已加入房间的玩家标记为断开
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	code := client.roomCode
	client.roomCode = ""
	h.unbindLocked(code, client.ID)
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("room_code", code))

	if code == "" {
		return
	}
	if err := h.games.Disconnect(code, client.ID); err != nil {
		h.logger.Debug("断开玩家失败",
			zap.String("client_id", client.ID),
			zap.String("room_code", code),
			zap.Error(err))
	}
}

// closeAll 关闭所有客户端发送通道
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
}

// bind 把客户端加入房间的推送列表
func (h *Hub) bind(code string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.roomCode = code
	members, ok := h.rooms[code]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[code] = members
	}
	members[client.ID] = client
}

// unbind 把客户端移出房间的推送列表
func (h *Hub) unbind(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(client.roomCode, client.ID)
	client.roomCode = ""
}

func (h *Hub) unbindLocked(code, clientID string) {
	if code == "" {
		return
	}
	members := h.rooms[code]
	delete(members, clientID)
	if len(members) == 0 {
		delete(h.rooms, code)
	}
}

// RoomOf 客户端所在房间
func (h *Hub) RoomOf(client *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.roomCode
}

// NotifyRoom 实现 game.Notifier：公开快照发给房间内所有连接，私有快照只发给本人
func (h *Hub) NotifyRoom(update *game.RoomUpdate) {
	public, err := encode(MessageTypeStateUpdate, update.RoomCode, update.Public)
	if err != nil {
		h.logger.Error("序列化房间状态失败",
			zap.String("room_code", update.RoomCode),
			zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.rooms[update.RoomCode] {
		h.trySend(client, public)

		priv, ok := update.Private[id]
		if !ok {
			continue
		}
		data, err := encode(MessageTypePrivateData, update.RoomCode, priv)
		if err != nil {
			h.logger.Error("序列化私有数据失败",
				zap.String("client_id", id),
				zap.Error(err))
			continue
		}
		h.trySend(client, data)
	}
}

// trySend 非阻塞发送，缓冲区满时丢弃
func (h *Hub) trySend(client *Client, data []byte) bool {
	select {
	case client.Send <- data:
		return true
	default:
		h.logger.Warn("客户端发送缓冲区满",
			zap.String("client_id", client.ID))
		return false
	}
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return apperrors.Newf(apperrors.ErrWebSocketClosed, "客户端ID: %s", clientID)
	}
	if !h.trySend(client, data) {
		return apperrors.Newf(apperrors.ErrWebSocketSend, "发送缓冲区已满: %s", clientID)
	}
	return nil
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
