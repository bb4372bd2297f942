package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/dto"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/metrics"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送控制帧，不需要大的读缓冲
	maxMessageSize = 512

	initialViewTimeout = 5 * time.Second
)

// Hub 内部消息类型
const (
	MessageRegister   = "register"
	MessageUnregister = "unregister"
	MessageEvent      = "event"
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // register / unregister / event
	RoomID  string  // 房间 ID
	UserID  uint    // 用于识别 Client
	Client  *Client // 仅用于 register/unregister
	RawData []byte  // 仅用于 event (序列化后的 dto.RoomEvent)
}

// RoomViewer 在客户端注册时提供房间的当前视图
type RoomViewer interface {
	EnsureSeated(ctx context.Context, roomID string, userID uint) (*dto.RoomView, error)
}

// Hub 维护活跃客户端集合，并把房间事件推送给房间内的玩家。
// 事件来自 Redis 频道，所以任何实例上的状态变更都会到达这里。
type Hub struct {
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool
	rooms map[string]map[*Client]bool
	// 每个房间已推送的最新版本，只记录有本地连接的房间
	versions map[string]uint64
	roomsMu  sync.RWMutex

	viewer RoomViewer
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(viewer RoomViewer) *Hub {
	if viewer == nil {
		panic("RoomViewer cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[string]map[*Client]bool),
		versions:    make(map[string]uint64),
		viewer:      viewer,
	}
}

// Run 启动 Hub 的主事件处理循环，直到 ctx 结束。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case MessageRegister:
				h.registerClient(msg.Client)
			case MessageUnregister:
				h.unregisterClient(msg.Client)
			case MessageEvent:
				h.handleRoomEvent(msg.RoomID, msg.RawData)
			default:
				log.Warnf("Hub: Received unknown message type: %s from user %d in room %s", msg.Type, msg.UserID, msg.RoomID)
			}
		}
	}
}

// HandleRoomEvent 接收从事件总线到达的房间事件，签名与 redisstate.RoomEventHandler 一致
func (h *Hub) HandleRoomEvent(roomID string, payload []byte) {
	h.QueueMessage(HubMessage{Type: MessageEvent, RoomID: roomID, RawData: payload})
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": client.UserID(),
		"action":  "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
		logCtx.Debug("Client list created for new room")
	}
	h.rooms[roomID][client] = true
	h.roomsMu.Unlock()
	metrics.WebsocketClients.Inc()
	logCtx.Info("Client registered to Hub")

	// 异步发送当前房间视图
	go h.sendInitialView(client)
}

// unregisterClient 处理客户端注销逻辑
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.RoomID(),
		"user_id": client.UserID(),
		"action":  "unregisterClient",
	})

	h.roomsMu.Lock()
	removed := h.removeClientLocked(client)
	h.roomsMu.Unlock()
	if removed {
		logCtx.WithField("room_clients", h.ClientCount(client.RoomID())).Info("Client unregistered from Hub")
	} else {
		// 房间删除或玩家离开时已被 Hub 主动移除
		logCtx.Debug("Client already removed from Hub")
	}
}

// removeClientLocked 从房间中移除客户端并关闭其 send 通道，调用方需持有写锁。
// send 通道只在这里关闭，客户端只会被移除一次。
func (h *Hub) removeClientLocked(client *Client) bool {
	roomClients, ok := h.rooms[client.RoomID()]
	if !ok || !roomClients[client] {
		return false
	}
	delete(roomClients, client)
	close(client.send)
	metrics.WebsocketClients.Dec()
	if len(roomClients) == 0 {
		delete(h.rooms, client.RoomID())
		delete(h.versions, client.RoomID())
	}
	return true
}

// sendInitialView 获取并发送房间当前视图给新连接的客户端
func (h *Hub) sendInitialView(client *Client) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   client.RoomID(),
		"user_id":   client.UserID(),
		"operation": "sendInitialView",
	})

	ctx, cancel := context.WithTimeout(context.Background(), initialViewTimeout)
	defer cancel()
	event := dto.RoomEvent{Type: dto.RoomEventUpdated, RoomID: client.RoomID(), At: time.Now()}
	view, err := h.viewer.EnsureSeated(ctx, client.RoomID(), client.UserID())
	if err != nil {
		logCtx.WithError(err).Warn("Failed to load initial room view")
		event.Type = dto.RoomEventError
		event.Message = "Failed to load room state"
	} else {
		event.Room = view
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal initial room view")
		return
	}
	// 客户端可能在此期间已被移除，send 通道已关闭
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if !h.rooms[client.RoomID()][client] {
		return
	}
	if view != nil && view.Version != 0 {
		// 加载期间已推送过更新的事件
		if view.Version < h.versions[client.RoomID()] {
			logCtx.WithField("version", view.Version).Debug("Initial room view is stale, skipped")
			return
		}
		h.versions[client.RoomID()] = view.Version
	}
	select {
	case client.send <- payload:
		logCtx.Debug("Initial room view queued")
	default:
		logCtx.Warn("Client send channel full when trying to send initial view, message dropped")
	}
}

// handleRoomEvent 把事件推送给房间内的所有客户端。
// 房间被删除时关闭所有连接；玩家离开后关闭其连接。
// 事件可能乱序到达，版本不高于已推送版本的事件整体丢弃。
func (h *Hub) handleRoomEvent(roomID string, payload []byte) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "handleRoomEvent"})

	var event dto.RoomEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logCtx.WithError(err).Warn("Dropping malformed room event")
		return
	}

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if len(h.rooms[roomID]) == 0 {
		return
	}
	// 版本为 0 的事件不参与排序
	if event.Version != 0 {
		if last := h.versions[roomID]; event.Version <= last {
			logCtx.WithFields(logrus.Fields{"version": event.Version, "last_version": last}).Debug("Dropping stale room event")
			return
		}
		h.versions[roomID] = event.Version
	}

	h.broadcastLocked(roomID, payload)

	seated := make(map[uint]bool)
	if event.Room != nil {
		for _, p := range event.Room.Players {
			seated[p.UserID] = true
		}
	}

	for client := range h.rooms[roomID] {
		if event.Type == dto.RoomEventDeleted || (event.Type == dto.RoomEventUpdated && !seated[client.UserID()]) {
			h.removeClientLocked(client)
			logCtx.WithField("user_id", client.UserID()).Info("Client no longer seated, connection closed")
		}
	}
}

// broadcastLocked 将消息发送给指定房间的所有客户端，调用方需持有锁
func (h *Hub) broadcastLocked(roomID string, message []byte) {
	roomClients := h.rooms[roomID]
	if len(roomClients) == 0 {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"message_size":    len(message),
		"recipient_count": len(roomClients),
	})
	logCtx.Debug("Broadcasting message to clients")

	for client := range roomClients {
		// 使用非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logCtx.WithField("receiver_user_id", client.UserID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// closeAll 关闭所有客户端，Hub 退出时调用
func (h *Hub) closeAll() {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	for _, roomClients := range h.rooms {
		for client := range roomClients {
			h.removeClientLocked(client)
		}
	}
}

// ClientCount 返回房间内的连接数
func (h *Hub) ClientCount(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 false 表示队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}
