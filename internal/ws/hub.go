package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"wecomCmder/internal/logger"
	"wecomCmder/internal/model"
)

// Event 推送给管理后台的消息事件
type Event struct {
	Type    string         `json:"type"`
	Message *model.Message `json:"message"`
}

// Hub 负责管理后台连接和广播消息记录
type Hub struct {
	// 已注册的客户端
	clients map[*Client]struct{}

	// 待广播的消息
	broadcast chan []byte

	// 客户端注册请求
	register chan *Client

	// 客户端取消注册请求
	unregister chan *Client

	// Run 退出后关闭
	done chan struct{}

	count atomic.Int64
	log   *slog.Logger
}

// NewHub 创建一个新的Hub实例
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.OrDefault(log, "ws"),
	}
}

// Run 开始Hub的消息处理循环，ctx 结束时断开全部客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.log.Info("管理端已连接", "subject", client.subject)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.log.Info("管理端已断开", "subject", client.subject)
			}
		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					h.log.Warn("客户端缓冲区已满，断开连接", "subject", client.subject)
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
}

// Publish 广播一条消息记录，队列已满时丢弃
func (h *Hub) Publish(msg *model.Message) {
	data, err := json.Marshal(Event{Type: "message", Message: msg})
	if err != nil {
		h.log.Error("序列化消息失败", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("广播队列已满，丢弃消息", "msg_id", msg.MsgID)
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
