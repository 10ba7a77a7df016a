package server

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/park285/llm-chess-arena/internal/obslog"
)

// wsConn은 허브가 다루는 연결의 최소 표면. 테스트에서 대역으로 치환.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub는 접속 중인 websocket 클라이언트 집합. 수가 적용될 때마다 상태를 밀어줌.
// 연결에 대한 쓰기는 전부 허브 뮤텍스 아래에서만 일어남. websocket 연결은
// 동시 쓰기를 허용하지 않음.
type Hub struct {
	mu      sync.Mutex
	clients map[wsConn]struct{}
	logger  *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[wsConn]struct{}),
		logger:  obslog.L().Named("ws"),
	}
}

// Join은 연결을 등록하고 첫 페이로드를 같은 락 아래에서 전송. Broadcast가
// 끼어들 틈 없이 초기 상태가 항상 먼저 나감. 전송 실패 시 등록하지 않음.
func (h *Hub) Join(c wsConn, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	h.clients[c] = struct{}{}
	return nil
}

func (h *Hub) Unregister(c wsConn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast는 JSON 페이로드를 모든 클라이언트에 전송. 끊어진 연결은 정리.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("ws write failed, dropping client", zap.Error(err))
			c.Close()
			delete(h.clients, c)
		}
	}
}
