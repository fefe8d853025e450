package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// PriceStream pushes recorded price samples to WebSocket clients.
type PriceStream struct {
	upgrader  websocket.Upgrader
	mu        sync.Mutex
	clients   map[chan []byte]struct{}
	closed    chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func NewPriceStream(logger *zap.Logger) *PriceStream {
	return &PriceStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[chan []byte]struct{}),
		closed:  make(chan struct{}),
		logger:  logger,
	}
}

func (s *PriceStream) Broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.clients {
		select {
		case ch <- payload:
		default:
			s.logger.Warn("Price update dropped due to slow client")
		}
	}
}

func (s *PriceStream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close sends a close frame to every client and ends their streams.
func (s *PriceStream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *PriceStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan []byte, clientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("New WebSocket client connected", zap.Int("total_clients", total))

	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		total := len(s.clients)
		s.mu.Unlock()
		s.logger.Info("WebSocket client disconnected", zap.Int("total_clients", total))
	}()

	// Clients only listen; reading keeps pongs and close frames flowing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-s.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case payload := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
