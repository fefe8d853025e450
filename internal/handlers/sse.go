package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHeartbeat = 15 * time.Second
	clientBuffer     = 10
)

// AlertStream fans triggered alerts out to Server-Sent Events clients.
type AlertStream struct {
	mu        sync.Mutex
	clients   map[chan []byte]struct{}
	closed    chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewAlertStream(heartbeat time.Duration, logger *zap.Logger) *AlertStream {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &AlertStream{
		clients:   make(map[chan []byte]struct{}),
		closed:    make(chan struct{}),
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Broadcast queues a JSON payload for every client. Slow clients drop it.
func (s *AlertStream) Broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.clients {
		select {
		case ch <- payload:
		default:
			s.logger.Warn("Alert dropped due to slow client")
		}
	}
}

func (s *AlertStream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close ends every open stream.
func (s *AlertStream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *AlertStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan []byte, clientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("New SSE client connected", zap.Int("total_clients", total))

	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		total := len(s.clients)
		s.mu.Unlock()
		s.logger.Info("SSE client disconnected", zap.Int("total_clients", total))
	}()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closed:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case payload := <-ch:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
