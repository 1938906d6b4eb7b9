package leap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads frames from the tracking service's JSON WebSocket.
type WebSocketSource struct {
	config Config
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSource creates a source for the service at config.URL.
// The connection is made when Run is called.
func NewWebSocketSource(config Config) *WebSocketSource {
	return &WebSocketSource{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
	}
}

// Run connects to the service and delivers messages until ctx is done or the
// connection fails.
func (s *WebSocketSource) Run(ctx context.Context, l Listener) error {
	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return fmt.Errorf("connect to tracking service %s: %w", s.config.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer s.Close()

	l.OnConnection()

	if s.config.Background {
		if err := conn.WriteJSON(map[string]bool{"background": true}); err != nil {
			return fmt.Errorf("configure tracking service: %w", err)
		}
	}
	if err := conn.WriteJSON(map[string]bool{"focused": true}); err != nil {
		return fmt.Errorf("configure tracking service: %w", err)
	}

	// Unblock ReadMessage on cancellation.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read tracking message: %w", err)
		}

		m, err := decodeMessage(data)
		if err != nil {
			log.Printf("Skipping tracking message: %v", err)
			continue
		}
		if m.kind == kindHello {
			log.Printf("Tracking service %s", m.version)
			continue
		}
		dispatch(m, l)
	}
}

// Close closes the WebSocket connection if open.
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}
