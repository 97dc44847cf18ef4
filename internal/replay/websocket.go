// internal/replay/websocket.go
package replay

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inputpipe/internal/input/observer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// AckMessage is what connected clients receive for every resolved event.
type AckMessage struct {
	Type       string `json:"type"`
	State      string `json:"state"`
	TraceID    int64  `json:"trace_id"`
	LatencyMs  int64  `json:"latency_ms"`
	Components int    `json:"components"`
}

// WebSocketSource accepts trace records from websocket clients. Each text
// message holds one or more JSON lines. Resolved acks are broadcast back to
// every client.
type WebSocketSource struct {
	addr     string
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	listener net.Listener
	ready    chan struct{}
}

var _ Source = (*WebSocketSource)(nil)
var _ observer.Sink = (*WebSocketSource)(nil)

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketSource listens on addr once Stream runs.
func NewWebSocketSource(addr string, logger *zap.Logger) *WebSocketSource {
	return &WebSocketSource{
		addr:   addr,
		logger: logger.Named("ws_source"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// The endpoint is meant for local tooling.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		ready:   make(chan struct{}),
	}
}

// Addr returns the bound address once the server is listening, or nil.
func (s *WebSocketSource) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready is closed once the server is listening.
func (s *WebSocketSource) Ready() <-chan struct{} { return s.ready }

// Stream serves websocket clients on /input until ctx is done.
func (s *WebSocketSource) Stream(ctx context.Context, out chan<- Record) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	mux := http.NewServeMux()
	mux.HandleFunc("/input", func(w http.ResponseWriter, r *http.Request) { s.handle(ctx, w, r, out) })
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.logger.Info("Accepting input over websocket.", zap.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Record broadcasts an ack to every client. A client that cannot keep up is
// disconnected.
func (s *WebSocketSource) Record(rec observer.Record) {
	msg, err := json.Marshal(AckMessage{
		Type:       string(rec.Type),
		State:      string(rec.State),
		TraceID:    rec.TraceID,
		LatencyMs:  rec.Latency().Milliseconds(),
		Components: len(rec.Components),
	})
	if err != nil {
		s.logger.Error("Failed to encode ack message.", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.logger.Warn("Dropping slow websocket client.", zap.String("client_id", c.id))
			delete(s.clients, c)
			close(c.send)
		}
	}
}

func (s *WebSocketSource) handle(ctx context.Context, w http.ResponseWriter, r *http.Request, out chan<- Record) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket.", zap.Error(err))
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("Websocket client connected.", zap.String("client_id", c.id))

	go s.writePump(c)
	s.readPump(ctx, c, out)
}

func (s *WebSocketSource) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
		s.logger.Info("Websocket client disconnected.", zap.String("client_id", c.id))
	}
}

func (s *WebSocketSource) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *WebSocketSource) readPump(ctx context.Context, c *wsClient, out chan<- Record) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Websocket client read error.", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		for _, line := range bytes.Split(message, []byte{'\n'}) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			rec, err := Decode(line)
			if err != nil {
				s.logger.Warn("Rejecting websocket record.", zap.String("client_id", c.id), zap.Error(err))
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *WebSocketSource) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
