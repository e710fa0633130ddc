package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/siohaza/skirmish/internal/protocol"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

type WSServer struct {
	addr        string
	sendQueue   int
	messageType int
	handler     Handler
	logger      *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	mu      sync.Mutex
	conns   map[string]*wsConn
	closing bool
	wg      sync.WaitGroup
}

// NewWSServer serves the game endpoint at /ws. binary selects binary frames,
// which the msgpack codec needs.
func NewWSServer(addr string, sendQueue int, binary bool, handler Handler, logger *slog.Logger) *WSServer {
	if logger == nil {
		logger = slog.Default()
	}
	if sendQueue <= 0 {
		sendQueue = 64
	}

	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}

	s := &WSServer{
		addr:        addr,
		sendQueue:   sendQueue,
		messageType: messageType,
		handler:     handler,
		logger:      logger,
		conns:       make(map[string]*wsConn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     isValidOrigin,
	}
	return s
}

// isValidOrigin allows non-browser clients, same-origin pages and localhost.
func isValidOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == originURL.Host {
		return true
	}

	host := originURL.Hostname()
	return host == "localhost" || host == "127.0.0.1" || strings.HasPrefix(host, "127.")
}

func (s *WSServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

func (s *WSServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server stopped", "error", err)
		}
	}()

	s.logger.Info("websocket transport started", "addr", listener.Addr().String())
	return nil
}

// Addr is the bound listen address, useful when listening on port 0.
func (s *WSServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *WSServer) Stop(ctx context.Context) error {
	// Shutdown does not track hijacked connections; upgrades that race with
	// it are refused in serveWS once closing is set.
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(protocol.DisconnectReasonShutdown)
	}
	s.wg.Wait()

	s.logger.Info("websocket transport stopped")
	return err
}

func (s *WSServer) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsConn{
		id:     uuid.NewString(),
		ws:     ws,
		server: s,
		send:   make(chan []byte, s.sendQueue),
		done:   make(chan struct{}),
		addr:   r.RemoteAddr,
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
		ws.Close()
		return
	}
	s.conns[c.id] = c
	s.wg.Add(2)
	s.mu.Unlock()

	go c.writePump()

	// connect must be delivered before any message from this conn
	s.handler.HandleConnect(c, r.URL.Query().Get("name"))
	go c.readPump()
}

func (s *WSServer) forget(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

type wsConn struct {
	id     string
	ws     *websocket.Conn
	server *WSServer
	send   chan []byte
	done   chan struct{}
	addr   string

	closeOnce sync.Once
	closeCode int
}

func (c *wsConn) ID() string         { return c.id }
func (c *wsConn) RemoteAddr() string { return c.addr }

// Send queues data without blocking. A full queue drops the frame.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

// Close flushes queued frames, then sends a close frame whose code reflects
// reason.
func (c *wsConn) Close(reason protocol.DisconnectReason) error {
	c.closeOnce.Do(func() {
		c.closeCode = closeCode(reason)
		close(c.done)
	})
	return nil
}

func closeCode(reason protocol.DisconnectReason) int {
	switch reason {
	case protocol.DisconnectReasonServerFull:
		return websocket.CloseTryAgainLater
	case protocol.DisconnectReasonShutdown:
		return websocket.CloseGoingAway
	default:
		return websocket.CloseNormalClosure
	}
}

func (c *wsConn) readPump() {
	defer c.server.wg.Done()
	defer func() {
		_ = c.Close(protocol.DisconnectReasonUndefined)
		c.server.forget(c)
		c.server.handler.HandleDisconnect(c)
	}()

	c.ws.SetReadLimit(wsReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.logger.Debug("websocket read failed", "conn", c.id, "error", err)
			}
			return
		}
		c.server.handler.HandleMessage(c, data)
	}
}

func (c *wsConn) writePump() {
	defer c.server.wg.Done()
	defer c.ws.Close()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := c.write(c.server.messageType, data); err != nil {
				c.server.logger.Debug("websocket write failed", "conn", c.id, "error", err)
				_ = c.Close(protocol.DisconnectReasonUndefined)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.Close(protocol.DisconnectReasonUndefined)
				return
			}

		case <-c.done:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
			return
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(c.server.messageType, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}
