package server

import (
	"fmt"
	"time"

	"github.com/siohaza/skirmish/internal/network"
)

// Transports never touch the match. They turn connection events into
// commands that the run loop applies one at a time.

type connectCmd struct {
	conn network.Conn
	name string
}

type messageCmd struct {
	conn network.Conn
	data []byte
	at   time.Time
}

type disconnectCmd struct {
	conn network.Conn
}

// post hands a command to the run loop. It blocks the calling transport
// goroutine, never the tick, and gives up once the server is stopping.
func (s *Server) post(cmd any) {
	select {
	case s.inbox <- cmd:
	case <-s.ctx.Done():
	}
}

func (s *Server) HandleConnect(conn network.Conn, name string) {
	s.post(connectCmd{conn: conn, name: name})
}

func (s *Server) HandleMessage(conn network.Conn, data []byte) {
	s.post(messageCmd{conn: conn, data: data, at: time.Now()})
}

func (s *Server) HandleDisconnect(conn network.Conn) {
	s.post(disconnectCmd{conn: conn})
}

// directHandler runs transport events inline. It is used for ENet, which is
// already polled from the run loop.
type directHandler struct {
	s *Server
}

func (d directHandler) HandleConnect(conn network.Conn, name string) {
	d.s.handleCommand(connectCmd{conn: conn, name: name})
}

func (d directHandler) HandleMessage(conn network.Conn, data []byte) {
	d.s.handleCommand(messageCmd{conn: conn, data: data, at: time.Now()})
}

func (d directHandler) HandleDisconnect(conn network.Conn) {
	d.s.handleCommand(disconnectCmd{conn: conn})
}

func (s *Server) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case connectCmd:
		s.handleConnect(c.conn, c.name)
	case messageCmd:
		s.handleMessage(c.conn, c.data, c.at)
	case disconnectCmd:
		s.handleDisconnect(c.conn)
	default:
		s.logger.Error("unknown command", "type", fmt.Sprintf("%T", cmd))
	}
}
