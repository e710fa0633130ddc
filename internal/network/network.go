package network

import (
	"errors"

	"github.com/siohaza/skirmish/internal/protocol"
)

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrClosed        = errors.New("connection closed")
)

// Conn is one client connection regardless of transport.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close(reason protocol.DisconnectReason) error
	RemoteAddr() string
}

// Handler receives transport events. The websocket transport calls it from
// per-connection goroutines; the ENet transport calls it from whichever
// goroutine polls the host.
type Handler interface {
	HandleConnect(conn Conn, name string)
	HandleMessage(conn Conn, data []byte)
	HandleDisconnect(conn Conn)
}
