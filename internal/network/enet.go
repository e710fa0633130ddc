package network

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/codecat/go-enet"
	"github.com/google/uuid"

	"github.com/siohaza/skirmish/internal/protocol"
)

// maxEventsPerPoll bounds how long a single Poll can hold the caller.
const maxEventsPerPoll = 100

type ENetServer struct {
	host     enet.Host
	port     uint16
	maxPeers int
	conns    map[string]*enetConn
	logger   *slog.Logger
}

type Event struct {
	Type      EventType
	Peer      enet.Peer
	Data      []byte
	ChannelID uint8
}

type EventType int

const (
	EventTypeNone EventType = iota
	EventTypeConnect
	EventTypeDisconnect
	EventTypeReceive
)

func NewENetServer(port int, maxPeers int, logger *slog.Logger) *ENetServer {
	if logger == nil {
		logger = slog.Default()
	}

	return &ENetServer{
		port:     uint16(port),
		maxPeers: maxPeers,
		conns:    make(map[string]*enetConn),
		logger:   logger,
	}
}

func (s *ENetServer) Start() error {
	address := enet.NewListenAddress(s.port)

	var err error
	s.host, err = enet.NewHost(address, uint64(s.maxPeers), 1, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to create ENet host: %w", err)
	}

	if err := s.host.CompressWithRangeCoder(); err != nil {
		return fmt.Errorf("failed to setup range coder compression: %w", err)
	}

	s.logger.Info("enet transport started", "port", s.port, "max_peers", s.maxPeers)
	return nil
}

func (s *ENetServer) Stop() {
	if s.host == nil {
		return
	}
	for _, c := range s.conns {
		c.peer.DisconnectNow(uint32(protocol.DisconnectReasonShutdown))
	}
	clear(s.conns)
	s.host.Destroy()
	s.host = nil
	s.logger.Info("enet transport stopped")
}

func (s *ENetServer) Service(timeout time.Duration) (*Event, error) {
	if s.host == nil {
		return nil, fmt.Errorf("enet host not started")
	}

	timeoutMs := uint32(timeout.Milliseconds())
	enetEvent := s.host.Service(timeoutMs)

	if enetEvent == nil {
		return &Event{Type: EventTypeNone}, nil
	}

	event := &Event{
		Peer: enetEvent.GetPeer(),
	}

	switch enetEvent.GetType() {
	case enet.EventConnect:
		event.Type = EventTypeConnect
		s.logger.Debug("peer connected", "peer", enetEvent.GetPeer().GetAddress())

	case enet.EventDisconnect:
		event.Type = EventTypeDisconnect
		s.logger.Debug("peer disconnected", "peer", enetEvent.GetPeer().GetAddress())

	case enet.EventReceive:
		event.Type = EventTypeReceive
		packet := enetEvent.GetPacket()
		if packet != nil {
			event.Data = packet.GetData()
			event.ChannelID = enetEvent.GetChannelID()
			packet.Destroy()
		}
	}

	return event, nil
}

// Poll drains pending host events without waiting and dispatches them to h.
func (s *ENetServer) Poll(h Handler) {
	for i := 0; i < maxEventsPerPoll; i++ {
		event, err := s.Service(0)
		if err != nil {
			s.logger.Error("enet service error", "error", err)
			return
		}

		if event.Type == EventTypeNone {
			return
		}

		key := event.Peer.GetAddress().String()
		switch event.Type {
		case EventTypeConnect:
			c := &enetConn{id: "enet-" + uuid.NewString(), peer: event.Peer, server: s, addr: key}
			s.conns[key] = c
			h.HandleConnect(c, "")

		case EventTypeDisconnect:
			if c, ok := s.conns[key]; ok {
				delete(s.conns, key)
				c.closed = true
				h.HandleDisconnect(c)
			}

		case EventTypeReceive:
			if c, ok := s.conns[key]; ok {
				h.HandleMessage(c, event.Data)
			}
		}
	}
}

func (s *ENetServer) SendPacket(peer enet.Peer, data []byte, reliable bool) error {
	if peer == nil {
		return fmt.Errorf("peer is nil")
	}

	flags := enet.PacketFlagUnsequenced
	if reliable {
		flags = enet.PacketFlagReliable
	}

	packet, err := enet.NewPacket(data, flags)
	if err != nil {
		return fmt.Errorf("failed to create packet: %w", err)
	}

	if err := peer.SendPacket(packet, 0); err != nil {
		return fmt.Errorf("failed to send packet: %w", err)
	}

	return nil
}

func (s *ENetServer) DisconnectPeerWithReason(peer enet.Peer, immediate bool, reason uint32) {
	if peer == nil {
		return
	}

	if immediate {
		peer.DisconnectNow(reason)
	} else {
		peer.Disconnect(reason)
	}
}

func (s *ENetServer) PeerCount() int {
	return len(s.conns)
}

// enetConn is only touched from the goroutine that polls the host.
type enetConn struct {
	id     string
	peer   enet.Peer
	server *ENetServer
	addr   string
	closed bool
}

func (c *enetConn) ID() string         { return c.id }
func (c *enetConn) RemoteAddr() string { return c.addr }

func (c *enetConn) Send(data []byte) error {
	if c.closed {
		return ErrClosed
	}
	return c.server.SendPacket(c.peer, data, true)
}

func (c *enetConn) Close(reason protocol.DisconnectReason) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.server.DisconnectPeerWithReason(c.peer, false, uint32(reason))
	return nil
}
