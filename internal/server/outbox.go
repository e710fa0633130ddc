package server

import (
	"slices"

	"github.com/siohaza/skirmish/internal/network"
	"github.com/siohaza/skirmish/internal/ping"
	"github.com/siohaza/skirmish/internal/player"
	"github.com/siohaza/skirmish/internal/protocol"
)

// SendTo and Broadcast implement match.Outbox. They run on the run loop and
// never block: transports queue frames and report failures immediately.
func (s *Server) SendTo(playerID, event string, payload any) {
	p, ok := s.match.GameState().Players.Get(playerID)
	if !ok {
		return
	}
	sess, ok := s.sessions[p.ConnID]
	if !ok {
		return
	}
	s.sendConn(sess.conn, event, payload)
}

func (s *Server) Broadcast(event string, payload any, except ...string) {
	data, err := s.codec.Encode(event, payload)
	if err != nil {
		s.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}

	for _, p := range s.match.GameState().Players.GetAll() {
		if slices.Contains(except, p.ID) {
			continue
		}
		sess, ok := s.sessions[p.ConnID]
		if !ok {
			continue
		}
		s.write(sess.conn, event, data)
	}
}

func (s *Server) sendConn(conn network.Conn, event string, payload any) {
	data, err := s.codec.Encode(event, payload)
	if err != nil {
		s.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	s.write(conn, event, data)
}

func (s *Server) write(conn network.Conn, event string, data []byte) {
	if err := conn.Send(data); err != nil {
		s.logger.Warn("send failed", "conn", conn.ID(), "event", event, "error", err)
	}
}

// The methods below back the Lua game API.

func (s *Server) Announce(message string) {
	s.match.Announce(message)
}

func (s *Server) MatchState() string {
	return s.match.StateName()
}

func (s *Server) RemainingTime() int {
	return s.match.Remaining()
}

func (s *Server) ServerName() string {
	return s.config.Server.Name
}

func (s *Server) serverInfo() ping.ServerInfo {
	return ping.ServerInfo{
		Name:           s.config.Server.Name,
		PlayersCurrent: s.match.PlayerCount(),
		PlayersMax:     player.MaxPlayers,
		State:          s.match.StateName(),
		Remaining:      s.match.Remaining(),
		GameMode:       s.gameModeName(),
		GameVersion:    Version,
	}
}

func (s *Server) gameModeName() string {
	if s.gameMode == nil {
		return ""
	}
	return s.gameMode.Name()
}

func (s *Server) updatePingServerInfo() {
	if s.pingHandler == nil {
		return
	}
	s.pingHandler.UpdateServerInfo(s.serverInfo())
}
