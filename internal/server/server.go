package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/siohaza/skirmish/internal/broadcast"
	"github.com/siohaza/skirmish/internal/callbacks"
	"github.com/siohaza/skirmish/internal/gamemode"
	"github.com/siohaza/skirmish/internal/match"
	"github.com/siohaza/skirmish/internal/network"
	"github.com/siohaza/skirmish/internal/ping"
	"github.com/siohaza/skirmish/internal/player"
	"github.com/siohaza/skirmish/internal/protocol"
	"github.com/siohaza/skirmish/pkg/config"
	"github.com/siohaza/skirmish/pkg/lua"
)

const (
	Version = "0.1.0"

	inboxSize   = 256
	stopTimeout = 2 * time.Second

	// ENet peers beyond two are admitted only long enough to be told the
	// match is full.
	enetMaxPeers = player.MaxPlayers + 2
)

type Server struct {
	config      *config.Config
	logger      *slog.Logger
	match       *match.Match
	codec       protocol.Codec
	broadcaster *broadcast.Broadcaster
	ws          *network.WSServer
	enet        *network.ENetServer
	pingHandler *ping.Handler
	gameMode    gamemode.GameMode
	callbacks   *callbacks.CallbackChain
	inbox       chan any
	sessions    map[string]*session
	startTime   time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

type session struct {
	conn     network.Conn
	playerID string
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	codec, err := protocol.NewCodec(cfg.Server.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to select codec: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:      cfg,
		logger:      logger,
		codec:       codec,
		broadcaster: broadcast.New(cfg.Match.BroadcastEvery, codec, logger),
		callbacks:   callbacks.NewCallbackChain(),
		inbox:       make(chan any, inboxSize),
		sessions:    make(map[string]*session),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	s.match = match.New(cfg, s, logger)
	s.match.SetCallbacks(s.callbacks)

	if err := s.loadGameMode(); err != nil {
		cancel()
		return nil, err
	}

	s.ws = network.NewWSServer(listenAddr(cfg.Server.Port), cfg.Server.SendQueue, cfg.Server.Encoding == config.EncodingMsgpack, s, logger)

	if cfg.Server.ENetPort > 0 {
		s.enet = network.NewENetServer(cfg.Server.ENetPort, enetMaxPeers, logger)
	}

	if cfg.Server.PingPort > 0 {
		s.pingHandler = ping.NewHandler(listenAddr(cfg.Server.PingPort), s.serverInfo(), logger)
	}

	return s, nil
}

func listenAddr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}

func (s *Server) loadGameMode() error {
	path := s.config.Scripting.Gamemode
	if path == "" {
		s.gameMode = gamemode.NewBaseGameMode("duel", s.config.Match.KillReward)
	} else {
		api := lua.NewGameAPI(s.match.GameState())
		api.SetServer(s)

		luaMode, err := gamemode.NewLuaGameMode(path, s.config.Match.KillReward, api, s.logger)
		if err != nil {
			return fmt.Errorf("failed to load Lua gamemode: %w", err)
		}
		s.gameMode = luaMode
		s.logger.Info("loaded Lua game mode", "path", path, "mode", luaMode.Name())
	}

	s.callbacks.Register(s.gameMode)
	s.match.SetRewardFunc(s.gameMode.KillReward)
	return nil
}

func (s *Server) Start() error {
	if err := s.ws.Start(); err != nil {
		return fmt.Errorf("failed to start websocket transport: %w", err)
	}

	if s.enet != nil {
		if err := s.enet.Start(); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			_ = s.ws.Stop(stopCtx)
			return fmt.Errorf("failed to start enet transport: %w", err)
		}
	}

	if s.pingHandler != nil {
		if err := s.pingHandler.Start(); err != nil {
			s.logger.Warn("failed to start ping handler", "error", err)
			s.pingHandler = nil
		}
	}

	s.startTime = time.Now()
	go s.run()

	s.logger.Info("server started",
		"name", s.config.Server.Name,
		"addr", s.ws.Addr(),
		"tick_rate", s.config.Match.TickRate,
		"encoding", s.codec.Name(),
		"gamemode", s.gameMode.Name())
	return nil
}

func (s *Server) Stop() {
	s.logger.Info("stopping server")

	if s.cancel != nil {
		s.cancel()
	}
	if !s.startTime.IsZero() {
		<-s.done
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.ws.Stop(stopCtx); err != nil {
		s.logger.Warn("websocket shutdown incomplete", "error", err)
	}

	if s.enet != nil {
		s.enet.Stop()
	}

	if s.pingHandler != nil {
		s.pingHandler.Stop()
	}

	s.gameMode.Close()
	s.logger.Info("server stopped")
}

// Done is closed when the run loop exits.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr is the websocket listen address once started.
func (s *Server) Addr() string {
	return s.ws.Addr()
}

func (s *Server) RegisterCallbacks(cb callbacks.Callbacks) {
	s.callbacks.Register(cb)
}

func (s *Server) GetUptime() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

func (s *Server) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.TickInterval())
	defer ticker.Stop()

	enetHandler := directHandler{s}

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("server context cancelled, exiting run loop")
			return

		case cmd := <-s.inbox:
			s.handleCommand(cmd)

		case now := <-ticker.C:
			s.update(now)
			if s.enet != nil {
				s.enet.Poll(enetHandler)
			}
		}
	}
}

func (s *Server) update(now time.Time) {
	if s.match.Tick(now) && s.broadcaster.Due(s.match.TickCount()) {
		s.broadcastSnapshot()
	}
	s.updatePingServerInfo()
}

func (s *Server) broadcastSnapshot() {
	targets := make([]broadcast.Target, 0, player.MaxPlayers)
	for _, p := range s.match.GameState().Players.GetAll() {
		if sess, ok := s.sessions[p.ConnID]; ok {
			targets = append(targets, sess.conn)
		}
	}

	if _, err := s.broadcaster.Broadcast(s.match.Snapshot(), targets); err != nil {
		s.logger.Error("snapshot broadcast failed", "error", err)
	}
}

func (s *Server) handleConnect(conn network.Conn, name string) {
	sess := &session{conn: conn}
	s.sessions[conn.ID()] = sess

	p, err := s.match.Join(conn.ID(), name)
	if err != nil {
		delete(s.sessions, conn.ID())
		if errors.Is(err, match.ErrFull) {
			s.logger.Warn("match full, rejecting connection", "conn", conn.ID(), "remote", conn.RemoteAddr())
		} else {
			s.logger.Error("failed to admit connection", "conn", conn.ID(), "error", err)
		}
		s.sendConn(conn, protocol.EventGameFull, protocol.Empty{})
		_ = conn.Close(protocol.DisconnectReasonServerFull)
		return
	}

	sess.playerID = p.ID
	s.logger.Info("connection accepted", "conn", conn.ID(), "remote", conn.RemoteAddr(), "player", p.ID, "slot", p.Slot)
	s.updatePingServerInfo()
}

func (s *Server) handleDisconnect(conn network.Conn) {
	sess, ok := s.sessions[conn.ID()]
	if !ok {
		return
	}
	delete(s.sessions, conn.ID())

	if sess.playerID != "" {
		s.match.Leave(sess.playerID)
	}
	s.logger.Info("connection closed", "conn", conn.ID(), "player", sess.playerID)
	s.updatePingServerInfo()
}

func (s *Server) handleMessage(conn network.Conn, data []byte, at time.Time) {
	sess, ok := s.sessions[conn.ID()]
	if !ok || sess.playerID == "" {
		return
	}

	env, err := s.codec.DecodeEnvelope(data)
	if err != nil {
		s.logger.Debug("dropping malformed frame", "conn", conn.ID(), "error", err)
		return
	}

	if err := s.dispatch(sess.playerID, env, at); err != nil {
		s.logger.Debug("dropping message", "player", sess.playerID, "type", env.T, "error", err)
	}
}

func (s *Server) dispatch(playerID string, env protocol.Envelope, at time.Time) error {
	switch env.T {
	case protocol.EventKeyUpdate:
		return s.handleKeyUpdate(playerID, env)
	case protocol.EventShoot:
		return s.handleShoot(playerID, env, at)
	case protocol.EventRequestStart, protocol.EventRequestRestart:
		return s.match.RequestStart(playerID)
	default:
		return fmt.Errorf("%q: %w", env.T, protocol.ErrUnknownMessage)
	}
}
