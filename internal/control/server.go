// ABOUTME: Websocket control server for the mixer
// ABOUTME: Accepts JSON commands to play, stop and level sounds and replies with mixer state
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-mixer/internal/discovery"
	"github.com/Resonate-Protocol/resonate-mixer/internal/version"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/stream"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/sound"
)

// Path is the websocket endpoint
const Path = "/control"

const (
	sendBuffer    = 32
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
}

// Server serves the control websocket
type Server struct {
	config   Config
	sys      *sound.System
	log      zerolog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server
	listener   net.Listener
	mdns       *discovery.Manager

	clientsMu sync.Mutex
	clients   map[*client]struct{}
	closed    bool
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

type client struct {
	conn     *websocket.Conn
	addr     string
	sendChan chan Message
}

// New creates a control server for sys
func New(config Config, sys *sound.System) *Server {
	s := &Server{
		config:  config,
		sys:     sys,
		log:     log.Logger.With().Str("c", "control").Logger(),
		mux:     http.NewServeMux(),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			// control clients are local tools and scripts, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc(Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving Path
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on the configured port and advertises over mDNS if enabled
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on control port: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("control server failed")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Str("path", Path).Msg("control server listening")

	if s.config.EnableMDNS {
		s.mdns = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        ln.Addr().(*net.TCPAddr).Port,
			Path:        Path,
		})
		if err := s.mdns.Advertise(); err != nil {
			s.log.Warn().Err(err).Msg("failed to start mDNS advertisement")
		}
	}
	return nil
}

// Addr returns the listening address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes every client and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.clientsMu.Lock()
		s.closed = true
		for c := range s.clients {
			c.conn.Close()
		}
		s.clientsMu.Unlock()

		if s.mdns != nil {
			s.mdns.Stop()
		}
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		s.wg.Wait()
		s.log.Info().Msg("control server stopped")
	})
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, addr: r.RemoteAddr, sendChan: make(chan Message, sendBuffer)}

	s.clientsMu.Lock()
	if s.closed {
		s.clientsMu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	s.clientsMu.Unlock()

	s.log.Info().Str("remote", c.addr).Msg("control client connected")
	s.handleConnection(c)
}

func (s *Server) handleConnection(c *client) {
	defer s.wg.Done()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.clientWriter(c)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		close(c.sendChan)
		<-writerDone
		c.conn.Close()
		s.log.Info().Str("remote", c.addr).Msg("control client disconnected")
	}()

	s.send(c, TypeServerHello, s.hello())

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Str("remote", c.addr).Msg("websocket error")
			}
			return
		}
		s.handleMessage(c, data)
	}
}

// clientWriter owns all writes to the connection
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal message")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug().Err(err).Str("remote", c.addr).Msg("write failed")
				c.conn.Close()
				drain(c.sendChan)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				drain(c.sendChan)
				return
			}
		}
	}
}

func drain(ch chan Message) {
	for range ch {
	}
}

func (s *Server) send(c *client, msgType string, payload any) {
	select {
	case c.sendChan <- Message{Type: msgType, Payload: payload}:
	default:
		s.log.Warn().Str("remote", c.addr).Str("type", msgType).Msg("client send buffer full, dropping message")
	}
}

func (s *Server) sendError(c *client, code string, err error) {
	s.send(c, TypeServerError, ErrorPayload{Error: code, Message: err.Error()})
}

func (s *Server) handleMessage(c *client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(c, ErrCodeBadRequest, fmt.Errorf("malformed message: %w", err))
		return
	}

	switch msg.Type {
	case TypePlay:
		var req PlayRequest
		if !s.decode(c, msg.Payload, &req) {
			return
		}
		s.handlePlay(c, req)
		return
	case TypeStop, TypePause, TypeResume:
		var req SessionRequest
		if !s.decode(c, msg.Payload, &req) {
			return
		}
		if !s.handleSession(c, msg.Type, req) {
			return
		}
	case TypeStopAll:
		s.sys.StopAll()
	case TypeStopCategory:
		var req CategoryRequest
		if !s.decode(c, msg.Payload, &req) {
			return
		}
		cat, err := audio.ParseCategory(req.Category)
		if err != nil {
			s.sendError(c, ErrCodeInvalidCategory, err)
			return
		}
		s.sys.StopCategory(cat)
	case TypeLevel:
		var req LevelRequest
		if !s.decode(c, msg.Payload, &req) {
			return
		}
		cat, err := audio.ParseCategory(req.Category)
		if err == nil {
			err = s.sys.SetLevel(cat, req.Level)
		}
		if err != nil {
			s.sendError(c, ErrCodeInvalidCategory, err)
			return
		}
	case TypeMaster:
		var req MasterRequest
		if !s.decode(c, msg.Payload, &req) {
			return
		}
		s.sys.SetMasterVolume(req.Volume)
	case TypePitch:
		var req PitchRequest
		if !s.decode(c, msg.Payload, &req) {
			return
		}
		s.sys.SetPitch(req.Ratio)
	case TypeState:
	default:
		s.sendError(c, ErrCodeUnknownType, fmt.Errorf("unknown message type %q", msg.Type))
		return
	}

	s.send(c, TypeState, s.state())
}

func (s *Server) decode(c *client, payload json.RawMessage, v any) bool {
	if len(payload) == 0 {
		s.sendError(c, ErrCodeBadRequest, errors.New("missing payload"))
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		s.sendError(c, ErrCodeBadRequest, fmt.Errorf("malformed payload: %w", err))
		return false
	}
	return true
}

func (s *Server) handlePlay(c *client, req PlayRequest) {
	var (
		r   *stream.Reader
		err error
	)
	switch {
	case req.Music:
		r, err = s.sys.PlayMusic(req.Name, req.Restart)
	case req.ID != nil:
		r, err = s.sys.PlaySoundID(*req.ID, req.Reuse)
	default:
		r, err = s.sys.PlaySound(req.Name, req.Reuse)
	}

	switch {
	case errors.Is(err, sound.ErrUnknownSound):
		s.sendError(c, ErrCodeUnknownSound, err)
	case errors.Is(err, audio.ErrCapacityExceeded):
		s.sendError(c, ErrCodeCapacity, err)
	case errors.Is(err, audio.ErrInvalidCategory):
		s.sendError(c, ErrCodeInvalidCategory, err)
	case err != nil:
		s.sendError(c, ErrCodeBadRequest, err)
	default:
		s.send(c, TypePlaying, Playing{Session: r.ID().String(), Name: r.Name(), Category: r.Category().String()})
	}
}

func (s *Server) handleSession(c *client, msgType string, req SessionRequest) bool {
	id, err := uuid.Parse(req.Session)
	if err != nil {
		s.sendError(c, ErrCodeBadRequest, fmt.Errorf("invalid session id: %w", err))
		return false
	}

	var ok bool
	switch msgType {
	case TypeStop:
		ok = s.sys.Stop(id)
	case TypePause:
		ok = s.sys.Pause(id)
	case TypeResume:
		ok = s.sys.Resume(id)
	}
	if !ok {
		s.sendError(c, ErrCodeUnknownSession, fmt.Errorf("no active session %s", id))
	}
	return ok
}

func (s *Server) hello() ServerHello {
	assets := s.sys.Bank().Assets()
	sounds := make([]SoundInfo, 0, len(assets))
	for _, a := range assets {
		sounds = append(sounds, SoundInfo{
			ID:         a.ID,
			Name:       a.Name,
			Category:   a.Category.String(),
			DurationMs: a.DurationMs(),
		})
	}
	return ServerHello{Name: s.config.Name, Version: ProtocolVersion, Software: version.String(), Sounds: sounds}
}

func (s *Server) state() State {
	st := State{
		Levels:   make(map[string]float64, audio.NumCategories),
		Master:   s.sys.MasterVolume(),
		Pitch:    s.sys.Pitch(),
		Sessions: []SessionInfo{},
	}
	for _, cat := range audio.Categories {
		if v, err := s.sys.GetLevel(cat); err == nil {
			st.Levels[cat.String()] = v
		}
	}
	for _, snap := range s.sys.Sessions() {
		st.Sessions = append(st.Sessions, SessionInfo{
			Session:    snap.ID.String(),
			Name:       snap.Name,
			Category:   snap.Category.String(),
			State:      snap.State.String(),
			Position:   snap.Position,
			Length:     snap.Length,
			RepeatOnce: snap.RepeatOnce,
		})
	}
	stats := s.sys.Stats()
	st.Engine = EngineInfo{
		State:          stats.State.String(),
		Refills:        stats.Refills,
		Underruns:      stats.Underruns,
		SubmitFailures: stats.SubmitFailures,
	}
	return st
}
