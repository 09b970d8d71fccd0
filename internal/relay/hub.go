// Package relay is the reference server for the state protocol: it keeps the
// shared world (seed, telemetry, player positions, chat) and pushes each
// client a state frame whenever its view changes.
package relay

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"balloonworld.dev/internal/protocol"
)

type Config struct {
	Seed          string
	Tick          time.Duration
	PingSamples   int
	ChatHistory   int
	MaxChatRunes  int
	BalloonHeight int
	Signal        int
}

func DefaultConfig() Config {
	return Config{
		Tick:         50 * time.Millisecond,
		PingSamples:  10,
		ChatHistory:  50,
		MaxChatRunes: 200,
	}
}

// Recorder receives session and chat events. Implementations must not block.
type Recorder interface {
	RecordJoin(id, name, addr string, at time.Time)
	RecordLeave(id string, at time.Time)
	RecordChat(sessionID, name, text string, at time.Time)
}

type JoinRequest struct {
	Name string
	Addr string
	// Out receives encoded frames. The hub never blocks on it.
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	SessionID string
	PlayerID  string
}

type Envelope struct {
	SessionID string
	Cmd       protocol.Command
}

type PingSample struct {
	SessionID string
	RTT       time.Duration
}

// Telemetry updates the shared balloon readings; nil fields are unchanged.
type Telemetry struct {
	BalloonHeight *int `json:"balloon_height,omitempty"`
	Signal        *int `json:"signal,omitempty"`
}

type Snapshot struct {
	Seed          string
	BalloonHeight int
	Signal        int
	AvgPing       float64
	Players       []protocol.PlayerEntry
	Chat          []protocol.ChatMessage
}

type client struct {
	sessionID string
	playerID  string
	x, z      float64
	out       chan []byte
	lastSent  string
}

type Hub struct {
	cfg      Config
	log      *log.Logger
	recorder Recorder
	now      func() time.Time

	join      chan JoinRequest
	leave     chan string
	inbox     chan Envelope
	pings     chan PingSample
	telemetry chan Telemetry
	snapshots chan chan Snapshot

	// Owned by Run.
	clients map[string]*client
	byName  map[string]string
	window  pingWindow
	chat    []protocol.ChatMessage
	height  int
	signal  int
}

// New builds a hub. A seed that cannot be carried in a frame is replaced by
// a random one.
func New(cfg Config, logger *log.Logger, rec Recorder) *Hub {
	if err := protocol.CheckSeed(cfg.Seed); err != nil {
		if cfg.Seed != "" && logger != nil {
			logger.Printf("relay: %v; using a random seed", err)
		}
		cfg.Seed = uuid.NewString()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig().Tick
	}
	if cfg.PingSamples <= 0 {
		cfg.PingSamples = DefaultConfig().PingSamples
	}
	return &Hub{
		cfg:       cfg,
		log:       logger,
		recorder:  rec,
		now:       time.Now,
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		inbox:     make(chan Envelope, 1024),
		pings:     make(chan PingSample, 256),
		telemetry: make(chan Telemetry, 16),
		snapshots: make(chan chan Snapshot, 16),
		clients:   make(map[string]*client),
		byName:    make(map[string]string),
		window:    pingWindow{max: cfg.PingSamples},
		height:    cfg.BalloonHeight,
		signal:    cfg.Signal,
	}
}

func (h *Hub) Seed() string { return h.cfg.Seed }
func (h *Hub) Join() chan<- JoinRequest { return h.join }
func (h *Hub) Leave() chan<- string { return h.leave }
func (h *Hub) Inbox() chan<- Envelope { return h.inbox }
func (h *Hub) Pings() chan<- PingSample { return h.pings }
func (h *Hub) TelemetryUpdates() chan<- Telemetry { return h.telemetry }

// RestoreChat seeds the chat history, oldest first. Call before Run.
func (h *Hub) RestoreChat(msgs []protocol.ChatMessage) {
	h.chat = append(h.chat, msgs...)
	h.trimChat()
}

// Snapshot asks the running hub for its current state.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	resp := make(chan Snapshot, 1)
	select {
	case h.snapshots <- resp:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-h.join:
			h.handleJoin(req)
		case id := <-h.leave:
			h.handleLeave(id)
		case env := <-h.inbox:
			h.handleCommand(env)
		case p := <-h.pings:
			if _, ok := h.clients[p.SessionID]; ok {
				h.window.add(float64(p.RTT) / float64(time.Millisecond))
			}
		case t := <-h.telemetry:
			if t.BalloonHeight != nil {
				h.height = *t.BalloonHeight
			}
			if t.Signal != nil {
				h.signal = *t.Signal
			}
		case resp := <-h.snapshots:
			resp <- h.snapshot()
		case <-ticker.C:
			h.broadcast()
		}
	}
}

func (h *Hub) handleJoin(req JoinRequest) {
	sessionID := uuid.NewString()
	name := protocol.SanitizeName(req.Name)
	if name == "" {
		name = "player-" + sessionID[:8]
	}
	playerID := name
	for n := 2; ; n++ {
		if _, taken := h.byName[playerID]; !taken {
			break
		}
		playerID = name + "-" + strconv.Itoa(n)
	}

	h.clients[sessionID] = &client{sessionID: sessionID, playerID: playerID, out: req.Out}
	h.byName[playerID] = sessionID
	if h.log != nil {
		h.log.Printf("join session=%s player=%s addr=%s", sessionID, playerID, req.Addr)
	}
	if h.recorder != nil {
		h.recorder.RecordJoin(sessionID, playerID, req.Addr, h.now())
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{SessionID: sessionID, PlayerID: playerID}
	}
}

func (h *Hub) handleLeave(sessionID string) {
	c, ok := h.clients[sessionID]
	if !ok {
		return
	}
	delete(h.clients, sessionID)
	delete(h.byName, c.playerID)
	if h.log != nil {
		h.log.Printf("leave session=%s player=%s", sessionID, c.playerID)
	}
	if h.recorder != nil {
		h.recorder.RecordLeave(sessionID, h.now())
	}
}

func (h *Hub) handleCommand(env Envelope) {
	c, ok := h.clients[env.SessionID]
	if !ok {
		return
	}
	switch env.Cmd.Verb {
	case protocol.CmdMove:
		c.x, c.z = env.Cmd.X, env.Cmd.Z
	case protocol.CmdChat:
		text := protocol.SanitizeChat(env.Cmd.Text)
		if h.cfg.MaxChatRunes > 0 {
			if r := []rune(text); len(r) > h.cfg.MaxChatRunes {
				text = string(r[:h.cfg.MaxChatRunes])
			}
		}
		if text == "" {
			return
		}
		h.chat = append(h.chat, protocol.ChatMessage{Sender: c.playerID, Text: text})
		h.trimChat()
		if h.recorder != nil {
			h.recorder.RecordChat(c.sessionID, c.playerID, text, h.now())
		}
	}
}

func (h *Hub) trimChat() {
	if h.cfg.ChatHistory <= 0 {
		h.chat = h.chat[:0]
		return
	}
	if over := len(h.chat) - h.cfg.ChatHistory; over > 0 {
		h.chat = append(h.chat[:0], h.chat[over:]...)
	}
}

// frameFor renders the world as seen by c: c itself is left out of the
// roster and the count.
func (h *Hub) frameFor(c *client) string {
	f := protocol.Frame{
		Seed:          h.cfg.Seed,
		BalloonHeight: h.height,
		Signal:        h.signal,
		AvgPing:       h.window.avg(),
		Chat:          h.chat,
		WithChat:      true,
	}
	for _, o := range h.clients {
		if o == c {
			continue
		}
		f.Players = append(f.Players, protocol.PlayerEntry{ID: o.playerID, X: o.x, Z: o.z})
	}
	return protocol.EncodeState(f)
}

// broadcast sends each client its frame when it differs from the last one
// sent. A full queue skips the client for this tick.
func (h *Hub) broadcast() {
	for _, c := range h.clients {
		frame := h.frameFor(c)
		if frame == c.lastSent {
			continue
		}
		select {
		case c.out <- []byte(frame):
			c.lastSent = frame
		default:
		}
	}
}

func (h *Hub) snapshot() Snapshot {
	s := Snapshot{
		Seed:          h.cfg.Seed,
		BalloonHeight: h.height,
		Signal:        h.signal,
		AvgPing:       h.window.avg(),
		Chat:          append([]protocol.ChatMessage(nil), h.chat...),
	}
	for _, c := range h.clients {
		s.Players = append(s.Players, protocol.PlayerEntry{ID: c.playerID, X: c.x, Z: c.z})
	}
	return s
}
