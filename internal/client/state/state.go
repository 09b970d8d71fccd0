// Package state is the client's single store of multiplayer world state.
// One writer (the session's reconciliation loop) applies protocol updates;
// any number of readers take snapshots or watch change groups.
package state

import (
	"maps"
	"slices"
	"sync"

	"balloonworld.dev/internal/protocol"
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connected
	Errored
)

func (c ConnState) String() string {
	switch c {
	case Disconnected:
		return "DISCONNECTED"
	case Connected:
		return "CONNECTED"
	case Errored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

type PlayerState struct {
	ID string
	X  float64
	Z  float64
}

// View is a deep copy of the store at one commit.
type View struct {
	Seed    string
	HasSeed bool

	Conn      ConnState
	LastError string

	PlayerCount   int
	Signal        int
	AvgPing       float64
	BalloonHeight int

	Players map[string]PlayerState
	Chat    []protocol.ChatMessage
}

type Store struct {
	mu   sync.RWMutex
	view View

	watchMu  sync.Mutex
	watchers map[int]watcher
	nextID   int
}

func New() *Store {
	s := &Store{watchers: make(map[int]watcher)}
	s.view.Players = make(map[string]PlayerState)
	s.view.Chat = []protocol.ChatMessage{}
	return s
}

func (s *Store) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.clone()
}

func (v View) clone() View {
	out := v
	out.Players = maps.Clone(v.Players)
	if out.Players == nil {
		out.Players = make(map[string]PlayerState)
	}
	out.Chat = slices.Clone(v.Chat)
	if out.Chat == nil {
		out.Chat = []protocol.ChatMessage{}
	}
	return out
}

// Apply commits one parsed frame atomically and reports which groups changed.
// The seed is set once per session; a different seed while one is held is
// ignored and reported as DiagSeedConflict.
func (s *Store) Apply(u protocol.Update) (Group, []protocol.Diagnostic) {
	var changed Group
	var diags []protocol.Diagnostic

	s.mu.Lock()
	v := &s.view
	if u.Seed != nil {
		switch {
		case !v.HasSeed:
			v.Seed, v.HasSeed = *u.Seed, true
			changed |= GroupSeed
		case v.Seed != *u.Seed:
			diags = append(diags, protocol.Diagnostic{
				Code:   protocol.DiagSeedConflict,
				Field:  protocol.KeySeed + ":" + *u.Seed,
				Detail: "seed already set to " + v.Seed,
			})
		}
	}
	if u.BalloonHeight != nil && *u.BalloonHeight != v.BalloonHeight {
		v.BalloonHeight = *u.BalloonHeight
		changed |= GroupTelemetry
	}
	if u.Signal != nil && *u.Signal != v.Signal {
		v.Signal = *u.Signal
		changed |= GroupTelemetry
	}
	if u.AvgPing != nil && *u.AvgPing != v.AvgPing {
		v.AvgPing = *u.AvgPing
		changed |= GroupTelemetry
	}
	if u.Players != nil && *u.Players+1 != v.PlayerCount {
		// The count excludes the local player; the displayed count does not.
		v.PlayerCount = *u.Players + 1
		changed |= GroupTelemetry
	}

	roster := make(map[string]PlayerState, len(u.Roster))
	for id, p := range u.Roster {
		roster[id] = PlayerState{ID: id, X: p.X, Z: p.Z}
	}
	if !maps.Equal(roster, v.Players) {
		v.Players = roster
		changed |= GroupRoster
	}

	if u.HasChat {
		chat := slices.Clone(u.Chat)
		if chat == nil {
			chat = []protocol.ChatMessage{}
		}
		if !slices.Equal(chat, v.Chat) {
			v.Chat = chat
			changed |= GroupChat
		}
	}
	s.commitLocked(changed)
	return changed, diags
}

// Connected marks the connection open and clears the last error.
func (s *Store) Connected() {
	s.mu.Lock()
	var changed Group
	if s.view.Conn != Connected || s.view.LastError != "" {
		s.view.Conn = Connected
		s.view.LastError = ""
		changed = GroupConnection
	}
	s.commitLocked(changed)
}

// Disconnect ends the session: roster, chat and seed are cleared. LastError
// is left as it was.
func (s *Store) Disconnect() {
	s.mu.Lock()
	changed := s.clearSessionLocked()
	if s.view.Conn != Disconnected {
		s.view.Conn = Disconnected
		changed |= GroupConnection
	}
	s.commitLocked(changed)
}

// Fail ends the session because of a transport error and records msg.
func (s *Store) Fail(msg string) {
	s.mu.Lock()
	changed := s.clearSessionLocked()
	if s.view.Conn != Errored || s.view.LastError != msg {
		s.view.Conn = Errored
		s.view.LastError = msg
		changed |= GroupConnection
	}
	s.commitLocked(changed)
}

// Reset returns the store to its initial state.
func (s *Store) Reset() {
	s.mu.Lock()
	prev := s.view
	s.view = View{Players: make(map[string]PlayerState), Chat: []protocol.ChatMessage{}}
	var changed Group
	if prev.Conn != Disconnected || prev.LastError != "" {
		changed |= GroupConnection
	}
	if prev.HasSeed {
		changed |= GroupSeed
	}
	if len(prev.Players) > 0 {
		changed |= GroupRoster
	}
	if len(prev.Chat) > 0 {
		changed |= GroupChat
	}
	if prev.PlayerCount != 0 || prev.Signal != 0 || prev.AvgPing != 0 || prev.BalloonHeight != 0 {
		changed |= GroupTelemetry
	}
	s.commitLocked(changed)
}

func (s *Store) clearSessionLocked() Group {
	var changed Group
	if s.view.HasSeed {
		s.view.Seed, s.view.HasSeed = "", false
		changed |= GroupSeed
	}
	if len(s.view.Players) > 0 {
		s.view.Players = make(map[string]PlayerState)
		changed |= GroupRoster
	}
	if len(s.view.Chat) > 0 {
		s.view.Chat = []protocol.ChatMessage{}
		changed |= GroupChat
	}
	return changed
}

// commitLocked releases the write lock and notifies watchers with the
// committed view. Callers must hold s.mu. With a single writer, watchers see
// commits in order.
func (s *Store) commitLocked(changed Group) {
	if changed == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.view.clone()
	s.mu.Unlock()
	s.notify(Change{Groups: changed, View: snap})
}
