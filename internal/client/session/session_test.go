package session

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"balloonworld.dev/internal/client/state"
	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/terrain"
	"balloonworld.dev/internal/terrain/mesh"
	"balloonworld.dev/internal/transport/ws"
)

type fakeTransport struct {
	events chan ws.Event
	// dropClose makes Close end the stream without an EventClose, as a
	// client with a full event buffer does.
	dropClose bool

	mu     sync.Mutex
	sent   []string
	closed bool
	once   sync.Once
}

func newFake() *fakeTransport {
	return &fakeTransport{events: make(chan ws.Event, 16)}
}

func (f *fakeTransport) Events() <-chan ws.Event { return f.events }

func (f *fakeTransport) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ws.ErrClosed
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		if !f.dropClose {
			f.events <- ws.Event{Kind: ws.EventClose}
		}
		close(f.events)
	})
}

// hangUp simulates the server ending the connection.
func (f *fakeTransport) hangUp(err error) {
	f.once.Do(func() {
		if err != nil {
			f.events <- ws.Event{Kind: ws.EventError, Err: err}
		}
		f.events <- ws.Event{Kind: ws.EventClose}
		close(f.events)
	})
}

func (f *fakeTransport) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type memJournal struct {
	mu      sync.Mutex
	entries []string
}

func (m *memJournal) Record(dir journal.Direction, peer, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, string(dir)+":"+data)
	return nil
}

// gatedJournal holds the first inbound frame until release is closed.
type gatedJournal struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedJournal() *gatedJournal {
	return &gatedJournal{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedJournal) Record(dir journal.Direction, peer, data string) error {
	if dir == journal.In {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return nil
}

func smallTerrain() terrain.Config {
	cfg := terrain.DefaultConfig()
	cfg.Grid = mesh.Grid{Size: 40, Segments: 16}
	cfg.Workers = 2
	return cfg
}

func waitFor(t *testing.T, what string, ok func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !ok() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSession_SeedBuildsTerrain(t *testing.T) {
	tr := newFake()
	store := state.New()
	ready := make(chan *terrain.World, 1)
	s := New(tr, store, Options{Terrain: smallTerrain(), OnTerrain: func(w *terrain.World) { ready <- w }})
	defer s.Close()

	tr.events <- ws.Event{Kind: ws.EventOpen}
	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "Seed:cool seed;Players:1;P[abc]:10.50,-3.20;Chat:alice>hello"}

	var w *terrain.World
	select {
	case w = <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("terrain never built")
	}
	if w.Seed() != "cool seed" || s.World() != w {
		t.Fatalf("world: %q", w.Seed())
	}
	if s.HeightAt(1, 2) != w.HeightAt(1, 2) {
		t.Fatalf("HeightAt not delegated")
	}

	want, err := terrain.New(context.Background(), "cool seed", smallTerrain())
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if w.Digest() != want.Digest() {
		t.Fatalf("session terrain differs from direct generation")
	}

	v := store.Snapshot()
	if v.Conn != state.Connected || v.PlayerCount != 2 || len(v.Players) != 1 || len(v.Chat) != 1 {
		t.Fatalf("view: %+v", v)
	}
}

func TestSession_SecondSeedIgnored(t *testing.T) {
	tr := newFake()
	store := state.New()
	builds := make(chan string, 4)
	s := New(tr, store, Options{Terrain: smallTerrain(), OnTerrain: func(w *terrain.World) { builds <- w.Seed() }})
	defer s.Close()

	tr.events <- ws.Event{Kind: ws.EventOpen}
	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "Seed:one"}
	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "Seed:two;Signal:5"}

	waitFor(t, "signal", func() bool { return store.Snapshot().Signal == 5 })
	if got := <-builds; got != "one" {
		t.Fatalf("built %q", got)
	}
	select {
	case extra := <-builds:
		t.Fatalf("rebuilt for %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
	if store.Snapshot().Seed != "one" {
		t.Fatalf("seed replaced")
	}
}

func TestSession_ErrorThenCloseClearsState(t *testing.T) {
	tr := newFake()
	store := state.New()
	s := New(tr, store, Options{Terrain: smallTerrain()})

	tr.events <- ws.Event{Kind: ws.EventOpen}
	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "Seed:s;P[a]:1,1;Chat:a>x"}
	waitFor(t, "roster", func() bool { return len(store.Snapshot().Players) == 1 })

	tr.hangUp(errors.New("reset by peer"))
	<-s.Done()

	v := store.Snapshot()
	if v.Conn != state.Disconnected || v.LastError != "Couldn't connect to server" {
		t.Fatalf("view: %+v", v)
	}
	if v.HasSeed || len(v.Players) != 0 || len(v.Chat) != 0 {
		t.Fatalf("session state survived: %+v", v)
	}
	if s.World() != nil {
		t.Fatalf("world not dropped")
	}
	s.Close()
}

func TestSession_CloseIsSynchronousAndIdempotent(t *testing.T) {
	tr := newFake()
	store := state.New()
	s := New(tr, store, Options{Terrain: smallTerrain()})

	tr.events <- ws.Event{Kind: ws.EventOpen}
	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "Seed:s;P[a]:1,1"}
	waitFor(t, "connected", func() bool { return len(store.Snapshot().Players) == 1 })

	s.Close()
	v := store.Snapshot()
	if v.Conn != state.Disconnected || v.HasSeed || len(v.Players) != 0 {
		t.Fatalf("state after close: %+v", v)
	}
	s.Close()
	if err := s.Move(1, 2); !errors.Is(err, ws.ErrClosed) {
		t.Fatalf("move after close: %v", err)
	}
}

func TestSession_CloseClearsFrameInFlight(t *testing.T) {
	tr := newFake()
	tr.dropClose = true
	gate := newGatedJournal()
	store := state.New()
	s := New(tr, store, Options{Terrain: smallTerrain(), Frames: gate})

	tr.events <- ws.Event{Kind: ws.EventOpen}
	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "Seed:late;Players:1;P[a]:1,1;Chat:a>hi"}
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("frame never reached the journal")
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	waitFor(t, "close to begin", s.isClosed)
	close(gate.release)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not return")
	}
	v := store.Snapshot()
	if v.Conn != state.Disconnected || v.HasSeed || len(v.Players) != 0 || len(v.Chat) != 0 {
		t.Fatalf("state after close: %+v", v)
	}
	if s.World() != nil {
		t.Fatalf("world kept after close")
	}
}

func TestSession_MoveAndChat(t *testing.T) {
	tr := newFake()
	frames := &memJournal{}
	s := New(tr, state.New(), Options{Terrain: smallTerrain(), Frames: frames})
	defer s.Close()

	if err := s.Move(1.005, -2.3); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := s.Chat("   "); !errors.Is(err, protocol.ErrEmptyChat) {
		t.Fatalf("empty chat: %v", err)
	}
	if err := s.Chat("hi all"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	sent := tr.sentFrames()
	if len(sent) != 2 || sent[0] != "move 1.01 -2.30" || sent[1] != "chat hi all" {
		t.Fatalf("sent: %q", sent)
	}

	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "Signal:1"}
	waitFor(t, "journal", func() bool {
		frames.mu.Lock()
		defer frames.mu.Unlock()
		return len(frames.entries) == 3
	})
	frames.mu.Lock()
	defer frames.mu.Unlock()
	if frames.entries[0] != "out:move 1.01 -2.30" || frames.entries[2] != "in:Signal:1" {
		t.Fatalf("journal: %q", frames.entries)
	}
}

func TestSession_MalformedFramesKeepGoodFields(t *testing.T) {
	tr := newFake()
	store := state.New()
	s := New(tr, store, Options{Terrain: smallTerrain()})
	defer s.Close()

	tr.events <- ws.Event{Kind: ws.EventMessage, Data: "garbage;Signal:abc;BalloonHeight:70;P[x]:1"}
	waitFor(t, "height", func() bool { return store.Snapshot().BalloonHeight == 70 })
	if v := store.Snapshot(); v.Signal != 0 || len(v.Players) != 0 {
		t.Fatalf("view: %+v", v)
	}
}

func TestSession_LogDiagnosticsFlagsUnregisteredCodes(t *testing.T) {
	var buf bytes.Buffer
	tr := newFake()
	s := New(tr, state.New(), Options{Terrain: smallTerrain(), Logger: log.New(&buf, "", 0)})
	defer s.Close()

	s.logDiagnostics([]protocol.Diagnostic{
		{Code: protocol.DiagBadNumber, Field: "Signal:x"},
		{Code: "W_MADE_UP", Field: "Odd:1"},
	})
	out := buf.String()
	if !strings.Contains(out, "frame: W_BAD_NUMBER") {
		t.Fatalf("registered code not logged plainly: %q", out)
	}
	if !strings.Contains(out, "unregistered diagnostic W_MADE_UP") {
		t.Fatalf("unregistered code not flagged: %q", out)
	}
	if strings.Contains(out, "unregistered diagnostic W_BAD_NUMBER") {
		t.Fatalf("registered code flagged: %q", out)
	}
}
