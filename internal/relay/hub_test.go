package relay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"balloonworld.dev/internal/protocol"
)

type fakeRecorder struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	chats  []string
}

func (r *fakeRecorder) RecordJoin(id, name, addr string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, name)
}

func (r *fakeRecorder) RecordLeave(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves = append(r.leaves, id)
}

func (r *fakeRecorder) RecordChat(sessionID, name, text string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, name+">"+text)
}

func startHub(t *testing.T, cfg Config, rec Recorder) *Hub {
	t.Helper()
	h := New(cfg, nil, rec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func join(t *testing.T, h *Hub, name string) (JoinResponse, chan []byte) {
	t.Helper()
	out := make(chan []byte, 16)
	resp := make(chan JoinResponse, 1)
	h.Join() <- JoinRequest{Name: name, Addr: "test", Out: out, Resp: resp}
	select {
	case r := <-resp:
		return r, out
	case <-time.After(2 * time.Second):
		t.Fatalf("join timed out")
	}
	return JoinResponse{}, nil
}

// eventually polls snapshots; requests on different channels are not ordered.
func eventually(t *testing.T, h *Hub, ok func(Snapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := h.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if ok(s) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met: %+v", s)
		}
		time.Sleep(time.Millisecond)
	}
}

// waitFrame reads frames until one satisfies ok.
func waitFrame(t *testing.T, out chan []byte, ok func(protocol.Update) bool) protocol.Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case b := <-out:
			res := protocol.ParseState(string(b))
			if len(res.Diagnostics) != 0 {
				t.Fatalf("relay sent malformed frame %q: %v", b, res.Diagnostics)
			}
			if ok(res.Update) {
				return res.Update
			}
		case <-deadline:
			t.Fatalf("no matching frame")
		}
	}
}

func TestHub_FramesExcludeReceiver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = "abc"
	cfg.Tick = 5 * time.Millisecond
	h := startHub(t, cfg, nil)

	a, outA := join(t, h, "alice")
	_, outB := join(t, h, "bob")
	h.Inbox() <- Envelope{SessionID: a.SessionID, Cmd: protocol.Command{Verb: protocol.CmdMove, X: 1.005, Z: -2.3}}

	u := waitFrame(t, outB, func(u protocol.Update) bool {
		p, ok := u.Roster["alice"]
		return ok && p.X != 0
	})
	if *u.Seed != "abc" || *u.Players != 1 {
		t.Fatalf("frame for bob: %+v", u)
	}
	if p := u.Roster["alice"]; p.X != 1.01 || p.Z != -2.3 {
		t.Fatalf("alice at %+v", p)
	}
	if _, ok := u.Roster["bob"]; ok {
		t.Fatalf("bob sees himself")
	}

	u = waitFrame(t, outA, func(u protocol.Update) bool { return len(u.Roster) == 1 })
	if _, ok := u.Roster["bob"]; !ok || *u.Players != 1 {
		t.Fatalf("frame for alice: %+v", u)
	}
}

func TestHub_SendsOnlyOnChange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = "s"
	cfg.Tick = 2 * time.Millisecond
	h := startHub(t, cfg, nil)
	_, out := join(t, h, "solo")

	waitFrame(t, out, func(protocol.Update) bool { return true })
	time.Sleep(30 * time.Millisecond)
	if n := len(out); n != 0 {
		t.Fatalf("unchanged state resent %d times", n)
	}

	height := 42
	h.TelemetryUpdates() <- Telemetry{BalloonHeight: &height}
	u := waitFrame(t, out, func(u protocol.Update) bool { return u.BalloonHeight != nil && *u.BalloonHeight == 42 })
	if *u.Signal != 0 {
		t.Fatalf("signal changed: %d", *u.Signal)
	}
}

func TestHub_ChatHistoryAndSanitize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = 2 * time.Millisecond
	cfg.ChatHistory = 2
	rec := &fakeRecorder{}
	h := startHub(t, cfg, rec)
	a, out := join(t, h, "al;ice")

	for _, text := range []string{"one", "two", "thr;ee", "   "} {
		h.Inbox() <- Envelope{SessionID: a.SessionID, Cmd: protocol.Command{Verb: protocol.CmdChat, Text: text}}
	}
	u := waitFrame(t, out, func(u protocol.Update) bool {
		return len(u.Chat) == 2 && u.Chat[1].Text == "thr,ee"
	})
	if u.Chat[0].Text != "two" || u.Chat[0].Sender != "alice" {
		t.Fatalf("chat: %+v", u.Chat)
	}

	snap, err := h.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Chat) != 2 || len(snap.Players) != 1 {
		t.Fatalf("snapshot: %+v", snap)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.chats) != 3 || rec.chats[2] != "alice>thr,ee" {
		t.Fatalf("recorded chats: %v", rec.chats)
	}
	if len(rec.joins) != 1 || rec.joins[0] != "alice" {
		t.Fatalf("recorded joins: %v", rec.joins)
	}
}

func TestHub_DuplicateNamesAndLeave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = time.Hour
	rec := &fakeRecorder{}
	h := startHub(t, cfg, rec)

	first, _ := join(t, h, "bob")
	second, _ := join(t, h, "bob")
	anon, _ := join(t, h, "")
	if first.PlayerID != "bob" || second.PlayerID != "bob-2" {
		t.Fatalf("ids: %q %q", first.PlayerID, second.PlayerID)
	}
	if !strings.HasPrefix(anon.PlayerID, "player-") {
		t.Fatalf("anonymous id: %q", anon.PlayerID)
	}

	h.Leave() <- first.SessionID
	h.Leave() <- first.SessionID
	eventually(t, h, func(s Snapshot) bool { return len(s.Players) == 2 })
	third, _ := join(t, h, "bob")
	if third.PlayerID != "bob" {
		t.Fatalf("name not released: %q", third.PlayerID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.leaves) != 1 {
		t.Fatalf("leaves: %v", rec.leaves)
	}
}

func TestHub_PingAverage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = time.Hour
	cfg.PingSamples = 3
	h := startHub(t, cfg, nil)
	a, _ := join(t, h, "p")

	for _, ms := range []int{100, 10, 20, 30} {
		h.Pings() <- PingSample{SessionID: a.SessionID, RTT: time.Duration(ms) * time.Millisecond}
	}
	h.Pings() <- PingSample{SessionID: "stranger", RTT: time.Second}
	eventually(t, h, func(s Snapshot) bool { return s.AvgPing == 20 })
}

func TestHub_RestoreChat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = time.Hour
	cfg.ChatHistory = 2
	h := New(cfg, nil, nil)
	h.RestoreChat([]protocol.ChatMessage{{Sender: "a", Text: "1"}, {Sender: "b", Text: "2"}, {Sender: "c", Text: "3"}})
	if len(h.chat) != 2 || h.chat[0].Text != "2" {
		t.Fatalf("restored: %+v", h.chat)
	}
	if h.Seed() == "" {
		t.Fatalf("seed not generated")
	}
}

func TestPingWindow(t *testing.T) {
	w := pingWindow{max: 10}
	if w.avg() != 0 {
		t.Fatalf("empty avg")
	}
	for i := 1; i <= 12; i++ {
		w.add(float64(i))
	}
	// Samples 3..12.
	if w.avg() != 7.5 {
		t.Fatalf("avg: %v", w.avg())
	}
}

func TestNew_ReplacesUnframableSeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = "bad;Chat:x>y"
	h := New(cfg, nil, nil)
	if h.Seed() == cfg.Seed {
		t.Fatalf("seed with separator kept")
	}
	if err := protocol.CheckSeed(h.Seed()); err != nil {
		t.Fatalf("replacement seed: %v", err)
	}

	cfg.Seed = "fine seed"
	if got := New(cfg, nil, nil).Seed(); got != "fine seed" {
		t.Fatalf("seed=%q", got)
	}
}
