// Package session runs one client connection: it applies every server frame
// to the state store, builds the terrain when the seed arrives and tears
// everything down when the connection ends.
package session

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"sync/atomic"

	"balloonworld.dev/internal/client/state"
	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/terrain"
	"balloonworld.dev/internal/transport/ws"
)

const defaultErrorMessage = "Couldn't connect to server"

// Transport is the connection the session drives. *ws.Client implements it.
type Transport interface {
	Events() <-chan ws.Event
	Send(text string) error
	Close()
}

type Options struct {
	Terrain terrain.Config
	// ErrorMessage is stored as LastError after a transport error.
	ErrorMessage string
	Frames       ws.FrameRecorder
	Logger       *log.Logger
	// OnTerrain is called from the build goroutine once a world is ready.
	OnTerrain func(*terrain.World)
}

type Session struct {
	opts  Options
	log   *log.Logger
	store *state.Store
	tr    Transport

	world atomic.Pointer[terrain.World]

	mu          sync.Mutex
	buildCancel context.CancelFunc
	closed      bool

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials rawURL (adding ?name= when name is set) and starts a session.
func Connect(ctx context.Context, rawURL, name string, store *state.Store, opts Options) (*Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if name != "" {
		q := u.Query()
		q.Set("name", name)
		u.RawQuery = q.Encode()
	}
	return New(ws.Dial(ctx, u.String(), opts.Logger), store, opts), nil
}

// New starts consuming tr's events.
func New(tr Transport, store *state.Store, opts Options) *Session {
	if opts.ErrorMessage == "" {
		opts.ErrorMessage = defaultErrorMessage
	}
	s := &Session{
		opts:  opts,
		log:   opts.Logger,
		store: store,
		tr:    tr,
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.loop()
	}()
	return s
}

func (s *Session) Store() *state.Store { return s.store }

// Done is closed after the transport's event stream ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// World returns the generated terrain, or nil while none is ready.
func (s *Session) World() *terrain.World { return s.world.Load() }

// HeightAt is the ground height under (x, z); 0 until the terrain is ready.
func (s *Session) HeightAt(x, z float64) float64 { return s.world.Load().HeightAt(x, z) }

func (s *Session) Move(x, z float64) error {
	return s.send(protocol.EncodeMove(x, z))
}

// Chat sends text. Text that trims to empty is not sent and reports
// protocol.ErrEmptyChat.
func (s *Session) Chat(text string) error {
	msg, err := protocol.EncodeChat(text)
	if err != nil {
		return err
	}
	return s.send(msg)
}

func (s *Session) send(msg string) error {
	if err := s.tr.Send(msg); err != nil {
		return err
	}
	s.record(journal.Out, msg)
	return nil
}

// Close ends the session. State is cleared before Close returns; calling it
// again is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.buildCancel != nil {
			s.buildCancel()
		}
		s.mu.Unlock()
		s.tr.Close()
		s.wg.Wait()
		// The loop has exited, so this is the last write. A frame that was in
		// flight when Close began has already committed, and the transport
		// may have dropped its close event.
		s.teardown()
	})
}

func (s *Session) loop() {
	for ev := range s.tr.Events() {
		switch ev.Kind {
		case ws.EventOpen:
			if s.isClosed() {
				continue
			}
			s.store.Connected()
		case ws.EventMessage:
			if s.isClosed() {
				continue
			}
			s.handleFrame(ev.Data)
		case ws.EventError:
			if s.log != nil {
				s.log.Printf("connection error: %v", ev.Err)
			}
			s.store.Fail(s.opts.ErrorMessage)
			s.dropWorld()
		case ws.EventClose:
			s.teardown()
		}
	}
}

func (s *Session) handleFrame(data string) {
	s.record(journal.In, data)
	res := protocol.ParseState(data)
	s.logDiagnostics(res.Diagnostics)

	groups, diags := s.store.Apply(res.Update)
	s.logDiagnostics(diags)
	if groups.Has(state.GroupSeed) {
		if v := s.store.Snapshot(); v.HasSeed {
			s.startBuild(v.Seed)
		}
	}
}

func (s *Session) logDiagnostics(diags []protocol.Diagnostic) {
	if s.log == nil {
		return
	}
	for _, d := range diags {
		if !protocol.IsKnownCode(d.Code) {
			s.log.Printf("frame: unregistered diagnostic %s", d)
			continue
		}
		s.log.Printf("frame: %s", d)
	}
}

// startBuild generates the terrain for seed in the background. A build still
// running for an older seed is cancelled.
func (s *Session) startBuild(seed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.buildCancel != nil {
		s.buildCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.buildCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w, err := terrain.New(ctx, seed, s.opts.Terrain)
		if err != nil {
			if s.log != nil && !errors.Is(err, context.Canceled) {
				s.log.Printf("terrain %q: %v", seed, err)
			}
			return
		}
		s.mu.Lock()
		stale := ctx.Err() != nil
		if !stale {
			if old := s.world.Swap(w); old != nil {
				old.Dispose()
			}
		}
		s.mu.Unlock()
		if stale {
			w.Dispose()
			return
		}
		if s.log != nil {
			s.log.Printf("terrain ready seed=%q placements=%d", seed, len(w.Placements()))
		}
		if s.opts.OnTerrain != nil {
			s.opts.OnTerrain(w)
		}
	}()
}

// dropWorld cancels any build and disposes the current terrain.
func (s *Session) dropWorld() {
	s.mu.Lock()
	if s.buildCancel != nil {
		s.buildCancel()
		s.buildCancel = nil
	}
	old := s.world.Swap(nil)
	s.mu.Unlock()
	if old != nil {
		old.Dispose()
	}
}

func (s *Session) teardown() {
	s.store.Disconnect()
	s.dropWorld()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) record(dir journal.Direction, data string) {
	if s.opts.Frames == nil {
		return
	}
	if err := s.opts.Frames.Record(dir, "", data); err != nil && s.log != nil {
		s.log.Printf("journal: %v", err)
	}
}
