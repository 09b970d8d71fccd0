package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"balloonworld.dev/internal/persistence/indexdb"
	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/persistence/snapshot"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/relay"
	"balloonworld.dev/internal/transport/ws"
	"balloonworld.dev/internal/tuning"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		addr       = flag.String("addr", "", "http listen address (default: relay.addr from tuning)")
		seed       = flag.String("seed", "", "world seed (default: relay.seed, then the last seed in the index, then random)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite session/chat index")
		noFrames   = flag.Bool("disable_frame_log", false, "disable the compressed frame log")
		snapEvery  = flag.Duration("snapshot_every", 30*time.Second, "relay snapshot interval (0 disables snapshots)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	listen := strings.TrimSpace(*addr)
	if listen == "" {
		listen = tune.Relay.Addr
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "relay.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	cfg := relayConfig(tune.Relay)
	cfg.Seed, err = pickSeed(*seed, tune.Relay.Seed, idx, logger)
	if err != nil {
		logger.Fatalf("seed: %v", err)
	}

	snapPath := filepath.Join(*dataDir, "snapshots", "relay.snap.zst")
	var snap *snapshot.RelayV1
	if *snapEvery > 0 {
		snap = loadSnapshot(snapPath, cfg.Seed, logger)
	}
	if snap != nil {
		cfg.Seed = snap.Seed
		cfg.BalloonHeight = snap.BalloonHeight
		cfg.Signal = snap.Signal
	}

	var rec relay.Recorder
	if idx != nil {
		rec = idx
	}
	hub := relay.New(cfg, logger, rec)
	if idx != nil {
		idx.SetMeta("seed", hub.Seed())
		restoreChat(hub, idx, cfg.ChatHistory, logger)
	} else if snap != nil {
		msgs := make([]protocol.ChatMessage, 0, len(snap.Chat))
		for _, c := range snap.Chat {
			msgs = append(msgs, protocol.ChatMessage{Sender: c.Sender, Text: c.Text})
		}
		hub.RestoreChat(msgs)
	}

	opts := ws.ServerOptions{PingEvery: tune.Relay.PingEvery()}
	if !*noFrames {
		frames := journal.NewWriter(filepath.Join(*dataDir, "frames"), "relay")
		defer frames.Close()
		opts.Frames = frames
	}

	ctx, cancel := signalContext()
	defer cancel()

	// The hub outlives the signal context so the final snapshot can be taken.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go func() {
		if err := hub.Run(hubCtx); err != nil && err != context.Canceled {
			logger.Printf("relay stopped: %v", err)
		}
	}()
	if *snapEvery > 0 {
		go snapshotLoop(ctx, hub, snapPath, *snapEvery, logger)
	}

	mux := newMux(hub, idx, logger, envBool("BW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()))
	mux.HandleFunc("/ws", ws.NewServer(hub, logger, opts).Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		if *snapEvery > 0 {
			saveSnapshot(ctx2, hub, snapPath, logger)
		}
		stopHub()
	}()

	logger.Printf("listening on %s seed=%q", listen, hub.Seed())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-stopped
}

// loadSnapshot returns the stored relay state, or nil when there is none or
// it belongs to a seed other than wantSeed. An empty wantSeed accepts any.
func loadSnapshot(path, wantSeed string, logger *log.Logger) *snapshot.RelayV1 {
	h, err := snapshot.ReadHeader(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("snapshot: %v", err)
		}
		return nil
	}
	if wantSeed != "" && h.Seed != wantSeed {
		logger.Printf("snapshot: seed %q differs from %q; ignoring snapshot", h.Seed, wantSeed)
		return nil
	}
	if err := protocol.CheckSeed(h.Seed); err != nil {
		logger.Printf("snapshot: %v", err)
		return nil
	}
	snap, err := snapshot.Read(path)
	if err != nil {
		logger.Printf("snapshot: %v", err)
		return nil
	}
	logger.Printf("snapshot: loaded seed=%q chat=%d saved_at=%s", snap.Seed, len(snap.Chat), snap.Header.SavedAt.Format(time.RFC3339))
	return &snap
}

func snapshotLoop(ctx context.Context, hub *relay.Hub, path string, every time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveSnapshot(ctx, hub, path, logger)
		}
	}
}

func saveSnapshot(ctx context.Context, hub *relay.Hub, path string, logger *log.Logger) {
	s, err := hub.Snapshot(ctx)
	if err != nil {
		logger.Printf("snapshot: query hub: %v", err)
		return
	}
	if err := snapshot.Write(path, relaySnapshot(s)); err != nil {
		logger.Printf("snapshot: write: %v", err)
	}
}

func relaySnapshot(s relay.Snapshot) snapshot.RelayV1 {
	out := snapshot.RelayV1{
		Seed:          s.Seed,
		BalloonHeight: s.BalloonHeight,
		Signal:        s.Signal,
		Chat:          make([]snapshot.ChatV1, 0, len(s.Chat)),
	}
	for _, c := range s.Chat {
		out.Chat = append(out.Chat, snapshot.ChatV1{Sender: c.Sender, Text: c.Text})
	}
	return out
}

func relayConfig(r tuning.Relay) relay.Config {
	return relay.Config{
		Tick:          r.Tick(),
		PingSamples:   r.PingSamples,
		ChatHistory:   r.ChatHistory,
		MaxChatRunes:  r.MaxChatRunes,
		BalloonHeight: r.BalloonHeight,
		Signal:        r.Signal,
	}
}

// pickSeed keeps the world stable across restarts unless a seed is forced.
// A forced seed that frames cannot carry is an error; a bad stored seed is
// skipped.
func pickSeed(flagSeed, tuned string, idx *indexdb.SQLiteIndex, logger *log.Logger) (string, error) {
	for _, s := range []string{flagSeed, tuned} {
		if s = strings.TrimSpace(s); s != "" {
			if err := protocol.CheckSeed(s); err != nil {
				return "", err
			}
			return s, nil
		}
	}
	if idx == nil {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, ok, err := idx.Meta(ctx, "seed")
	if err != nil {
		logger.Printf("index: read seed: %v", err)
		return "", nil
	}
	if !ok {
		return "", nil
	}
	if err := protocol.CheckSeed(s); err != nil {
		logger.Printf("index: stored seed ignored: %v", err)
		return "", nil
	}
	logger.Printf("resuming seed %q from index", s)
	return s, nil
}

func restoreChat(hub *relay.Hub, idx *indexdb.SQLiteIndex, limit int, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := idx.RecentChat(ctx, limit)
	if err != nil {
		logger.Printf("index: restore chat: %v", err)
		return
	}
	msgs := make([]protocol.ChatMessage, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, protocol.ChatMessage{Sender: r.Name, Text: r.Text})
	}
	hub.RestoreChat(msgs)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
