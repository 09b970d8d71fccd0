package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"balloonworld.dev/internal/client/physics"
	"balloonworld.dev/internal/client/session"
	"balloonworld.dev/internal/client/state"
	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/terrain"
	"balloonworld.dev/internal/tuning"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		url        = flag.String("url", "", "relay ws url (default: client.server_url from tuning)")
		name       = flag.String("name", "walker", "player name")
		dataDir    = flag.String("data", "./data", "runtime data directory (frame journal)")
		noJournal  = flag.Bool("disable_journal", false, "do not record frames")
		walk       = flag.Bool("walk", true, "wander once the terrain is ready")
		stdinChat  = flag.Bool("stdin_chat", true, "send each stdin line as chat")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	target := *url
	if target == "" {
		target = tune.Client.ServerURL
	}

	opts := session.Options{
		Terrain:      tune.TerrainConfig(),
		ErrorMessage: tune.Client.ErrorMessage,
		Logger:       logger,
	}
	if !*noJournal {
		frames := journal.NewWriter(filepath.Join(*dataDir, "frames"), "client")
		defer frames.Close()
		opts.Frames = frames
	}
	worlds := make(chan *terrain.World, 1)
	opts.OnTerrain = func(w *terrain.World) {
		select {
		case worlds <- w:
		default:
		}
	}

	store := state.New()
	stopWatch := store.Watch(state.GroupConnection|state.GroupChat|state.GroupSeed, func(c state.Change) {
		report(logger, c)
	})
	defer stopWatch()

	ctx, cancel := signalContext()
	defer cancel()

	sess, err := session.Connect(ctx, target, *name, store, opts)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer sess.Close()

	if *stdinChat {
		go readChat(sess, logger)
	}

	var (
		walker *time.Ticker
		ticker <-chan time.Time
	)
	defer func() {
		if walker != nil {
			walker.Stop()
		}
	}()
	var w *terrain.World
	var body physics.Body
	var yaw float64
	params := tune.PhysicsParams()
	dt := tune.Client.MoveInterval()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			logger.Printf("connection ended")
			return
		case w = <-worlds:
			logger.Printf("terrain ready seed=%q digest=%s", w.Seed(), w.Digest())
			if !*walk {
				continue
			}
			body = physics.Spawn(0, 0, sess.HeightAt, params)
			if walker == nil {
				walker = time.NewTicker(dt)
			}
			ticker = walker.C
		case <-ticker:
			if sess.World() != w {
				ticker = nil
				continue
			}
			// Turn slowly and hop now and then.
			yaw = math.Mod(yaw+0.05, 2*math.Pi)
			if math.Sin(yaw*3) > 0.99 {
				physics.Jump(&body, params)
			}
			body = physics.Step(body, physics.Input{Forward: 1}, yaw, dt.Seconds(), sess.HeightAt, params)
			if err := sess.Move(body.Position[0], body.Position[2]); err != nil {
				logger.Printf("move: %v", err)
			}
		}
	}
}

func report(logger *log.Logger, c state.Change) {
	v := c.View
	if c.Groups.Has(state.GroupConnection) {
		logger.Printf("connection=%s last_error=%q", v.Conn, v.LastError)
	}
	if c.Groups.Has(state.GroupSeed) && v.HasSeed {
		logger.Printf("seed=%q players=%d", v.Seed, v.PlayerCount)
	}
	if c.Groups.Has(state.GroupChat) && len(v.Chat) > 0 {
		last := v.Chat[len(v.Chat)-1]
		logger.Printf("chat %s> %s", last.Sender, last.Text)
	}
}

func readChat(sess *session.Session, logger *log.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if err := sess.Chat(sc.Text()); err != nil && !errors.Is(err, protocol.ErrEmptyChat) {
			logger.Printf("chat: %v", err)
			return
		}
	}
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
