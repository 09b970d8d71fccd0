package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"balloonworld.dev/internal/persistence/indexdb"
	"balloonworld.dev/internal/relay"
)

func newMux(hub *relay.Hub, idx *indexdb.SQLiteIndex, logger *log.Logger, enableAdmin bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		snap, err := hub.Snapshot(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP balloonworld_relay_players Connected players.\n")
		fmt.Fprintf(rw, "# TYPE balloonworld_relay_players gauge\n")
		fmt.Fprintf(rw, "balloonworld_relay_players %d\n", len(snap.Players))

		fmt.Fprintf(rw, "# HELP balloonworld_relay_avg_ping_ms Rolling average round-trip time.\n")
		fmt.Fprintf(rw, "# TYPE balloonworld_relay_avg_ping_ms gauge\n")
		fmt.Fprintf(rw, "balloonworld_relay_avg_ping_ms %.3f\n", snap.AvgPing)

		fmt.Fprintf(rw, "# HELP balloonworld_relay_chat_lines Chat lines held in history.\n")
		fmt.Fprintf(rw, "# TYPE balloonworld_relay_chat_lines gauge\n")
		fmt.Fprintf(rw, "balloonworld_relay_chat_lines %d\n", len(snap.Chat))

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP balloonworld_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE balloonworld_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "balloonworld_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "# HELP balloonworld_index_dropped_total Index writes dropped on a full queue.\n")
			fmt.Fprintf(rw, "# TYPE balloonworld_index_dropped_total counter\n")
			fmt.Fprintf(rw, "balloonworld_index_dropped_total{kind=%q} %d\n", "join", st.DropJoinTotal)
			fmt.Fprintf(rw, "balloonworld_index_dropped_total{kind=%q} %d\n", "leave", st.DropLeaveTotal)
			fmt.Fprintf(rw, "balloonworld_index_dropped_total{kind=%q} %d\n", "chat", st.DropChatTotal)
			fmt.Fprintf(rw, "balloonworld_index_dropped_total{kind=%q} %d\n", "meta", st.DropMetaTotal)
		}
	})

	if !enableAdmin {
		if logger != nil {
			logger.Printf("admin endpoints disabled (BW_ENABLE_ADMIN_HTTP=false)")
		}
		return mux
	}

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		snap, err := hub.Snapshot(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(stateResponse(snap))
	})
	mux.HandleFunc("/admin/v1/telemetry", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var t relay.Telemetry
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(rw, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if t.BalloonHeight == nil && t.Signal == nil {
			http.Error(rw, "nothing to update", http.StatusBadRequest)
			return
		}
		select {
		case hub.TelemetryUpdates() <- t:
		case <-r.Context().Done():
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
	})
	return mux
}

type playerJSON struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Z  float64 `json:"z"`
}

type chatJSON struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type stateJSON struct {
	Seed          string       `json:"seed"`
	BalloonHeight int          `json:"balloon_height"`
	Signal        int          `json:"signal"`
	AvgPing       float64      `json:"avg_ping"`
	Players       []playerJSON `json:"players"`
	Chat          []chatJSON   `json:"chat"`
}

func stateResponse(s relay.Snapshot) stateJSON {
	out := stateJSON{
		Seed:          s.Seed,
		BalloonHeight: s.BalloonHeight,
		Signal:        s.Signal,
		AvgPing:       s.AvgPing,
		Players:       []playerJSON{},
		Chat:          []chatJSON{},
	}
	for _, p := range s.Players {
		out.Players = append(out.Players, playerJSON{ID: p.ID, X: p.X, Z: p.Z})
	}
	for _, m := range s.Chat {
		out.Chat = append(out.Chat, chatJSON{Sender: m.Sender, Text: m.Text})
	}
	return out
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
