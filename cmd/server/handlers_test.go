package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"balloonworld.dev/internal/relay"
)

func startTestHub(t *testing.T) *relay.Hub {
	t.Helper()
	cfg := relay.DefaultConfig()
	cfg.Seed = "handlers"
	hub := relay.New(cfg, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func TestHealthAndMetrics(t *testing.T) {
	hub := startTestHub(t)
	mux := newMux(hub, nil, nil, false)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "balloonworld_relay_players 0") {
		t.Fatalf("metrics: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("admin should be disabled: %d", rr.Code)
	}
}

func TestAdminTelemetryAndState(t *testing.T) {
	hub := startTestHub(t)
	mux := newMux(hub, nil, nil, true)

	post := func(body, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/telemetry", strings.NewReader(body))
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr
	}
	if rr := post(`{"balloon_height":120}`, "203.0.113.7:4000"); rr.Code != http.StatusForbidden {
		t.Fatalf("remote telemetry: %d", rr.Code)
	}
	if rr := post(`{}`, "127.0.0.1:4000"); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty telemetry: %d", rr.Code)
	}
	if rr := post(`{"balloon_height":120,"signal":80}`, "127.0.0.1:4000"); rr.Code != 200 {
		t.Fatalf("telemetry: %d %s", rr.Code, rr.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
		req.RemoteAddr = "[::1]:5000"
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != 200 {
			t.Fatalf("state: %d", rr.Code)
		}
		body, _ := io.ReadAll(rr.Body)
		var st stateJSON
		if err := json.Unmarshal(body, &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.Seed != "handlers" {
			t.Fatalf("seed: %q", st.Seed)
		}
		if st.BalloonHeight == 120 && st.Signal == 80 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("telemetry not applied: %+v", st)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("%q: got %v", in, got)
		}
	}
}
