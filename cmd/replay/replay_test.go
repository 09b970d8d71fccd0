package main

import (
	"context"
	"testing"

	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/terrain"
	"balloonworld.dev/internal/terrain/mesh"
)

func TestReplayJournal(t *testing.T) {
	dir := t.TempDir()
	w := journal.NewWriter(dir, "client")
	frames := []struct {
		dir  journal.Direction
		data string
	}{
		{journal.In, "Seed:replay;Players:1;P[a]:1,2"},
		{journal.Out, "move 0.00 0.00"},
		{journal.In, "Seed:other;Signal:7;P[a]:3,4;P[b]:bad;Chat:a>hi"},
	}
	for _, f := range frames {
		if err := w.Record(f.dir, "", f.data); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	_ = w.Close()

	entries, err := journal.ReadAll(dir, "client")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	cfg := terrain.DefaultConfig()
	cfg.Grid = mesh.Grid{Size: 30, Segments: 12}

	sum, err := replay(context.Background(), entries, cfg)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sum.Frames != 3 || sum.Inbound != 2 {
		t.Fatalf("counts: %+v", sum)
	}
	codes := map[string]int{}
	for _, d := range sum.Diagnostics {
		codes[d.Code]++
	}
	if codes[protocol.DiagBadCoords] != 1 || codes[protocol.DiagSeedConflict] != 1 {
		t.Fatalf("diagnostics: %v", sum.Diagnostics)
	}
	if sum.Final.Signal != 7 || sum.Final.Players["a"].X != 3 || len(sum.Final.Chat) != 1 {
		t.Fatalf("final: %+v", sum.Final)
	}

	ref, err := terrain.New(context.Background(), "replay", cfg)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if sum.Seed != "replay" || sum.Digest != ref.Digest() {
		t.Fatalf("terrain: seed=%q digest=%s want=%s", sum.Seed, sum.Digest, ref.Digest())
	}
}

func TestReplayWithoutSeed(t *testing.T) {
	sum, err := replay(context.Background(), []journal.Entry{{Dir: journal.In, Data: "Signal:1"}}, terrain.DefaultConfig())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sum.Seed != "" || sum.Digest != "" {
		t.Fatalf("unexpected terrain: %+v", sum)
	}
}
