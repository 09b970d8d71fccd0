package main

import (
	"context"

	"balloonworld.dev/internal/client/state"
	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/terrain"
)

type summary struct {
	Frames      int
	Inbound     int
	Diagnostics []protocol.Diagnostic
	Final       state.View

	Seed       string
	Placements int
	Digest     string
}

// replay feeds the inbound frames of a journal through a fresh store in
// order, then regenerates the terrain for the session's seed.
func replay(ctx context.Context, entries []journal.Entry, cfg terrain.Config) (summary, error) {
	var sum summary
	store := state.New()
	store.Connected()
	for _, e := range entries {
		sum.Frames++
		if e.Dir != journal.In {
			continue
		}
		sum.Inbound++
		res := protocol.ParseState(e.Data)
		sum.Diagnostics = append(sum.Diagnostics, res.Diagnostics...)
		_, diags := store.Apply(res.Update)
		sum.Diagnostics = append(sum.Diagnostics, diags...)
	}
	sum.Final = store.Snapshot()
	if !sum.Final.HasSeed {
		return sum, nil
	}

	w, err := terrain.New(ctx, sum.Final.Seed, cfg)
	if err != nil {
		return sum, err
	}
	defer w.Dispose()
	sum.Seed = w.Seed()
	sum.Placements = len(w.Placements())
	sum.Digest = w.Digest()
	return sum, nil
}
