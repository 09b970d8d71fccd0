package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"balloonworld.dev/internal/persistence/journal"
	"balloonworld.dev/internal/tuning"
)

func main() {
	var (
		framesDir  = flag.String("frames", "./data/frames", "journal dir containing <prefix>-*.jsonl.zst")
		prefix     = flag.String("prefix", "client", "journal file prefix")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		wantDigest = flag.String("digest", "", "expected terrain digest (optional)")
		verbose    = flag.Bool("v", false, "print every diagnostic")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	entries, err := journal.ReadAll(*framesDir, *prefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read journal:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no frames found in", *framesDir)
		os.Exit(1)
	}

	sum, err := replay(context.Background(), entries, tune.TerrainConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if *verbose {
		for _, d := range sum.Diagnostics {
			fmt.Println("diag", d)
		}
	}
	fmt.Printf("replay ok: frames=%d inbound=%d diagnostics=%d players=%d chat=%d\n",
		sum.Frames, sum.Inbound, len(sum.Diagnostics), len(sum.Final.Players), len(sum.Final.Chat))
	if sum.Seed == "" {
		fmt.Println("no seed in journal")
		return
	}
	fmt.Printf("seed=%q placements=%d digest=%s\n", sum.Seed, sum.Placements, sum.Digest)
	if *wantDigest != "" && *wantDigest != sum.Digest {
		fmt.Fprintf(os.Stderr, "digest mismatch: got=%s want=%s\n", sum.Digest, *wantDigest)
		os.Exit(1)
	}
}
