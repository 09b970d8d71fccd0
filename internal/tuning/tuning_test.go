package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"balloonworld.dev/internal/terrain"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadRepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults:\n%+v\n%+v", got, Defaults())
	}
}

func TestTerrainConfigMatchesPackageDefaults(t *testing.T) {
	if Defaults().TerrainConfig() != terrain.DefaultConfig() {
		t.Fatalf("terrain config mismatch")
	}
}

func TestParsePartialOverridesKeepDefaults(t *testing.T) {
	got, err := Parse([]byte("relay:\n  tick_ms: 20\n  seed: fixed\nplayer:\n  speed: 8\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Relay.TickMs != 20 || got.Relay.Seed != "fixed" || got.Player.Speed != 8 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.Relay.PingSamples != 10 || got.Terrain.Size != 1000 {
		t.Fatalf("defaults lost: %+v", got)
	}
	if got.Relay.Tick() != 20*time.Millisecond {
		t.Fatalf("tick: %v", got.Relay.Tick())
	}
	if p := got.PhysicsParams(); p.Speed != 8 || p.Bounds != 1000 {
		t.Fatalf("physics: %+v", p)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []string{
		"placement:\n  density: 1.5\n",
		"relay:\n  tick_ms: 0\n",
		"client:\n  server_url: http://x\n",
		"player:\n  gravity: 5\n",
		"terrain:\n  sand_level: 1\n",
		"terrain: [1, 2]\n",
		"relay:\n  seed: \"a;Chat:x>y\"\n",
		"relay:\n  seed: \"tab\\there\"\n",
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err: %v", err)
	}
}

func TestParseErrorNamesFile(t *testing.T) {
	_, err := Parse([]byte("relay:\n  tick_ms: nope\n"))
	if err == nil || !strings.Contains(err.Error(), "tuning.yaml") {
		t.Fatalf("err: %v", err)
	}
}
