// Package tuning loads the shared configuration surface from YAML.
package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"balloonworld.dev/internal/client/physics"
	"balloonworld.dev/internal/protocol"
	"balloonworld.dev/internal/terrain"
	"balloonworld.dev/internal/terrain/gen"
	"balloonworld.dev/internal/terrain/mesh"
	"balloonworld.dev/internal/terrain/placement"
)

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	Terrain   Terrain   `yaml:"terrain" json:"terrain"`
	Placement Placement `yaml:"placement" json:"placement"`
	Player    Player    `yaml:"player" json:"player"`
	Client    Client    `yaml:"client" json:"client"`
	Relay     Relay     `yaml:"relay" json:"relay"`
}

type Layer struct {
	Scale  float64 `yaml:"scale" json:"scale"`
	Height float64 `yaml:"height" json:"height"`
	Base   float64 `yaml:"base" json:"base"`
	Span   float64 `yaml:"span" json:"span"`
}

type Terrain struct {
	Size     float64 `yaml:"size" json:"size"`
	Segments int     `yaml:"segments" json:"segments"`
	Workers  int     `yaml:"workers" json:"workers"`

	Region      Layer   `yaml:"region" json:"region"`
	Low         Layer   `yaml:"low" json:"low"`
	High        Layer   `yaml:"high" json:"high"`
	RegionPower float64 `yaml:"region_power" json:"region_power"`
	SampleZ     float64 `yaml:"sample_z" json:"sample_z"`

	WaterLevel float64 `yaml:"water_level" json:"water_level"`
	SandLevel  float64 `yaml:"sand_level" json:"sand_level"`
}

type Placement struct {
	HeightThreshold float64 `yaml:"height_threshold" json:"height_threshold"`
	Density         float64 `yaml:"density" json:"density"`
	MinSeparation   float64 `yaml:"min_separation" json:"min_separation"`
	MaxObjects      int     `yaml:"max_objects" json:"max_objects"`
	ScaleMin        float64 `yaml:"scale_min" json:"scale_min"`
	ScaleSpan       float64 `yaml:"scale_span" json:"scale_span"`
}

type Player struct {
	Height       float64 `yaml:"height" json:"height"`
	Radius       float64 `yaml:"radius" json:"radius"`
	Speed        float64 `yaml:"speed" json:"speed"`
	JumpVelocity float64 `yaml:"jump_velocity" json:"jump_velocity"`
	Gravity      float64 `yaml:"gravity" json:"gravity"`
}

type Client struct {
	ServerURL      string `yaml:"server_url" json:"server_url"`
	MoveIntervalMs int    `yaml:"move_interval_ms" json:"move_interval_ms"`
	// ErrorMessage is what the store shows after a transport error.
	ErrorMessage string `yaml:"error_message" json:"error_message"`
}

type Relay struct {
	Addr string `yaml:"addr" json:"addr"`
	// Seed is generated when empty.
	Seed          string `yaml:"seed" json:"seed"`
	TickMs        int    `yaml:"tick_ms" json:"tick_ms"`
	PingSamples   int    `yaml:"ping_samples" json:"ping_samples"`
	PingEveryMs   int    `yaml:"ping_every_ms" json:"ping_every_ms"`
	ChatHistory   int    `yaml:"chat_history" json:"chat_history"`
	BalloonHeight int    `yaml:"balloon_height" json:"balloon_height"`
	Signal        int    `yaml:"signal" json:"signal"`
	MaxChatRunes  int    `yaml:"max_chat_runes" json:"max_chat_runes"`
}

func Defaults() Tuning {
	g := gen.DefaultParams()
	pl := placement.DefaultParams()
	ph := physics.DefaultParams()
	return Tuning{
		Terrain: Terrain{
			Size:        1000,
			Region:      Layer(g.Region),
			Low:         Layer(g.Low),
			High:        Layer(g.High),
			RegionPower: g.RegionPower,
			SampleZ:     g.SampleZ,
			WaterLevel:  g.WaterLevel,
			SandLevel:   g.SandLevel,
		},
		Placement: Placement(pl),
		Player: Player{
			Height:       ph.Height,
			Radius:       ph.Radius,
			Speed:        ph.Speed,
			JumpVelocity: ph.JumpVelocity,
			Gravity:      ph.Gravity,
		},
		Client: Client{
			ServerURL:      "ws://127.0.0.1:8080/ws",
			MoveIntervalMs: 100,
			ErrorMessage:   "Couldn't connect to server",
		},
		Relay: Relay{
			Addr:         ":8080",
			TickMs:       50,
			PingSamples:  10,
			PingEveryMs:  1000,
			ChatHistory:  50,
			MaxChatRunes: 200,
		},
	}
}

// Load reads path over Defaults. The merged document is validated against
// the embedded schema before it is returned.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	// The validator works on plain JSON values.
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return err
	}
	if t.Relay.Seed != "" {
		if err := protocol.CheckSeed(t.Relay.Seed); err != nil {
			return fmt.Errorf("relay.seed: %w", err)
		}
	}
	if t.Terrain.SandLevel < t.Terrain.WaterLevel {
		return fmt.Errorf("terrain.sand_level %v below water_level %v", t.Terrain.SandLevel, t.Terrain.WaterLevel)
	}
	return nil
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("tuning.schema.json", schemaJSON)
})

func (t Tuning) TerrainConfig() terrain.Config {
	tr := t.Terrain
	return terrain.Config{
		Grid: mesh.Grid{Size: tr.Size, Segments: tr.Segments},
		Gen: gen.Params{
			Region:      gen.Layer(tr.Region),
			Low:         gen.Layer(tr.Low),
			High:        gen.Layer(tr.High),
			RegionPower: tr.RegionPower,
			SampleZ:     tr.SampleZ,
			WaterLevel:  tr.WaterLevel,
			SandLevel:   tr.SandLevel,
		},
		Placement: placement.Params(t.Placement),
		Workers:   tr.Workers,
	}
}

func (t Tuning) PhysicsParams() physics.Params {
	return physics.Params{
		Height:       t.Player.Height,
		Radius:       t.Player.Radius,
		Speed:        t.Player.Speed,
		JumpVelocity: t.Player.JumpVelocity,
		Gravity:      t.Player.Gravity,
		Bounds:       t.Terrain.Size,
	}
}

func (r Relay) Tick() time.Duration { return time.Duration(r.TickMs) * time.Millisecond }
func (r Relay) PingEvery() time.Duration { return time.Duration(r.PingEveryMs) * time.Millisecond }

func (c Client) MoveInterval() time.Duration {
	return time.Duration(c.MoveIntervalMs) * time.Millisecond
}
