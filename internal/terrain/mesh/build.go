package mesh

import (
	"context"
	"runtime"
	"sync"

	"balloonworld.dev/internal/terrain/gen"
	"balloonworld.dev/internal/terrain/placement"
)

// Geometry is the static description of one generated world. It is never
// mutated after Build returns.
type Geometry struct {
	Grid       Grid
	Heights    []float32
	Biomes     []gen.Biome
	Placements []placement.PlacedObject
}

// Build samples every vertex and resolves placements. Sampling and candidate
// rolls run on workers in row bands; acceptance then runs sequentially in
// traversal order, so the output equals a single-threaded pass.
func Build(ctx context.Context, g Grid, synth *gen.Synthesizer, placer *placement.Placer, workers int) (*Geometry, error) {
	n := g.Len()
	geo := &Geometry{
		Grid:    g,
		Heights: make([]float32, n),
		Biomes:  make([]gen.Biome, n),
	}
	if n == 0 {
		return geo, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cols := g.Columns()
	if workers > cols {
		workers = cols
	}

	vertices := make([]placement.Vertex, n)
	candidates := make([]bool, n)

	rows := make(chan int, cols)
	for r := 0; r < cols; r++ {
		rows <- r
	}
	close(rows)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range rows {
				if ctx.Err() != nil {
					return
				}
				for i := r * cols; i < (r+1)*cols; i++ {
					x, z := g.Vertex(i)
					s := synth.Sample(x, z)
					v := placement.Vertex{X: x, Z: z, Height: s.Height, Biome: s.Biome}
					vertices[i] = v
					geo.Heights[i] = float32(s.Height)
					geo.Biomes[i] = s.Biome
					if placer != nil && placer.Eligible(v) {
						candidates[i] = placer.Candidate(x, z)
					}
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if placer != nil {
		geo.Placements = placer.Resolve(vertices, candidates)
	}
	return geo, nil
}
