package relay

// pingWindow averages the most recent max round-trip samples.
type pingWindow struct {
	max     int
	samples []float64
}

func (w *pingWindow) add(ms float64) {
	w.samples = append(w.samples, ms)
	if over := len(w.samples) - w.max; over > 0 {
		w.samples = append(w.samples[:0], w.samples[over:]...)
	}
}

func (w *pingWindow) avg() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range w.samples {
		sum += s
	}
	return sum / float64(len(w.samples))
}
