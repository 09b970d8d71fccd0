package gen

type Biome uint8

const (
	Water Biome = iota
	Sand
	Land
)

func (b Biome) String() string {
	switch b {
	case Water:
		return "WATER"
	case Sand:
		return "SAND"
	case Land:
		return "LAND"
	default:
		return "UNKNOWN"
	}
}

type TerrainSample struct {
	Height float64
	Biome  Biome
}

func Classify(height, waterLevel, sandLevel float64) Biome {
	switch {
	case height < waterLevel:
		return Water
	case height < sandLevel:
		return Sand
	default:
		return Land
	}
}
