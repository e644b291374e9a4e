package sensor

import (
	"math"
	"math/rand"
	"sync"
)

// SimulatedSensor produces a bounded random walk for running the publisher
// without hardware
type SimulatedSensor struct {
	mu          sync.Mutex
	rng         *rand.Rand
	temperature float64
	humidity    float64
}

// NewSimulatedSensor starts the walk at 22°C and 50% humidity
func NewSimulatedSensor(seed int64) *SimulatedSensor {
	return &SimulatedSensor{
		rng:         rand.New(rand.NewSource(seed)),
		temperature: 22,
		humidity:    50,
	}
}

// Read advances the walk by one step
func (s *SimulatedSensor) Read() (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.temperature = clamp(s.temperature+s.rng.NormFloat64()*0.4, 10, 35)
	s.humidity = clamp(s.humidity+s.rng.NormFloat64()*1.5, 20, 90)

	return round1(s.temperature), round1(s.humidity), nil
}

// Close is a no-op
func (s *SimulatedSensor) Close() error {
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
