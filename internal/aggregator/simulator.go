package aggregator

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/guregu/null"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/models"
)

// SimulatorConfig describes the synthetic apparatus
type SimulatorConfig struct {
	InletPPM      float64 // position 1 baseline
	CaptureRatio  float64 // share of CO2 removed between position 1 and 3, 0..1
	Noise         float64 // standard deviation of sensor noise in ppm
	AirflowM3     float64 // air volume passing per interval
	DropoutChance float64 // probability that one sensor reports nothing, 0..1
}

// DefaultSimulatorConfig returns default simulator configuration
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		InletPPM:      450,
		CaptureRatio:  0.3,
		Noise:         5,
		AirflowM3:     0.5,
		DropoutChance: 0.02,
	}
}

// co2DensityKgPerM3 is the density of CO2 at 25 °C and 1 atm
const co2DensityKgPerM3 = 1.808

// Simulator produces readings shaped like the ingestion system's rows
type Simulator struct {
	config SimulatorConfig
	rng    *rand.Rand
	nextID int64
}

// NewSimulator creates a simulator; equal seeds give equal sequences
func NewSimulator(config SimulatorConfig, seed uint64, firstID int64) *Simulator {
	return &Simulator{
		config: config,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		nextID: firstID,
	}
}

// Next returns the reading sampled at ts
func (s *Simulator) Next(ts time.Time) models.Reading {
	c := s.config

	// slow daily swing around the baseline
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	inlet := c.InletPPM + 25*math.Sin(2*math.Pi*hour/24)

	p1 := inlet + s.rng.NormFloat64()*c.Noise
	p2 := inlet*(1-c.CaptureRatio/2) + s.rng.NormFloat64()*c.Noise
	p3 := inlet*(1-c.CaptureRatio) + s.rng.NormFloat64()*c.Noise

	r := models.Reading{
		ID:        s.nextID,
		Timestamp: ts.UTC(),
		Position1: s.sensor(p1),
		Position2: s.sensor(p2),
		Position3: s.sensor(p3),
	}
	s.nextID++

	r.ReducedPPMInterval, r.EfficiencyPercentage, r.ReducedKg = Derive(r.Position1, r.Position3, c.AirflowM3)
	return r
}

// NextEnvironment returns the pH and energy sample taken at ts
func (s *Simulator) NextEnvironment(id int64, ts time.Time) models.EnvironmentReading {
	return models.EnvironmentReading{
		ID:            id,
		Timestamp:     ts.UTC(),
		PhWolffia:     null.FloatFrom(round(6.8+s.rng.NormFloat64()*0.15, 2)),
		PhShells:      null.FloatFrom(round(7.9+s.rng.NormFloat64()*0.1, 2)),
		EnergyUsedKwh: null.FloatFrom(round(0.02+math.Abs(s.rng.NormFloat64())*0.005, 4)),
	}
}

func (s *Simulator) sensor(v float64) null.Float {
	if s.rng.Float64() < s.config.DropoutChance {
		return null.Float{}
	}
	return null.FloatFrom(round(v, 2))
}

// Derive computes the reduction metrics from the inlet and outlet
// concentrations. Any missing input leaves every metric null.
func Derive(inlet, outlet null.Float, airflowM3 float64) (reducedPPM, efficiency null.Float, kg decimal.NullDecimal) {
	if !inlet.Valid || !outlet.Valid || inlet.Float64 <= 0 {
		return null.Float{}, null.Float{}, decimal.NullDecimal{}
	}

	reduced := inlet.Float64 - outlet.Float64
	reducedPPM = null.FloatFrom(round(reduced, 2))
	efficiency = null.FloatFrom(round(reduced/inlet.Float64*100, 2))

	mass := decimal.NewFromFloat(reduced).
		Mul(decimal.New(1, -6)).
		Mul(decimal.NewFromFloat(airflowM3)).
		Mul(decimal.NewFromFloat(co2DensityKgPerM3)).
		Round(8)
	kg = decimal.NullDecimal{Decimal: mass, Valid: true}
	return reducedPPM, efficiency, kg
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
