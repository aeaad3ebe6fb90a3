package scoring

import "fmt"

// Zone is a heart-rate intensity band, 1 (lightest) to 5 (hardest).
type Zone int

const (
	Zone1 Zone = iota + 1
	Zone2
	Zone3
	Zone4
	Zone5
)

// Policy holds the zone classification and point constants.
type Policy struct {
	// Thresholds are the lower bounds of zones 5, 4, 3 and 2 as a fraction
	// of fcMax. Anything below the last threshold is zone 1.
	Thresholds [4]float64

	// Weights are points per second of dwell for zones 1 to 5.
	Weights [5]float64
}

// DefaultPolicy returns the standard 90/80/70/60 thresholds with weights
// 0.5, 1, 2, 3 and 4.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: [4]float64{0.9, 0.8, 0.7, 0.6},
		Weights:    [5]float64{0.5, 1, 2, 3, 4},
	}
}

// NewPolicy builds a Policy from configuration slices.
// Thresholds must be strictly descending within (0, 1]; weights must be
// non-negative.
func NewPolicy(thresholds, weights []float64) (Policy, error) {
	var p Policy
	if len(thresholds) != len(p.Thresholds) {
		return Policy{}, fmt.Errorf("%w: want %d thresholds, got %d", ErrInvalidPolicy, len(p.Thresholds), len(thresholds))
	}
	if len(weights) != len(p.Weights) {
		return Policy{}, fmt.Errorf("%w: want %d weights, got %d", ErrInvalidPolicy, len(p.Weights), len(weights))
	}

	for i, v := range thresholds {
		if v <= 0 || v > 1 {
			return Policy{}, fmt.Errorf("%w: threshold %v out of range", ErrInvalidPolicy, v)
		}
		if i > 0 && v >= thresholds[i-1] {
			return Policy{}, fmt.Errorf("%w: thresholds not strictly descending", ErrInvalidPolicy)
		}
		p.Thresholds[i] = v
	}
	for i, w := range weights {
		if w < 0 {
			return Policy{}, fmt.Errorf("%w: negative weight for zone %d", ErrInvalidPolicy, i+1)
		}
		p.Weights[i] = w
	}
	return p, nil
}

// Classify returns the zone of heartRate relative to fcMax.
func (p Policy) Classify(heartRate uint16, fcMax float64) Zone {
	ratio := float64(heartRate) / fcMax
	for i, t := range p.Thresholds {
		if ratio >= t {
			return Zone5 - Zone(i)
		}
	}
	return Zone1
}

// Weight returns the points per second for z.
func (p Policy) Weight(z Zone) float64 {
	return p.Weights[z-1]
}
