// Package scoring turns answers into points and participant records into ranked leaderboards.
package scoring

import (
	"fmt"
	"math"
	"time"
)

// Curve selects how the speed factor decays across the answer window.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveExponential Curve = "exponential"
)

// exponentialRate controls how front-loaded the exponential curve is.
const exponentialRate = 3.0

// Policy is a deterministic, speed-weighted correctness scoring rule.
type Policy struct {
	BasePoints int
	Floor      float64 // factor awarded for a correct answer at the very end of the window
	Curve      Curve
}

// DefaultPolicy awards 1000 points for an instant answer, decaying linearly to 500.
func DefaultPolicy() Policy {
	return Policy{BasePoints: 1000, Floor: 0.5, Curve: CurveLinear}
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	if p.BasePoints <= 0 {
		return fmt.Errorf("scoring: base points must be positive, got %d", p.BasePoints)
	}
	if p.Floor < 0 || p.Floor > 1 {
		return fmt.Errorf("scoring: floor must be within [0,1], got %v", p.Floor)
	}
	switch p.Curve {
	case CurveLinear, CurveExponential:
	default:
		return fmt.Errorf("scoring: unknown curve %q", p.Curve)
	}
	return nil
}

// Factor maps a response time to a multiplier in [Floor, 1].
// It is 1 at zero latency, Floor at the limit and monotone non-increasing in between.
func (p Policy) Factor(response, limit time.Duration) float64 {
	if limit <= 0 {
		return 1
	}
	r := float64(response) / float64(limit)
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	span := 1 - p.Floor
	switch p.Curve {
	case CurveExponential:
		lo := math.Exp(-exponentialRate)
		decay := (math.Exp(-exponentialRate*r) - lo) / (1 - lo)
		return p.Floor + span*decay
	default:
		return 1 - span*r
	}
}

// Score returns the points for one answer. Incorrect answers score 0.
// points overrides BasePoints when positive. Responses past the limit score the floor;
// rejecting answers that arrive after the close deadline is the caller's job.
func (p Policy) Score(correct bool, response, limit time.Duration, points int) int {
	if !correct {
		return 0
	}
	base := points
	if base <= 0 {
		base = p.BasePoints
	}
	return int(math.Round(float64(base) * p.Factor(response, limit)))
}
