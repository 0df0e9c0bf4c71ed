package route

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"tvroute/internal/hal"
)

// CurvePoint maps a volume percentage to an attenuation in dB.
type CurvePoint struct {
	Percent float64
	DB      float64
}

// DefaultVolumeCurve is the platform's media volume curve.
var DefaultVolumeCurve = []CurvePoint{
	{Percent: 1, DB: -58},
	{Percent: 20, DB: -40},
	{Percent: 60, DB: -17},
	{Percent: 100, DB: 0},
}

// VolumeCurve converts volume indices to dB by piecewise-linear
// interpolation between curve points.
type VolumeCurve struct {
	pl       interp.PiecewiseLinear
	min, max CurvePoint
}

// NewVolumeCurve builds a curve from at least two points with distinct
// percentages.
func NewVolumeCurve(points []CurvePoint) (*VolumeCurve, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("volume curve needs at least 2 points, got %d", len(points))
	}
	pts := append([]CurvePoint(nil), points...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Percent < pts[j].Percent })

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		if i > 0 && p.Percent == pts[i-1].Percent {
			return nil, fmt.Errorf("volume curve has duplicate point at %.1f%%", p.Percent)
		}
		xs[i], ys[i] = p.Percent, p.DB
	}

	vc := &VolumeCurve{min: pts[0], max: pts[len(pts)-1]}
	if err := vc.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("volume curve: %w", err)
	}
	return vc, nil
}

// DB returns the attenuation for index out of maxIndex. Index 0 is mute
// and returns -Inf.
func (vc *VolumeCurve) DB(index, maxIndex int) float64 {
	if index <= 0 || maxIndex <= 0 {
		return math.Inf(-1)
	}
	pct := float64(index) * 100 / float64(maxIndex)
	switch {
	case pct <= vc.min.Percent:
		return vc.min.DB
	case pct >= vc.max.Percent:
		return vc.max.DB
	}
	return vc.pl.Predict(pct)
}

// GainFor computes the gain to apply to port for the given volume. It
// returns false when the port has no gain control.
func (vc *VolumeCurve) GainFor(port hal.Port, index, maxIndex int) (hal.GainConfig, bool) {
	g := port.Gain
	if !g.Controllable() {
		return hal.GainConfig{}, false
	}

	db := vc.DB(index, maxIndex)
	var mb int
	if math.IsInf(db, -1) {
		mb = g.Min
	} else {
		// Snap down to the step grid anchored at Min.
		raw := int(math.Round(db * 100))
		mb = g.Min + ((raw-g.Min)/g.Step)*g.Step
		if raw < g.Min {
			mb = g.Min
		}
	}
	if mb > g.Max {
		mb = g.Max
	}
	if mb < g.Min {
		mb = g.Min
	}

	mask := g.ChannelMask
	if mask == hal.ChannelDefault && port.Active != nil {
		mask = port.Active.Mask
	}
	return hal.GainConfig{
		Index:       0,
		Mode:        hal.GainModeJoint,
		ChannelMask: mask,
		Values:      []int{mb},
	}, true
}
