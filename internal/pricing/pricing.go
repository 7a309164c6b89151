// Package pricing converts a team's aggregate inflow into a bounded price.
//
// The inflow is normalized by the expected inflow per time slice
// (E1 = N * C1 / T), compressed sub-linearly with a root curve, and clipped
// to a band around the team's reference price:
//
//	d1 = I / E1
//	r1 = d1 ^ gamma
//	m1 = clip(r1, L1, U1)
//	p1 = round(p0 * m1)
//
// The result never leaves [round(p0*L1), round(p0*U1)] regardless of how
// much money flows in. L2/U2 and C2 describe a second pricing round that is
// carried in configuration only.
package pricing

import (
	"errors"
	"math"
)

var (
	// ErrInvalidParams is returned by Validate for unusable parameters.
	ErrInvalidParams = errors.New("pricing: invalid parameters")
)

// Round1 identifies the only pricing round the scheduler computes.
const Round1 int16 = 1

// Params holds the pricing configuration. Keys match the persisted
// configuration table (N, T, P0, C1, C2, GAMMA, L1, U1, L2, U2).
type Params struct {
	N     float64 `json:"N" mapstructure:"n"`         // participant count
	T     float64 `json:"T" mapstructure:"t"`         // time slices
	P0    float64 `json:"P0" mapstructure:"p0"`       // fallback reference price
	C1    float64 `json:"C1" mapstructure:"c1"`       // expected capital per participant, round 1
	C2    float64 `json:"C2" mapstructure:"c2"`       // expected capital per participant, round 2
	Gamma float64 `json:"GAMMA" mapstructure:"gamma"` // compression exponent
	L1    float64 `json:"L1" mapstructure:"l1"`
	U1    float64 `json:"U1" mapstructure:"u1"`
	L2    float64 `json:"L2" mapstructure:"l2"`
	U2    float64 `json:"U2" mapstructure:"u2"`
}

// DefaultParams returns the built-in configuration.
func DefaultParams() Params {
	return Params{
		N:     200,
		T:     6,
		P0:    1000,
		C1:    30000,
		C2:    20000,
		Gamma: 0.5,
		L1:    0.7,
		U1:    1.5,
		L2:    0.8,
		U2:    1.4,
	}
}

// Keys lists the configuration keys in display order.
var Keys = []string{"N", "T", "P0", "C1", "C2", "GAMMA", "L1", "U1", "L2", "U2"}

// E1 is the expected round-1 inflow per time slice.
func (p Params) E1() float64 {
	if p.T == 0 {
		return 0
	}
	return p.N * p.C1 / p.T
}

// Price computes the round-1 price for a team with the given inflow.
// teamP0 is the team's reference price; zero falls back to p.P0.
func (p Params) Price(inflow, teamP0 int64) int64 {
	base := float64(teamP0)
	if teamP0 == 0 {
		base = p.P0
	}

	var d1 float64
	if e1 := p.E1(); e1 > 0 {
		d1 = float64(inflow) / e1
	}
	r1 := RootCompress(d1, p.Gamma)
	m1 := Clip(r1, p.L1, p.U1)
	return int64(math.Round(base * m1))
}

// Bounds returns the lowest and highest price Price can produce for p0.
func (p Params) Bounds(p0 int64) (lo, hi int64) {
	base := float64(p0)
	return int64(math.Round(base * p.L1)), int64(math.Round(base * p.U1))
}

// Validate reports parameters that would make prices meaningless.
func (p Params) Validate() error {
	switch {
	case p.N <= 0, p.T <= 0:
		return ErrInvalidParams
	case p.Gamma <= 0:
		return ErrInvalidParams
	case p.L1 > p.U1, p.L2 > p.U2:
		return ErrInvalidParams
	case p.L1 < 0:
		return ErrInvalidParams
	}
	return nil
}

// Get returns the parameter for a configuration key.
func (p Params) Get(key string) (float64, bool) {
	switch key {
	case "N":
		return p.N, true
	case "T":
		return p.T, true
	case "P0":
		return p.P0, true
	case "C1":
		return p.C1, true
	case "C2":
		return p.C2, true
	case "GAMMA":
		return p.Gamma, true
	case "L1":
		return p.L1, true
	case "U1":
		return p.U1, true
	case "L2":
		return p.L2, true
	case "U2":
		return p.U2, true
	}
	return 0, false
}

// Set assigns the parameter for a configuration key. Unknown keys are
// reported with false and leave p unchanged.
func (p *Params) Set(key string, v float64) bool {
	switch key {
	case "N":
		p.N = v
	case "T":
		p.T = v
	case "P0":
		p.P0 = v
	case "C1":
		p.C1 = v
	case "C2":
		p.C2 = v
	case "GAMMA":
		p.Gamma = v
	case "L1":
		p.L1 = v
	case "U1":
		p.U1 = v
	case "L2":
		p.L2 = v
	case "U2":
		p.U2 = v
	default:
		return false
	}
	return true
}

// RootCompress returns d^gamma for positive d and 0 otherwise.
func RootCompress(d, gamma float64) float64 {
	if d <= 0 || math.IsNaN(d) {
		return 0
	}
	return math.Pow(d, gamma)
}

// Clip clamps x into [lo, hi]. NaN clips to lo.
func Clip(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
