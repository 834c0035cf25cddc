// Package classify turns a filtered soiling score into a Clean or Dirty
// label by comparing Gaussian densities of two precomputed classes.
package classify

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Label is the classification sent to hardware and written to telemetry.
type Label string

const (
	Clean Label = "Clean"
	// Dirty is encoded as "G"; the actuator board and dashboard both expect it.
	Dirty Label = "G"
)

func (l Label) IsDirty() bool { return l == Dirty }

// Params holds the per-class Gaussian parameters.
type Params struct {
	MeanClean float64 `json:"mean_clean" yaml:"mean_clean"`
	StdClean  float64 `json:"std_clean" yaml:"std_clean"`
	MeanDirty float64 `json:"mean_dirty" yaml:"mean_dirty"`
	StdDirty  float64 `json:"std_dirty" yaml:"std_dirty"`
}

var ErrInvalidParams = errors.New("invalid classifier parameters")

// Validate requires finite means and positive finite deviations.
func (p Params) Validate() error {
	for name, v := range map[string]float64{"mean_clean": p.MeanClean, "mean_dirty": p.MeanDirty} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidParams, name, v)
		}
	}
	for name, v := range map[string]float64{"std_clean": p.StdClean, "std_dirty": p.StdDirty} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidParams, name, v)
		}
	}
	return nil
}

// Densities returns the probability density of score under each class.
func (p Params) Densities(score float64) (clean, dirty float64) {
	clean = distuv.Normal{Mu: p.MeanClean, Sigma: p.StdClean}.Prob(score)
	dirty = distuv.Normal{Mu: p.MeanDirty, Sigma: p.StdDirty}.Prob(score)
	return clean, dirty
}

// Classify returns Clean only when the clean density is strictly greater.
// Ties and NaN densities fall to Dirty so the panel gets cleaned.
func Classify(score float64, p Params) Label {
	clean, dirty := p.Densities(score)
	if clean > dirty {
		return Clean
	}
	return Dirty
}
