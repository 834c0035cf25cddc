// Package kalman smooths the per-frame soiling score with a scalar Kalman
// filter whose transition and measurement are both identity.
package kalman

const (
	DefaultProcessNoise     = 1e-5
	DefaultMeasurementNoise = 1e-3
)

// Filter is a one-state Kalman filter. The zero value is not usable; call New.
type Filter struct {
	q float64 // process noise variance
	r float64 // measurement noise variance
	x float64 // state estimate
	p float64 // estimate error variance
}

// New returns a filter with x0 = 0 and P0 = 1. Non-positive noise values
// fall back to the defaults.
func New(processNoise, measurementNoise float64) *Filter {
	if processNoise <= 0 {
		processNoise = DefaultProcessNoise
	}
	if measurementNoise <= 0 {
		measurementNoise = DefaultMeasurementNoise
	}
	return &Filter{q: processNoise, r: measurementNoise, x: 0, p: 1}
}

// Predict propagates the estimate one step. With identity transition only the
// error variance grows.
func (f *Filter) Predict() float64 {
	f.p += f.q
	return f.x
}

// Correct folds in measurement z and returns the posterior estimate.
func (f *Filter) Correct(z float64) float64 {
	k := f.p / (f.p + f.r)
	f.x += k * (z - f.x)
	f.p = (1 - k) * f.p
	return f.x
}

// Update runs Predict then Correct.
func (f *Filter) Update(z float64) float64 {
	f.Predict()
	return f.Correct(z)
}

// State returns the current estimate.
func (f *Filter) State() float64 { return f.x }

// Variance returns the current estimate error variance.
func (f *Filter) Variance() float64 { return f.p }
