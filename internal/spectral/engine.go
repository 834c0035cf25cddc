package spectral

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// Reference is the spectrum of a known-clean panel. It is built once and
// never modified.
type Reference struct {
	spectrum *image.Gray
	prepared []float64
	size     int
}

// NewReference runs img through the same pre-filter and spectrum as live
// frames.
func NewReference(img image.Image, opts Options) *Reference {
	opts = opts.normalized()
	mag := Spectrum(Prefilter(img, opts))
	return &Reference{
		spectrum: mag,
		prepared: prepare(mag, opts.CompareSize),
		size:     opts.CompareSize,
	}
}

// LoadReference decodes a JPEG or PNG still from path.
func LoadReference(path string, opts Options) (*Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode reference image %s: %w", path, err)
	}
	return NewReference(img, opts), nil
}

// Spectrum returns a copy of the reference spectrum.
func (r *Reference) Spectrum() *image.Gray {
	out := *r.spectrum
	out.Pix = append([]uint8(nil), r.spectrum.Pix...)
	return &out
}

// Engine scores live frames against a Reference.
type Engine struct {
	ref  *Reference
	opts Options
}

// NewEngine builds an Engine for ref. opts.CompareSize is ignored: frames are
// always compared at the size ref was prepared with.
func NewEngine(ref *Reference, opts Options) *Engine {
	opts = opts.normalized()
	opts.CompareSize = ref.size
	return &Engine{ref: ref, opts: opts}
}

// Compare runs frame through the pipeline and returns the full breakdown.
func (e *Engine) Compare(frame image.Image) Similarity {
	if frame == nil || frame.Bounds().Empty() {
		return Similarity{}
	}
	mag := Spectrum(Prefilter(frame, e.opts))
	return compareNormalized(e.ref.prepared, prepare(mag, e.ref.size), e.ref.size)
}

// Score returns the combined similarity of frame to the reference.
func (e *Engine) Score(frame image.Image) float64 {
	return e.Compare(frame).Combined
}
