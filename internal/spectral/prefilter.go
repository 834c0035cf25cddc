// Package spectral scores how far a camera frame has drifted from a clean
// reference panel by comparing their Fourier magnitude spectra.
package spectral

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	DefaultBrightnessTarget = 100
	DefaultBrightnessCutoff = 150
	DefaultCompareSize      = 300
)

// Options tunes the pre-filter and comparison stages.
type Options struct {
	// BrightnessTarget is the mean channel value frames are scaled to.
	BrightnessTarget float64
	// BrightnessCutoff zeroes any pixel whose HSV value exceeds it.
	BrightnessCutoff uint8
	// CompareSize is the side of the square both spectra are resized to.
	CompareSize int
}

// DefaultOptions matches the values the classifier parameters were fitted
// against.
func DefaultOptions() Options {
	return Options{
		BrightnessTarget: DefaultBrightnessTarget,
		BrightnessCutoff: DefaultBrightnessCutoff,
		CompareSize:      DefaultCompareSize,
	}
}

func (o Options) normalized() Options {
	if o.BrightnessTarget <= 0 {
		o.BrightnessTarget = DefaultBrightnessTarget
	}
	if o.BrightnessCutoff == 0 {
		o.BrightnessCutoff = DefaultBrightnessCutoff
	}
	if o.CompareSize < ssimWindow {
		o.CompareSize = DefaultCompareSize
	}
	return o
}

// Prefilter runs brightness normalisation, glare suppression, grayscale
// conversion and histogram equalisation.
func Prefilter(img image.Image, opts Options) *image.Gray {
	opts = opts.normalized()
	rgba := toRGBA(img)
	NormalizeBrightness(rgba, opts.BrightnessTarget)
	SuppressGlare(rgba, opts.BrightnessCutoff)
	return Equalize(Grayscale(rgba))
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// NormalizeBrightness scales every colour channel so the mean channel value
// becomes target, saturating at 255. An all-black image is left alone.
func NormalizeBrightness(img *image.RGBA, target float64) {
	var sum float64
	var n int
	forEachPixel(img, func(p []uint8) {
		sum += float64(p[0]) + float64(p[1]) + float64(p[2])
		n += 3
	})
	if n == 0 || sum == 0 {
		return
	}
	alpha := target / (sum / float64(n))
	forEachPixel(img, func(p []uint8) {
		for c := 0; c < 3; c++ {
			p[c] = saturate(math.Abs(float64(p[c]) * alpha))
		}
	})
}

// SuppressGlare blacks out pixels whose HSV value channel, the maximum of
// R, G and B, is above cutoff.
func SuppressGlare(img *image.RGBA, cutoff uint8) {
	forEachPixel(img, func(p []uint8) {
		if max(p[0], p[1], p[2]) > cutoff {
			p[0], p[1], p[2] = 0, 0, 0
		}
	})
}

// Grayscale converts with the BT.601 luma weights in 14-bit fixed point.
func Grayscale(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*b.Dx()]
		out := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		for x := range out {
			r, g, bl := uint32(row[4*x]), uint32(row[4*x+1]), uint32(row[4*x+2])
			out[x] = uint8((r*4899 + g*9617 + bl*1868 + 1<<13) >> 14)
		}
	}
	return gray
}

// Equalize spreads the gray levels so the cumulative histogram is roughly
// linear. The lowest occupied level maps to 0. A single-level image is
// returned unchanged.
func Equalize(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	total := b.Dx() * b.Dy()
	if total == 0 {
		return out
	}

	var hist [256]int
	for y := 0; y < b.Dy(); y++ {
		for _, v := range img.Pix[y*img.Stride : y*img.Stride+b.Dx()] {
			hist[v]++
		}
	}

	first := 0
	for hist[first] == 0 {
		first++
	}
	var lut [256]uint8
	if hist[first] == total {
		for i := range lut {
			lut[i] = uint8(first)
		}
	} else {
		scale := 255.0 / float64(total-hist[first])
		sum := 0
		for i := first + 1; i < 256; i++ {
			sum += hist[i]
			lut[i] = saturate(float64(sum) * scale)
		}
	}

	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x, v := range src {
			dst[x] = lut[v]
		}
	}
	return out
}

func forEachPixel(img *image.RGBA, fn func(p []uint8)) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*b.Dx()]
		for x := 0; x < b.Dx(); x++ {
			fn(row[4*x : 4*x+4])
		}
	}
}

// saturate rounds half to even and clamps to a byte.
func saturate(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
