package spectral

import (
	"image"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// zeroMagnitude replaces exact zeros before the log so the result stays finite.
const zeroMagnitude = 1e-10

// Spectrum returns the centred log-magnitude of the 2-D Fourier transform of
// img, stretched to the full 0..255 range. A flat spectrum maps to all zeros.
func Spectrum(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	coeffs := fft2(img)

	mag := make([]float64, w*h)
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < h; y++ {
		sy := (y + h/2) % h
		for x := 0; x < w; x++ {
			sx := (x + w/2) % w
			m := cmplx.Abs(coeffs[y*w+x])
			if m == 0 {
				m = zeroMagnitude
			}
			v := 20 * math.Log(m)
			if math.IsInf(v, 0) || math.IsNaN(v) {
				v = 0
			}
			mag[sy*w+sx] = v
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	scale := 0.0
	if hi-lo > 0 {
		scale = 255 / (hi - lo)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = saturate((mag[y*w+x] - lo) * scale)
		}
	}
	return out
}

// fft2 transforms rows then columns and returns row-major coefficients.
func fft2(img *image.Gray) []complex128 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]complex128, w*h)

	rowFFT := fourier.NewCmplxFFT(w)
	src := make([]complex128, w)
	dst := make([]complex128, w)
	for y := 0; y < h; y++ {
		pix := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range pix {
			src[x] = complex(float64(v), 0)
		}
		rowFFT.Coefficients(dst, src)
		copy(data[y*w:(y+1)*w], dst)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	colOut := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*w+x]
		}
		colFFT.Coefficients(colOut, col)
		for y := 0; y < h; y++ {
			data[y*w+x] = colOut[y]
		}
	}
	return data
}
