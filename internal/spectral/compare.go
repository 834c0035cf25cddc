package spectral

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	histBins   = 256
	binarizeAt = 0.5
)

// Similarity is the breakdown of one comparison.
type Similarity struct {
	SSIM     float64
	RMSE     float64
	NMI      float64
	Combined float64
}

// Compare resizes both images to size×size and scores them. The combined
// score is cbrt(nmi·ssim·(1−rmse)); a negative or undefined product scores 0.
// Identical non-constant images score 2^(1/3).
func Compare(a, b *image.Gray, size int) Similarity {
	if a == nil || b == nil {
		return Similarity{}
	}
	if size < ssimWindow {
		size = DefaultCompareSize
	}
	return compareNormalized(prepare(a, size), prepare(b, size), size)
}

// prepare resizes img and min-max normalises it to [0,1]. A constant image
// keeps its raw gray level.
func prepare(img *image.Gray, size int) []float64 {
	resized := img
	if img.Bounds().Dx() != size || img.Bounds().Dy() != size {
		resized = image.NewGray(image.Rect(0, 0, size, size))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	out := make([]float64, 0, size*size)
	for y := 0; y < size; y++ {
		for _, v := range resized.Pix[y*resized.Stride : y*resized.Stride+size] {
			out = append(out, float64(v))
		}
	}
	lo, hi := floats.Min(out), floats.Max(out)
	if hi-lo == 0 {
		return out
	}
	for i, v := range out {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

func compareNormalized(x, y []float64, size int) Similarity {
	bx := binarize(x)
	by := binarize(y)

	var s Similarity
	s.SSIM = ssim(bx, by, size)

	var se float64
	for i := range bx {
		d := bx[i] - by[i]
		se += d * d
	}
	s.RMSE = math.Sqrt(se / float64(len(bx)))

	ix := binIndices(x, histBins)
	iy := binIndices(y, histBins)
	hx := make([]float64, histBins)
	hy := make([]float64, histBins)
	joint := make([]float64, histBins*histBins)
	for i := range ix {
		hx[ix[i]]++
		hy[iy[i]]++
		joint[ix[i]*histBins+iy[i]]++
	}
	s.NMI = (entropy(hx) + entropy(hy)) / entropy(joint)

	product := s.NMI * s.SSIM * (1 - s.RMSE)
	if math.IsNaN(product) || product < 0 {
		s.Combined = 0
	} else {
		s.Combined = math.Pow(product, 1.0/3)
	}
	if math.IsNaN(s.Combined) || math.IsInf(s.Combined, 0) {
		s.Combined = 0
	}
	return s
}

func binarize(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if x >= binarizeAt {
			out[i] = 1
		}
	}
	return out
}

// ssim is the mean structural similarity of two images with unit data range,
// using a uniform 7×7 window with sample covariance. Windows that would run
// off the edge are excluded.
func ssim(x, y []float64, size int) float64 {
	const np = ssimWindow * ssimWindow
	const covNorm = float64(np) / float64(np-1)
	const pad = (ssimWindow - 1) / 2
	c1 := ssimK1 * ssimK1
	c2 := ssimK2 * ssimK2

	xx := make([]float64, len(x))
	yy := make([]float64, len(x))
	xy := make([]float64, len(x))
	for i := range x {
		xx[i] = x[i] * x[i]
		yy[i] = y[i] * y[i]
		xy[i] = x[i] * y[i]
	}
	sx, sy := integral(x, size), integral(y, size)
	sxx, syy, sxy := integral(xx, size), integral(yy, size), integral(xy, size)

	var total float64
	count := 0
	for r := pad; r < size-pad; r++ {
		for c := pad; c < size-pad; c++ {
			r0, c0, r1, c1w := r-pad, c-pad, r+pad+1, c+pad+1
			ux := boxSum(sx, size, r0, c0, r1, c1w) / np
			uy := boxSum(sy, size, r0, c0, r1, c1w) / np
			uxx := boxSum(sxx, size, r0, c0, r1, c1w) / np
			uyy := boxSum(syy, size, r0, c0, r1, c1w) / np
			uxy := boxSum(sxy, size, r0, c0, r1, c1w) / np

			vx := covNorm * (uxx - ux*ux)
			vy := covNorm * (uyy - uy*uy)
			vxy := covNorm * (uxy - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			count++
		}
	}
	return total / float64(count)
}

// integral returns the (size+1)² summed-area table of v.
func integral(v []float64, size int) []float64 {
	stride := size + 1
	out := make([]float64, stride*stride)
	for r := 0; r < size; r++ {
		var row float64
		for c := 0; c < size; c++ {
			row += v[r*size+c]
			out[(r+1)*stride+c+1] = out[r*stride+c+1] + row
		}
	}
	return out
}

func boxSum(s []float64, size, r0, c0, r1, c1 int) float64 {
	stride := size + 1
	return s[r1*stride+c1] - s[r0*stride+c1] - s[r1*stride+c0] + s[r0*stride+c0]
}

// binIndices assigns each value to one of n equal-width bins spanning its
// min..max, widened by half a unit each side when the data is constant. The
// last bin is closed on the right.
func binIndices(v []float64, n int) []int {
	lo, hi := floats.Min(v), floats.Max(v)
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	step := (hi - lo) / float64(n)
	edge := func(i int) float64 {
		if i == n {
			return hi
		}
		return lo + float64(i)*step
	}
	norm := float64(n) / (hi - lo)

	out := make([]int, len(v))
	for i, x := range v {
		idx := int((x - lo) * norm)
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}
		if x < edge(idx) && idx > 0 {
			idx--
		} else if idx != n-1 && x >= edge(idx+1) {
			idx++
		}
		out[i] = idx
	}
	return out
}

// entropy is the natural-log Shannon entropy of a histogram of counts.
func entropy(counts []float64) float64 {
	total := floats.Sum(counts)
	if total == 0 {
		return 0
	}
	p := make([]float64, len(counts))
	floats.ScaleTo(p, 1/total, counts)
	return stat.Entropy(p)
}
