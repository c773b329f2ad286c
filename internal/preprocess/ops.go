package preprocess

import (
	"image"

	"gonum.org/v1/gonum/floats"
)

// Histogram counts the pixels of each intensity level.
func Histogram(g *image.Gray) [256]int {
	var hist [256]int
	if g == nil {
		return hist
	}
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y) : g.PixOffset(b.Min.X, y)+b.Dx()]
		for _, v := range row {
			hist[v]++
		}
	}
	return hist
}

// Otsu returns the global threshold that maximises the between-class
// variance of the histogram. Pixels strictly above the level belong to
// the foreground. An empty or single-level histogram yields 0.
func Otsu(hist [256]int) uint8 {
	weights := make([]float64, 256)
	moments := make([]float64, 256)
	for i, n := range hist {
		weights[i] = float64(n)
		moments[i] = float64(i) * float64(n)
	}

	cumW := make([]float64, 256)
	cumM := make([]float64, 256)
	floats.CumSum(cumW, weights)
	floats.CumSum(cumM, moments)

	total := cumW[255]
	sum := cumM[255]
	if total == 0 {
		return 0
	}

	variance := make([]float64, 256)
	for t := range variance {
		wB := cumW[t]
		wF := total - wB
		if wB == 0 || wF == 0 {
			continue
		}
		meanB := cumM[t] / wB
		meanF := (sum - cumM[t]) / wF
		d := meanB - meanF
		variance[t] = wB * wF * d * d
	}
	if floats.Max(variance) == 0 {
		return 0
	}
	return uint8(floats.MaxIdx(variance))
}

// Threshold maps pixels above t to 255 and the rest to 0.
func Threshold(g *image.Gray, t uint8) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y > t {
				out.Pix[out.PixOffset(x, y)] = 255
			}
		}
	}
	return out
}

// Invert returns the bitwise complement of g.
func Invert(g *image.Gray) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)] = 255 - g.GrayAt(x, y).Y
		}
	}
	return out
}

// Dilate applies a grey-level dilation with a square kernelSize x kernelSize
// structuring element. The anchor sits at (kernelSize/2, kernelSize/2), so
// for even sizes the window extends further up and left. Neighbours outside
// the image are ignored.
func Dilate(g *image.Gray, kernelSize, iterations int) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	copy(out.Pix, grayPix(g))
	if kernelSize <= 1 || iterations <= 0 {
		return out
	}

	lo := -(kernelSize / 2)
	hi := lo + kernelSize - 1

	for i := 0; i < iterations; i++ {
		src := out
		dst := image.NewGray(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				var maxVal uint8
				for ky := lo; ky <= hi; ky++ {
					ny := y + ky
					if ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					for kx := lo; kx <= hi; kx++ {
						nx := x + kx
						if nx < b.Min.X || nx >= b.Max.X {
							continue
						}
						if v := src.Pix[src.PixOffset(nx, ny)]; v > maxVal {
							maxVal = v
						}
					}
				}
				dst.Pix[dst.PixOffset(x, y)] = maxVal
			}
		}
		out = dst
	}
	return out
}

// grayPix returns g's pixels packed with stride equal to its width.
func grayPix(g *image.Gray) []uint8 {
	b := g.Bounds()
	if g.Stride == b.Dx() {
		return g.Pix[:b.Dx()*b.Dy()]
	}
	pix := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := g.PixOffset(b.Min.X, y)
		pix = append(pix, g.Pix[off:off+b.Dx()]...)
	}
	return pix
}
