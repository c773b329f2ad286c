package preprocess

import (
	"image"
	"image/draw"
	"sync"
)

// Pipeline owns the variants derived from one scan area.
//
// A Pipeline is safe for concurrent use: a strategy that outlives its time
// budget may still be reading variants while the next one starts.
type Pipeline struct {
	src image.Image

	once      [numVariants]sync.Once
	images    [numVariants]image.Image
	computed  [numVariants]bool
	mu        sync.Mutex
	threshold uint8
}

// New creates a pipeline over the given scan area. The image must not be
// modified by the caller afterwards.
func New(roi image.Image) *Pipeline {
	return &Pipeline{src: roi}
}

// Bounds returns the bounds shared by every variant.
func (p *Pipeline) Bounds() image.Rectangle { return p.src.Bounds() }

// Image returns the requested variant, computing it on first use.
func (p *Pipeline) Image(v Variant) image.Image {
	if v < 0 || v >= numVariants {
		return nil
	}
	p.once[v].Do(func() {
		img := p.build(v)
		p.mu.Lock()
		p.images[v] = img
		p.computed[v] = true
		p.mu.Unlock()
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.images[v]
}

// Computed reports which variants have been materialised so far, in sweep order.
func (p *Pipeline) Computed() []Variant {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Variant
	for v := Original; v < numVariants; v++ {
		if p.computed[v] {
			out = append(out, v)
		}
	}
	return out
}

// Threshold returns the Otsu level used for Binary, computing it if needed.
func (p *Pipeline) Threshold() uint8 {
	p.Image(Binary)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threshold
}

func (p *Pipeline) build(v Variant) image.Image {
	switch v {
	case Original:
		return p.src
	case Gray:
		return ToGray(p.src)
	case Binary:
		gray := p.gray()
		t := Otsu(Histogram(gray))
		p.mu.Lock()
		p.threshold = t
		p.mu.Unlock()
		return Threshold(gray, t)
	case Inverted:
		return Invert(p.binary())
	case Dilated:
		return Dilate(p.binary(), 2, 1)
	default:
		return nil
	}
}

func (p *Pipeline) gray() *image.Gray {
	g, _ := p.Image(Gray).(*image.Gray)
	return g
}

func (p *Pipeline) binary() *image.Gray {
	b, _ := p.Image(Binary).(*image.Gray)
	return b
}

// ToGray converts any image to an 8-bit single-channel image with bounds
// starting at the source's Min.
func ToGray(src image.Image) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	draw.Draw(out, b, src, b.Min, draw.Src)
	return out
}
