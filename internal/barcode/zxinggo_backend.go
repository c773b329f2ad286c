package barcode

import (
	"context"
	"fmt"
	"image"
	"slices"

	zxinggo "github.com/ericlevine/zxinggo"
	"github.com/ericlevine/zxinggo/bitutil"
	"github.com/ericlevine/zxinggo/pdf417"

	"github.com/MeKo-Tech/idscan/internal/preprocess"
)

// PDF417Backend decodes PDF417 symbols with zxinggo. Other symbologies
// are ignored.
type PDF417Backend struct{}

// NewPDF417Backend returns the zxinggo-backed PDF417 decoder.
func NewPDF417Backend() *PDF417Backend { return &PDF417Backend{} }

// Decode implements Backend. A symbol that cannot be located or corrected
// is reported as no result; a panic inside zxinggo is reported as an error.
func (b *PDF417Backend) Decode(ctx context.Context, img image.Image, opts Options) (out []Result, err error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("barcode: empty image")
	}
	if len(opts.Formats) > 0 && !slices.Contains(opts.Formats, FormatPDF417) {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("barcode: zxinggo panic: %v", r)
		}
	}()

	bitmap := zxinggo.NewBinaryBitmap(newOtsuBinarizer(preprocess.ToGray(img)))
	var reader zxinggo.Reader = pdf417.NewPDF417Reader()
	res, decErr := reader.Decode(bitmap, &zxinggo.DecodeOptions{
		TryHarder:   opts.TryHarder,
		PureBarcode: opts.PureBarcode,
	})
	if decErr != nil || res == nil || res.Text == "" {
		return nil, nil
	}
	return []Result{{Type: FormatPDF417, Value: res.Text, Valid: true}}, nil
}

// grayLuminance serves the pixels of a gray image as a zxinggo
// luminance source.
type grayLuminance struct {
	width, height int
	pix           []byte
}

func newGrayLuminance(g *image.Gray) *grayLuminance {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h)
	for y := 0; y < h; y++ {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(pix[y*w:(y+1)*w], g.Pix[off:off+w])
	}
	return &grayLuminance{width: w, height: h, pix: pix}
}

func (l *grayLuminance) Row(y int, row []byte) []byte {
	if len(row) < l.width {
		row = make([]byte, l.width)
	}
	copy(row, l.pix[y*l.width:(y+1)*l.width])
	return row
}

func (l *grayLuminance) Matrix() []byte { return l.pix }
func (l *grayLuminance) Width() int     { return l.width }
func (l *grayLuminance) Height() int    { return l.height }

// otsuBinarizer splits black from white at the Otsu threshold of the
// whole image, the same threshold the Binary variant uses.
type otsuBinarizer struct {
	source    *grayLuminance
	threshold uint8
}

func newOtsuBinarizer(g *image.Gray) *otsuBinarizer {
	return &otsuBinarizer{
		source:    newGrayLuminance(g),
		threshold: preprocess.Otsu(preprocess.Histogram(g)),
	}
}

func (o *otsuBinarizer) BlackRow(y int, _ *bitutil.BitArray) (*bitutil.BitArray, error) {
	if y < 0 || y >= o.source.height {
		return nil, fmt.Errorf("barcode: row %d out of range", y)
	}
	row := bitutil.NewBitArray(o.source.width)
	line := o.source.pix[y*o.source.width : (y+1)*o.source.width]
	for x, v := range line {
		if v <= o.threshold {
			row.Set(x)
		}
	}
	return row, nil
}

func (o *otsuBinarizer) BlackMatrix() (*bitutil.BitMatrix, error) {
	w, h := o.source.width, o.source.height
	m := bitutil.NewBitMatrix(w, h)
	for y := 0; y < h; y++ {
		line := o.source.pix[y*w : (y+1)*w]
		for x, v := range line {
			if v <= o.threshold {
				m.Set(x, y)
			}
		}
	}
	return m, nil
}

func (o *otsuBinarizer) LuminanceSource() zxinggo.LuminanceSource { return o.source }
func (o *otsuBinarizer) Width() int                               { return o.source.width }
func (o *otsuBinarizer) Height() int                              { return o.source.height }
