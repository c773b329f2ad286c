package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultOverlayColor is the green used for scan-area and symbol boxes.
var DefaultOverlayColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Annotation is one labelled rectangle in source image coordinates.
type Annotation struct {
	Rect      image.Rectangle
	Label     string
	Thickness int
}

// Annotate returns a copy of img with each annotation drawn on top. The
// source image is not modified.
func Annotate(img image.Image, col color.Color, annotations ...Annotation) *image.NRGBA {
	if col == nil {
		col = DefaultOverlayColor
	}
	canvas := imaging.Clone(img)
	offset := img.Bounds().Min
	for _, a := range annotations {
		r := a.Rect.Sub(offset)
		DrawRect(canvas, r, col, a.Thickness)
		if a.Label != "" {
			drawLabel(canvas, r, a.Label, col)
		}
	}
	return canvas
}

// DrawRect draws the outline of rect onto dst.
func DrawRect(dst draw.Image, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := range thickness {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	for t := range thickness {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}

// drawLabel writes text just above rect, or inside it when there is no
// room above.
func drawLabel(dst draw.Image, rect image.Rectangle, text string, col color.Color) {
	face := basicfont.Face7x13
	y := rect.Min.Y - 4
	if y-face.Ascent < dst.Bounds().Min.Y {
		y = rect.Min.Y + face.Ascent + 2
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(rect.Min.X+2, y),
	}
	d.DrawString(text)
}

// SymbolLabel is the caption drawn next to a decoded symbol.
func SymbolLabel(method string) string {
	return fmt.Sprintf("PDF417 (%s)", method)
}

// ScanAreaLabel is the caption of the scan-area rectangle.
const ScanAreaLabel = "PDF417 Scan Area"

// ParseHexColor parses "#RRGGBB" (the leading # is optional). It returns
// nil for malformed input.
func ParseHexColor(s string) color.Color {
	if s == "" {
		return nil
	}
	if s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return nil
	}
	var rv, gv, bv int
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &rv, &gv, &bv); err != nil {
		return nil
	}
	return color.RGBA{uint8(rv), uint8(gv), uint8(bv), 255} //nolint:gosec // G115: values are parsed from two hex digits
}
