package barcode

import (
	"context"
	"errors"
	"image"
	"strings"
)

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatPDF417
	FormatCode128
	FormatCode39
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

var formatNames = map[Format]string{
	FormatQR:         "qr",
	FormatDataMatrix: "datamatrix",
	FormatAztec:      "aztec",
	FormatPDF417:     "pdf417",
	FormatCode128:    "code128",
	FormatCode39:     "code39",
	FormatEAN8:       "ean8",
	FormatEAN13:      "ean13",
	FormatUPCA:       "upca",
	FormatUPCE:       "upce",
	FormatITF:        "itf",
	FormatCodabar:    "codabar",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParseFormat accepts the usual spellings of a symbology name.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qr":
		return FormatQR, true
	case "datamatrix", "data-matrix":
		return FormatDataMatrix, true
	case "aztec":
		return FormatAztec, true
	case "pdf417", "pdf-417":
		return FormatPDF417, true
	case "code128", "code-128":
		return FormatCode128, true
	case "code39", "code-39":
		return FormatCode39, true
	case "ean8", "ean-8":
		return FormatEAN8, true
	case "ean13", "ean-13":
		return FormatEAN13, true
	case "upca", "upc-a":
		return FormatUPCA, true
	case "upce", "upc-e":
		return FormatUPCE, true
	case "itf", "interleaved2of5", "i2/5":
		return FormatITF, true
	case "codabar":
		return FormatCodabar, true
	default:
		return FormatUnknown, false
	}
}

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means all.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool

	// PureBarcode hints that the image contains nothing but the symbol.
	PureBarcode bool
}

// Point is an integer point in image coordinates.
type Point struct {
	X int
	Y int
}

// Result represents a decoded barcode.
type Result struct {
	Type   Format
	Value  string
	Points []Point         // Corner or key points if available
	BBox   image.Rectangle // Bounding box if derivable from points
	Valid  bool            // Error correction succeeded
}

// Backend is a pluggable barcode decoder implementation.
//
// Decode returns every symbol it could read. "No symbol found" is an empty
// slice, not an error; errors are reserved for failures of the backend
// itself.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

// NewBackend returns the default backend implementation.
func NewBackend() (Backend, error) {
	return &MultiBackend{Backends: []Backend{NewPDF417Backend(), NewZXingBackend()}}, nil
}

// MultiBackend asks each backend in turn and concatenates their results.
// A failing backend does not hide the results of the others.
type MultiBackend struct {
	Backends []Backend
}

// Decode implements Backend.
func (m *MultiBackend) Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error) {
	var (
		out  []Result
		errs []error
	)
	for _, b := range m.Backends {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		results, err := b.Decode(ctx, img, opts)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, results...)
	}
	return out, errors.Join(errs...)
}

// Only keeps the results of the given symbology.
func Only(results []Result, f Format) []Result {
	var out []Result
	for _, r := range results {
		if r.Type == f {
			out = append(out, r)
		}
	}
	return out
}

func rectFromPoints(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
