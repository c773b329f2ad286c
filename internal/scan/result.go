package scan

import (
	"image"

	"github.com/MeKo-Tech/idscan/internal/aamva"
	"github.com/MeKo-Tech/idscan/internal/cascade"
)

// Box is a rectangle in source image pixels.
type Box struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// BoxFromRect converts an image.Rectangle.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect converts the box back to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Request carries per-scan options. Zero percentages select the service
// defaults.
type Request struct {
	BoxWidthPct  int
	BoxHeightPct int
	Overlay      bool
	RequestID    string
	// Pages restricts PDF extraction, e.g. "1-2". Empty means all pages.
	Pages string
}

// Result is the outcome of one scan, shaped for JSON responses.
type Result struct {
	Success             bool              `json:"success" yaml:"success"`
	Data                aamva.Record      `json:"data,omitempty" yaml:"data,omitempty"`
	RawData             string            `json:"raw_data,omitempty" yaml:"raw_data,omitempty"`
	Method              string            `json:"method,omitempty" yaml:"method,omitempty"`
	Variant             string            `json:"variant,omitempty" yaml:"variant,omitempty"`
	BoundingBox         *Box              `json:"bounding_box,omitempty" yaml:"bounding_box,omitempty"`
	ScanArea            Box               `json:"scan_area" yaml:"scan_area"`
	ImageBase64         string            `json:"image_base64,omitempty" yaml:"-"`
	Message             string            `json:"message,omitempty" yaml:"message,omitempty"`
	BackendAvailability map[string]bool   `json:"backend_availability,omitempty" yaml:"backend_availability,omitempty"`
	Page                int               `json:"page,omitempty" yaml:"page,omitempty"`
	RequestID           string            `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Attempts            []cascade.Attempt `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// ParseResult is the response of parsing raw AAMVA text.
type ParseResult struct {
	Success bool          `json:"success" yaml:"success"`
	Data    aamva.Record  `json:"data" yaml:"data"`
	Fields  []aamva.Field `json:"fields,omitempty" yaml:"fields,omitempty"`
	RawData string        `json:"raw_data" yaml:"raw_data"`
}
