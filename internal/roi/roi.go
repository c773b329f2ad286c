// Package roi computes the scan area of a document photo: a centred
// rectangle sized as a percentage of the image that is expected to
// contain the PDF417 symbol.
package roi

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// DefaultWidthPct is the default scan-area width in percent of the image width.
	DefaultWidthPct = 70
	// DefaultHeightPct is the default scan-area height in percent of the image height.
	DefaultHeightPct = 15

	minPct = 1
	maxPct = 100
)

// ErrInvalidRegion is matched by every region geometry error.
var ErrInvalidRegion = errors.New("invalid region")

// RegionError describes why a scan area could not be computed.
type RegionError struct {
	Width, Height int
	PctW, PctH    int
	Reason        string
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("invalid region for %dx%d image at %d%%x%d%%: %s",
		e.Width, e.Height, e.PctW, e.PctH, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidRegion.
func (e *RegionError) Unwrap() error { return ErrInvalidRegion }

// Compute returns the centred scan area for an image of size w x h.
// Coordinates are relative to the image origin (0,0).
func Compute(w, h, pctW, pctH int) (image.Rectangle, error) {
	fail := func(reason string) (image.Rectangle, error) {
		return image.Rectangle{}, &RegionError{Width: w, Height: h, PctW: pctW, PctH: pctH, Reason: reason}
	}

	if w <= 0 || h <= 0 {
		return fail("image has no pixels")
	}
	if pctW < minPct || pctW > maxPct {
		return fail(fmt.Sprintf("box width percentage must be in [%d,%d]", minPct, maxPct))
	}
	if pctH < minPct || pctH > maxPct {
		return fail(fmt.Sprintf("box height percentage must be in [%d,%d]", minPct, maxPct))
	}

	boxW := w * pctW / 100
	boxH := h * pctH / 100
	if boxW <= 0 || boxH <= 0 {
		return fail(fmt.Sprintf("box of %dx%d pixels is empty", boxW, boxH))
	}

	left := (w - boxW) / 2
	top := (h - boxH) / 2
	r := image.Rect(left, top, left+boxW, top+boxH)
	if !r.In(image.Rect(0, 0, w, h)) {
		return fail("box exceeds image bounds")
	}
	return r, nil
}

// Extract crops the scan area out of img. The returned image is a fresh
// buffer whose bounds start at (0,0); the rectangle is the scan area in
// img's coordinate space, so its Min is the origin of the crop.
func Extract(img image.Image, pctW, pctH int) (image.Image, image.Rectangle, error) {
	if img == nil {
		return nil, image.Rectangle{}, &RegionError{PctW: pctW, PctH: pctH, Reason: "nil image"}
	}
	b := img.Bounds()
	r, err := Compute(b.Dx(), b.Dy(), pctW, pctH)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	r = r.Add(b.Min)
	return imaging.Crop(img, r), r, nil
}
