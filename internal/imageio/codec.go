// Package imageio decodes uploaded images, draws diagnostic overlays and
// encodes the results for transport.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// MaxPixels caps the decoded image area.
const MaxPixels = 50_000_000

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// ErrDecodeInput is matched by every DecodeInputError.
var ErrDecodeInput = errors.New("unreadable image")

// DecodeInputError reports image bytes that could not be turned into pixels.
type DecodeInputError struct {
	Reason string
	Err    error
}

func (e *DecodeInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDecodeInput, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrDecodeInput, e.Reason)
}

func (e *DecodeInputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecodeInput}
	}
	return []error{ErrDecodeInput, e.Err}
}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Decode turns raw bytes into an image, applying the EXIF orientation of
// JPEG photos. It returns the detected format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeInputError{Reason: "empty input"}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeInputError{Reason: "unknown format", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, &DecodeInputError{Reason: "image has no pixels"}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, format, &DecodeInputError{
			Reason: fmt.Sprintf("image of %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels),
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, &DecodeInputError{Reason: "corrupt " + format, Err: err}
	}
	return img, format, nil
}

// LoadFile reads and decodes an image file.
func LoadFile(path string) (image.Image, string, error) {
	if path == "" {
		return nil, "", &DecodeInputError{Reason: "empty path"}
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: Reading user-provided image file path is expected
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(data)
}
