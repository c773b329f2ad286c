package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/pdf417"
	"github.com/boombuler/barcode/qr"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CreateTestImage creates a uniform image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// PDF417Symbol renders payload as a PDF417 symbol with every module
// scale pixels wide.
func PDF417Symbol(t *testing.T, payload string, scale int) image.Image {
	t.Helper()

	img, err := RenderPDF417(payload, scale)
	require.NoError(t, err, "Failed to render PDF417 symbol")
	return img
}

// RenderPDF417 is PDF417Symbol for callers without a *testing.T.
func RenderPDF417(payload string, scale int) (image.Image, error) {
	bc, err := pdf417.Encode(payload, 2)
	if err != nil {
		return nil, err
	}
	b := bc.Bounds()
	return barcode.Scale(bc, b.Dx()*scale, b.Dy()*scale)
}

// QRSymbol renders payload as a QR code with every module scale pixels wide.
func QRSymbol(t *testing.T, payload string, scale int) image.Image {
	t.Helper()

	bc, err := qr.Encode(payload, qr.M, qr.Auto)
	require.NoError(t, err, "Failed to encode QR symbol")
	return scaleSymbol(t, bc, scale)
}

func scaleSymbol(t *testing.T, bc barcode.Barcode, scale int) image.Image {
	t.Helper()

	b := bc.Bounds()
	scaled, err := barcode.Scale(bc, b.Dx()*scale, b.Dy()*scale)
	require.NoError(t, err, "Failed to scale symbol")
	return scaled
}

// DocumentWithSymbol places symbol in the centre of a white card of the
// given size and writes a caption above it, roughly like the back of a
// driver's license.
func DocumentWithSymbol(symbol image.Image, width, height int) *image.NRGBA {
	card := imaging.New(width, height, color.White)
	sb := symbol.Bounds()
	at := image.Pt((width-sb.Dx())/2, (height-sb.Dy())/2)
	card = imaging.Paste(card, symbol, at)

	drawer := &font.Drawer{
		Dst:  card,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 20),
	}
	drawer.DrawString("SAMPLE IDENTIFICATION CARD")
	return card
}

// EncodePNG returns img as PNG bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// EncodeJPEG returns img as JPEG bytes.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}), "Failed to encode JPEG image")
	return buf.Bytes()
}
