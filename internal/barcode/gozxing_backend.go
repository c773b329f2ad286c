package barcode

import (
	"context"
	"fmt"
	"image"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// defaultOrder is the reader order used when Options.Formats is empty.
// gozxing ships no PDF417 reader; that symbology is served by PDF417Backend.
var defaultOrder = []Format{
	FormatQR,
	FormatDataMatrix,
	FormatAztec,
	FormatCode128,
	FormatCode39,
	FormatEAN13,
	FormatEAN8,
	FormatUPCA,
	FormatUPCE,
	FormatITF,
	FormatCodabar,
}

// ZXingBackend decodes the matrix and linear symbologies with gozxing,
// trying one reader per requested symbology and collecting every hit.
type ZXingBackend struct{}

// NewZXingBackend returns the gozxing-backed decoder.
func NewZXingBackend() *ZXingBackend { return &ZXingBackend{} }

// Decode implements Backend. Readers that find nothing are skipped; a
// panic inside gozxing is reported as an error.
func (b *ZXingBackend) Decode(ctx context.Context, img image.Image, opts Options) (out []Result, err error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("barcode: empty image")
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("barcode: gozxing panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("barcode: failed to create bitmap: %w", err)
	}

	hints := make(map[gozxing.DecodeHintType]interface{})
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	if opts.PureBarcode {
		hints[gozxing.DecodeHintType_PURE_BARCODE] = true
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = defaultOrder
	}

	origin := img.Bounds().Min
	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		reader := newReader(f)
		if reader == nil {
			continue
		}
		r, decErr := reader.Decode(bmp, hints)
		if decErr != nil || r == nil {
			continue
		}
		out = append(out, normalize(r, origin))
	}
	return out, nil
}

// normalize converts a gozxing result into image coordinates.
func normalize(r *gozxing.Result, origin image.Point) Result {
	pts := r.GetResultPoints()
	var points []Point
	if len(pts) > 0 {
		points = make([]Point, 0, len(pts))
		for _, p := range pts {
			if p == nil {
				continue
			}
			points = append(points, Point{X: origin.X + int(p.GetX()), Y: origin.Y + int(p.GetY())})
		}
	}
	return Result{
		Type:   mapFormatFromZXing(r.GetBarcodeFormat()),
		Value:  r.GetText(),
		Points: points,
		BBox:   rectFromPoints(points),
		Valid:  true,
	}
}

func newReader(f Format) gozxing.Reader {
	switch f {
	case FormatQR:
		return qrcode.NewQRCodeReader()
	case FormatDataMatrix:
		return datamatrix.NewDataMatrixReader()
	case FormatAztec:
		return aztec.NewAztecReader()
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatCode39:
		return oned.NewCode39Reader()
	case FormatEAN13:
		return oned.NewEAN13Reader()
	case FormatEAN8:
		return oned.NewEAN8Reader()
	case FormatUPCA:
		return oned.NewUPCAReader()
	case FormatUPCE:
		return oned.NewUPCEReader()
	case FormatITF:
		return oned.NewITFReader()
	case FormatCodabar:
		return oned.NewCodaBarReader()
	default:
		return nil
	}
}

func mapFormatFromZXing(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return FormatDataMatrix
	case gozxing.BarcodeFormat_AZTEC:
		return FormatAztec
	case gozxing.BarcodeFormat_PDF_417:
		return FormatPDF417
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	case gozxing.BarcodeFormat_ITF:
		return FormatITF
	case gozxing.BarcodeFormat_CODABAR:
		return FormatCodabar
	default:
		return FormatUnknown
	}
}
