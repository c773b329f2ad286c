package cascade

import (
	"context"
	"errors"

	"github.com/MeKo-Tech/idscan/internal/barcode"
	"github.com/MeKo-Tech/idscan/internal/preprocess"
)

// Strategy names used as method labels.
const (
	HighAccuracyName    = "high_accuracy"
	GenericDetectorName = "generic_detector"
	VariantSweepName    = "variant_sweep"
)

// Strategy is one way of getting a symbol out of the scan area.
// Implementations may return hits of any symbology; the cascade decides
// which ones qualify.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, p *preprocess.Pipeline) ([]Hit, error)
}

// Hit is a decoded symbol together with where it was found.
type Hit struct {
	Result  barcode.Result
	Variant preprocess.Variant
	Method  string
}

// Qualifies reports whether r is an accepted result: a PDF417 symbol
// whose error correction succeeded.
func Qualifies(r barcode.Result) bool {
	return r.Type == barcode.FormatPDF417 && r.Valid
}

// HighAccuracy runs the PDF417 reader in its most exhaustive mode on the
// Gray variant.
type HighAccuracy struct {
	Backend     barcode.Backend
	PureBarcode bool
}

func (s *HighAccuracy) Name() string { return HighAccuracyName }

func (s *HighAccuracy) Attempt(ctx context.Context, p *preprocess.Pipeline) ([]Hit, error) {
	results, err := s.Backend.Decode(ctx, p.Image(preprocess.Gray), barcode.Options{
		Formats:     []barcode.Format{barcode.FormatPDF417},
		TryHarder:   true,
		PureBarcode: s.PureBarcode,
	})
	return hits(barcode.Only(results, barcode.FormatPDF417), preprocess.Gray, HighAccuracyName), err
}

// GenericDetector runs the backend's readers on the untouched scan area.
// Formats narrows the readers; empty means all.
type GenericDetector struct {
	Backend     barcode.Backend
	Formats     []barcode.Format
	PureBarcode bool
}

func (s *GenericDetector) Name() string { return GenericDetectorName }

func (s *GenericDetector) Attempt(ctx context.Context, p *preprocess.Pipeline) ([]Hit, error) {
	results, err := s.Backend.Decode(ctx, p.Image(preprocess.Original), barcode.Options{
		Formats:     s.Formats,
		PureBarcode: s.PureBarcode,
	})
	return hits(results, preprocess.Original, GenericDetectorName), err
}

// VariantSweep decodes each variant in turn and stops at the first one
// that yields a qualifying symbol. Failures on one variant do not stop the
// sweep.
type VariantSweep struct {
	Backend     barcode.Backend
	Variants    []preprocess.Variant // defaults to preprocess.Variants()
	Formats     []barcode.Format
	PureBarcode bool
}

func (s *VariantSweep) Name() string { return VariantSweepName }

func (s *VariantSweep) Attempt(ctx context.Context, p *preprocess.Pipeline) ([]Hit, error) {
	variants := s.Variants
	if len(variants) == 0 {
		variants = preprocess.Variants()
	}

	var errs []error
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := s.Backend.Decode(ctx, p.Image(v), barcode.Options{
			Formats:     s.Formats,
			PureBarcode: s.PureBarcode,
		})
		for _, h := range hits(results, v, VariantSweepName+":"+v.String()) {
			if Qualifies(h.Result) {
				return []Hit{h}, nil
			}
		}
		if err != nil {
			errs = append(errs, &BackendError{Strategy: VariantSweepName, Variant: v.String(), Err: err})
		}
	}
	return nil, errors.Join(errs...)
}

func hits(results []barcode.Result, v preprocess.Variant, method string) []Hit {
	if len(results) == 0 {
		return nil
	}
	out := make([]Hit, 0, len(results))
	for _, r := range results {
		out = append(out, Hit{Result: r, Variant: v, Method: method})
	}
	return out
}
