// Package scan runs the full scan of one document image: scan-area
// extraction, preprocessing, the decoder cascade, AAMVA parsing, the optional
// overlay and usage accounting.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/idscan/internal/aamva"
	"github.com/MeKo-Tech/idscan/internal/cascade"
	"github.com/MeKo-Tech/idscan/internal/imageio"
	"github.com/MeKo-Tech/idscan/internal/pdf"
	"github.com/MeKo-Tech/idscan/internal/preprocess"
	"github.com/MeKo-Tech/idscan/internal/roi"
	"github.com/MeKo-Tech/idscan/internal/stats"
)

// Config holds the service defaults.
type Config struct {
	BoxWidthPct  int
	BoxHeightPct int
	OverlayColor color.Color
	JPEGQuality  int
	RecentScans  int
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		BoxWidthPct:  roi.DefaultWidthPct,
		BoxHeightPct: roi.DefaultHeightPct,
		OverlayColor: imageio.DefaultOverlayColor,
		JPEGQuality:  imageio.DefaultJPEGQuality,
		RecentScans:  stats.DefaultKeep,
	}
}

// Service scans images. It is safe for concurrent use.
type Service struct {
	cascade *cascade.Cascade
	parser  *aamva.Parser
	store   stats.Store
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a service. A nil parser selects the standard field table;
// a nil store selects an in-memory counter.
func NewService(c *cascade.Cascade, parser *aamva.Parser, store stats.Store, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.BoxWidthPct == 0 {
		cfg.BoxWidthPct = def.BoxWidthPct
	}
	if cfg.BoxHeightPct == 0 {
		cfg.BoxHeightPct = def.BoxHeightPct
	}
	if cfg.OverlayColor == nil {
		cfg.OverlayColor = def.OverlayColor
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.RecentScans <= 0 {
		cfg.RecentScans = def.RecentScans
	}
	if parser == nil {
		parser = aamva.NewParser(nil)
	}
	if store == nil {
		store = stats.NewMemoryStore(cfg.RecentScans)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cascade: c, parser: parser, store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Store returns the usage counter.
func (s *Service) Store() stats.Store { return s.store }

// Stats returns the usage snapshot.
func (s *Service) Stats(ctx context.Context) (stats.Summary, error) {
	return stats.Snapshot(ctx, s.store, s.cfg.RecentScans)
}

// Parse maps raw AAMVA text to labelled fields.
func (s *Service) Parse(raw string) *ParseResult {
	return &ParseResult{
		Success: true,
		Data:    s.parser.Parse(raw),
		Fields:  s.parser.Fields(raw),
		RawData: raw,
	}
}

// ScanBytes decodes an uploaded image or PDF and scans it. Unreadable input
// yields an error matching imageio.ErrDecodeInput.
func (s *Service) ScanBytes(ctx context.Context, data []byte, req Request) (*Result, error) {
	if pdf.IsPDF(data) {
		return s.ScanPDF(ctx, data, req)
	}
	img, format, err := imageio.Decode(data)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("decoded upload", "format", format, "bounds", img.Bounds().String())
	return s.ScanImage(ctx, img, req)
}

// ScanPDF scans each image embedded in a PDF in page order and returns the
// first success, or the last failure when no page decodes.
func (s *Service) ScanPDF(ctx context.Context, data []byte, req Request) (*Result, error) {
	pages, err := pdf.ExtractImages(ctx, data, req.Pages)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &imageio.DecodeInputError{Reason: "unreadable PDF", Err: err}
	}

	req.RequestID = requestID(req.RequestID)
	var last *Result
	for _, page := range pages {
		res, err := s.ScanImage(ctx, page.Image, req)
		if err != nil {
			if errors.Is(err, roi.ErrInvalidRegion) {
				s.logger.Debug("skipping pdf image", "page", page.Number, "error", err)
				continue
			}
			return nil, err
		}
		res.Page = page.Number
		if res.Success {
			return res, nil
		}
		last = res
	}
	if last == nil {
		return nil, &imageio.DecodeInputError{Reason: "no scannable image in PDF", Err: pdf.ErrNoImages}
	}
	return last, nil
}

// ScanImage scans a decoded image.
func (s *Service) ScanImage(ctx context.Context, img image.Image, req Request) (*Result, error) {
	start := time.Now()
	pctW, pctH := req.BoxWidthPct, req.BoxHeightPct
	if pctW == 0 {
		pctW = s.cfg.BoxWidthPct
	}
	if pctH == 0 {
		pctH = s.cfg.BoxHeightPct
	}

	area, rect, err := roi.Extract(img, pctW, pctH)
	if err != nil {
		return nil, err
	}

	out, err := s.cascade.Run(ctx, preprocess.New(area), rect.Min)
	if err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	res := &Result{
		Success:   out.Found(),
		ScanArea:  BoxFromRect(rect),
		RequestID: requestID(req.RequestID),
		Attempts:  out.Attempts,
	}

	annotations := []imageio.Annotation{{Rect: rect, Label: imageio.ScanAreaLabel, Thickness: 3}}
	if out.Found() {
		bbox := BoxFromRect(out.BBox)
		res.Data = s.parser.Parse(out.Text)
		res.RawData = out.Text
		res.Method = out.Method
		res.Variant = out.Variant
		res.BoundingBox = &bbox
		annotations = append(annotations, imageio.Annotation{
			Rect: out.BBox, Label: imageio.SymbolLabel(out.Method), Thickness: 3,
		})

		if err := s.store.Increment(ctx, s.now()); err != nil {
			s.logger.Warn("failed to record scan", "request_id", res.RequestID, "error", err)
		}
	} else {
		res.Message = out.Message
		res.BackendAvailability = out.Availability
	}

	if req.Overlay {
		annotated := imageio.Annotate(img, s.cfg.OverlayColor, annotations...)
		encoded, err := imageio.EncodeBase64JPEG(annotated, s.cfg.JPEGQuality)
		if err != nil {
			s.logger.Warn("failed to encode overlay", "request_id", res.RequestID, "error", err)
		} else {
			res.ImageBase64 = encoded
		}
	}

	s.logger.Info("scan finished",
		"request_id", res.RequestID,
		"success", res.Success,
		"method", res.Method,
		"fields", len(res.Data),
		"duration", time.Since(start))
	return res, nil
}

func requestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
