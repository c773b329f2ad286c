package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/idscan/internal/barcode"
	"github.com/MeKo-Tech/idscan/internal/cascade"
	"github.com/MeKo-Tech/idscan/internal/imageio"
	"github.com/MeKo-Tech/idscan/internal/preprocess"
	"github.com/MeKo-Tech/idscan/internal/roi"
	"github.com/MeKo-Tech/idscan/internal/stats"
	"github.com/MeKo-Tech/idscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedStrategy reports one PDF417 hit in scan-area coordinates, or nothing.
type fixedStrategy struct {
	text  string
	bbox  image.Rectangle
	calls atomic.Int32
}

func (f *fixedStrategy) Name() string { return cascade.HighAccuracyName }

func (f *fixedStrategy) Attempt(_ context.Context, p *preprocess.Pipeline) ([]cascade.Hit, error) {
	f.calls.Add(1)
	if f.text == "" {
		return nil, nil
	}
	return []cascade.Hit{{
		Result: barcode.Result{
			Type:  barcode.FormatPDF417,
			Value: f.text,
			BBox:  f.bbox.Add(p.Bounds().Min),
			Valid: true,
		},
		Variant: preprocess.Gray,
		Method:  cascade.HighAccuracyName,
	}}, nil
}

type failingStore struct{ stats.MemoryStore }

func (f *failingStore) Increment(context.Context, time.Time) error {
	return errors.New("disk full")
}

func newService(t *testing.T, s cascade.Strategy, store stats.Store) *Service {
	t.Helper()
	c := cascade.New(cascade.Options{
		StrategyTimeout: time.Second,
		Availability:    map[string]bool{cascade.HighAccuracyName: false},
	}, s)
	return NewService(c, nil, store, Config{}, nil)
}

func TestScanImage_Success(t *testing.T) {
	store := stats.NewMemoryStore(3)
	strategy := &fixedStrategy{text: testutil.SampleAAMVA, bbox: image.Rect(10, 5, 110, 45)}
	svc := newService(t, strategy, store)

	img := testutil.CreateTestImage(1000, 800, color.White)
	res, err := svc.ScanImage(context.Background(), img, Request{RequestID: "req-1"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, cascade.HighAccuracyName, res.Method)
	assert.Equal(t, "Gray", res.Variant)
	assert.Equal(t, testutil.SampleAAMVA, res.RawData)
	assert.Equal(t, "SMITH", res.Data["Last Name"])
	assert.Equal(t, "D1234562", res.Data["License Number"])
	assert.Empty(t, res.Message)
	assert.Empty(t, res.ImageBase64)

	// 70% x 15% of 1000x800, centred.
	assert.Equal(t, Box{X: 150, Y: 340, Width: 700, Height: 120}, res.ScanArea)
	require.NotNil(t, res.BoundingBox)
	assert.Equal(t, Box{X: 160, Y: 345, Width: 100, Height: 40}, *res.BoundingBox)

	total, err := store.Total(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestScanImage_NotFound(t *testing.T) {
	store := stats.NewMemoryStore(3)
	svc := newService(t, &fixedStrategy{}, store)

	res, err := svc.ScanImage(context.Background(), testutil.CreateTestImage(400, 300, color.White), Request{})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, cascade.NotFoundMessage, res.Message)
	assert.Equal(t, map[string]bool{cascade.HighAccuracyName: false}, res.BackendAvailability)
	assert.Nil(t, res.BoundingBox)
	assert.Empty(t, res.Data)
	assert.NotEmpty(t, res.RequestID)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "empty", res.Attempts[0].Status)

	total, err := store.Total(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total, "failed scans are not counted")

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, false, doc["success"])
	assert.Contains(t, doc, "backend_availability")
	assert.Contains(t, doc, "scan_area")
	assert.NotContains(t, doc, "data")
}

func TestScanImage_InvalidRegion(t *testing.T) {
	strategy := &fixedStrategy{text: "DAQX"}
	svc := newService(t, strategy, nil)

	_, err := svc.ScanImage(context.Background(), testutil.CreateTestImage(100, 100, color.White),
		Request{BoxWidthPct: 150, BoxHeightPct: 20})
	require.ErrorIs(t, err, roi.ErrInvalidRegion)
	assert.Zero(t, strategy.calls.Load(), "cascade must not run on an invalid region")
}

func TestScanImage_Overlay(t *testing.T) {
	svc := newService(t, &fixedStrategy{text: "DCSROE\n", bbox: image.Rect(0, 0, 20, 10)}, nil)

	res, err := svc.ScanImage(context.Background(), testutil.CreateTestImage(300, 200, color.White),
		Request{Overlay: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.ImageBase64)

	data, err := base64.StdEncoding.DecodeString(res.ImageBase64)
	require.NoError(t, err)
	img, format, err := imageio.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, image.Rect(0, 0, 300, 200), img.Bounds())
}

func TestScanImage_StoreFailureDoesNotFailScan(t *testing.T) {
	svc := newService(t, &fixedStrategy{text: "DAQ123\n", bbox: image.Rect(0, 0, 5, 5)}, &failingStore{})

	res, err := svc.ScanImage(context.Background(), testutil.CreateTestImage(200, 200, color.White), Request{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "123", res.Data["License Number"])
}

func TestScanImage_Cancelled(t *testing.T) {
	svc := newService(t, &fixedStrategy{text: "DAQ1\n"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ScanImage(ctx, testutil.CreateTestImage(200, 200, color.White), Request{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScanBytes_DecodeError(t *testing.T) {
	svc := newService(t, &fixedStrategy{}, nil)

	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
		"bad pdf": []byte("%PDF-1.4\ngarbage"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ScanBytes(context.Background(), data, Request{})
			require.ErrorIs(t, err, imageio.ErrDecodeInput)
		})
	}
}

func TestScanBytes_PNG(t *testing.T) {
	svc := newService(t, &fixedStrategy{text: "DAQ42\nDCSROE\n", bbox: image.Rect(1, 1, 9, 9)}, nil)

	data := testutil.EncodePNG(t, testutil.CreateTestImage(320, 240, color.White))
	res, err := svc.ScanBytes(context.Background(), data, Request{BoxWidthPct: 50, BoxHeightPct: 50})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, Box{X: 80, Y: 60, Width: 160, Height: 120}, res.ScanArea)
	assert.Equal(t, "42", res.Data["License Number"])
	assert.Equal(t, "ROE", res.Data["Last Name"])
}

func TestParse(t *testing.T) {
	svc := newService(t, &fixedStrategy{}, nil)
	res := svc.Parse("DCSROE\nDACJOHN\nDBB01011990\n")
	assert.True(t, res.Success)
	assert.Equal(t, "ROE", res.Data["Last Name"])
	assert.Equal(t, "JOHN", res.Data["First Name"])
	assert.Equal(t, "01011990", res.Data["Date of Birth"])
	assert.Len(t, res.Fields, 3)
}

func TestStats(t *testing.T) {
	svc := newService(t, &fixedStrategy{text: "DAQ1\n", bbox: image.Rect(0, 0, 2, 2)}, nil)
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	svc.now = func() time.Time { return ts }

	for range 2 {
		_, err := svc.ScanImage(context.Background(), testutil.CreateTestImage(100, 100, color.White), Request{})
		require.NoError(t, err)
	}

	sum, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.TotalScans)
	assert.Equal(t, []string{"2024-03-04T05:06:07Z", "2024-03-04T05:06:07Z"}, sum.LastScans)
}

// TestScanImage_RealBackend runs the production cascade over a rendered
// document and requires the symbol to decode.
func TestScanImage_RealBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping backend test in short mode")
	}
	payload := testutil.RenderPayload(map[string]string{"DAQ": "D1234562", "DCS": "SMITH", "DAC": "JANE"})
	symbol := testutil.PDF417Symbol(t, payload, 3)
	doc := testutil.DocumentWithSymbol(symbol, 1200, 800)

	backend, err := barcode.NewBackend()
	require.NoError(t, err)
	c := cascade.Default(backend, cascade.Capabilities{HighAccuracy: true}, cascade.Options{StrategyTimeout: 5 * time.Second})
	svc := NewService(c, nil, nil, Config{BoxWidthPct: 90, BoxHeightPct: 60}, nil)

	first, err := svc.ScanImage(context.Background(), doc, Request{})
	require.NoError(t, err)
	require.True(t, first.Success, "expected the rendered symbol to decode: %s", first.Message)
	assert.Equal(t, "D1234562", first.Data["License Number"])
	assert.Equal(t, "SMITH", first.Data["Last Name"])
	assert.Equal(t, payload, first.RawData)
	assert.NotEmpty(t, first.Method)
	require.NotNil(t, first.BoundingBox)
	assert.False(t, first.BoundingBox.Rect().Empty())
	assert.True(t, first.BoundingBox.Rect().In(first.ScanArea.Rect()),
		"bbox %v outside scan area %v", first.BoundingBox.Rect(), first.ScanArea.Rect())

	second, err := svc.ScanImage(context.Background(), doc, Request{})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, first.Method, second.Method)
	assert.Equal(t, first.RawData, second.RawData)
	assert.Equal(t, first.BoundingBox, second.BoundingBox)
}
