package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/aamva"
	"github.com/MeKo-Tech/idscan/internal/imageio"
	"github.com/MeKo-Tech/idscan/internal/roi"
	"github.com/MeKo-Tech/idscan/internal/scan"
	"github.com/MeKo-Tech/idscan/internal/stats"
)

// fakeScanner records requests and returns canned results.
type fakeScanner struct {
	mu       sync.Mutex
	requests []scan.Request
	payloads [][]byte
	result   *scan.Result
	err      error
	summary  stats.Summary
	statsErr error
}

func (f *fakeScanner) ScanBytes(_ context.Context, data []byte, req scan.Request) (*scan.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.payloads = append(f.payloads, data)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.RequestID = req.RequestID
	return &res, nil
}

func (f *fakeScanner) Parse(raw string) *scan.ParseResult {
	p := aamva.NewParser(nil)
	return &scan.ParseResult{Success: true, Data: p.Parse(raw), Fields: p.Fields(raw), RawData: raw}
}

func (f *fakeScanner) Stats(context.Context) (stats.Summary, error) {
	return f.summary, f.statsErr
}

func (f *fakeScanner) lastRequest(t *testing.T) scan.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func (f *fakeScanner) payload(t *testing.T, i int) []byte {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.payloads), i)
	return f.payloads[i]
}

func (f *fakeScanner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func foundResult() *scan.Result {
	return &scan.Result{
		Success:     true,
		Data:        aamva.Record{"Last Name": "SMITH", "First Name": "JOHN"},
		RawData:     "DCSSMITH\nDACJOHN\n",
		Method:      "high_accuracy",
		BoundingBox: &scan.Box{X: 10, Y: 20, Width: 100, Height: 40},
		ScanArea:    scan.Box{X: 5, Y: 5, Width: 200, Height: 60},
	}
}

func newTestServer(t *testing.T, fs *fakeScanner, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{Host: "localhost", Port: 0, OverlayEnabled: true, Version: "test"}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, fs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func multipartBody(t *testing.T, field string, data []byte, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, "license.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func doScan(t *testing.T, s *Server, field string, values map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, []byte("image-bytes"), values)
	req := httptest.NewRequest(http.MethodPost, "/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresScanner(t *testing.T) {
	_, err := NewServer(Config{}, nil, nil)
	require.Error(t, err)
}

func TestNewServer_Defaults(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, nil)
	assert.Equal(t, int64(16), s.maxUploadMB)
	assert.Equal(t, "*", s.corsOrigin)
	assert.Nil(t, s.rateLimiter)
	assert.Equal(t, "localhost:0", s.cfg.Addr())
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIndexHandler(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "idscan", info.Name)
	assert.Contains(t, info.Endpoints, "POST /scan")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanHandler_Success(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	s := newTestServer(t, fs, nil)

	rec := doScan(t, s, "image", map[string]string{"box_width": "50", "box_height": "20"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res scan.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "SMITH", res.Data["Last Name"])
	assert.Equal(t, &scan.Box{X: 10, Y: 20, Width: 100, Height: 40}, res.BoundingBox)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, res.RequestID, rec.Header().Get(RequestIDHeader))

	req := fs.lastRequest(t)
	assert.Equal(t, 50, req.BoxWidthPct)
	assert.Equal(t, 20, req.BoxHeightPct)
	assert.True(t, req.Overlay)
	assert.Equal(t, []byte("image-bytes"), fs.payload(t, 0))
}

func TestScanHandler_FileFieldFallback(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	s := newTestServer(t, fs, nil)

	rec := doScan(t, s, "file", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := fs.lastRequest(t)
	assert.Zero(t, req.BoxWidthPct)
	assert.Zero(t, req.BoxHeightPct)
}

func TestScanHandler_PropagatesRequestID(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	s := newTestServer(t, fs, nil)

	body, contentType := multipartBody(t, "image", []byte("x"), nil)
	req := httptest.NewRequest(http.MethodPost, "/scan", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", fs.lastRequest(t).RequestID)
}

func TestScanHandler_Overlay(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		value   string
		want    bool
	}{
		{"default on", true, "", true},
		{"client off", true, "false", false},
		{"server off", false, "true", false},
		{"server off default", false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeScanner{result: foundResult()}
			s := newTestServer(t, fs, func(c *Config) { c.OverlayEnabled = tt.enabled })

			values := map[string]string{}
			if tt.value != "" {
				values["overlay"] = tt.value
			}
			rec := doScan(t, s, "image", values)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, fs.lastRequest(t).Overlay)
		})
	}
}

func TestScanHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		values map[string]string
		want   string
	}{
		{"no file", "", nil, "No image uploaded"},
		{"bad width", "image", map[string]string{"box_width": "wide"}, "box_width"},
		{"width out of range", "image", map[string]string{"box_width": "150"}, "box_width"},
		{"bad height", "image", map[string]string{"box_height": "0"}, "box_height"},
		{"bad overlay", "image", map[string]string{"overlay": "maybe"}, "overlay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeScanner{result: foundResult()}
			s := newTestServer(t, fs, nil)

			rec := doScan(t, s, tt.field, tt.values)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.want)
			assert.Zero(t, fs.calls())
		})
	}
}

func TestScanHandler_NotMultipart(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScanHandler_TooLarge(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	s := newTestServer(t, fs, func(c *Config) { c.MaxUploadMB = 1 })

	body, contentType := multipartBody(t, "image", bytes.Repeat([]byte{0xAB}, 2*1024*1024), nil)
	req := httptest.NewRequest(http.MethodPost, "/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, fs.calls())
}

func TestScanHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid region", &roi.RegionError{Reason: "empty"}, http.StatusBadRequest, "invalid region"},
		{"unreadable", &imageio.DecodeInputError{Reason: "unknown format"}, http.StatusBadRequest, unreadableImageMessage},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "Scan timed out"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "Scan failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeScanner{err: tt.err}, nil)

			rec := doScan(t, s, "image", nil)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.message)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestScanHandler_NotFoundIsOK(t *testing.T) {
	fs := &fakeScanner{result: &scan.Result{
		Success:             false,
		Message:             "No PDF417 barcode found",
		BackendAvailability: map[string]bool{"high_accuracy": true},
	}}
	s := newTestServer(t, fs, nil)

	rec := doScan(t, s, "image", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body, "data")
	assert.Contains(t, body, "backend_availability")
}

func TestParseHandler(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, nil)

	t.Run("raw text", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader("DCSSMITH\nDACJOHN\n"))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res scan.ParseResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.Success)
		assert.Len(t, res.Data, 2)
	})

	t.Run("json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader(`{"text":"DCSSMITH\nDBB01011990\n"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res scan.ParseResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "SMITH", res.RawData[3:8])
		assert.Len(t, res.Fields, 2)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader(`{"text":`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/parse", strings.NewReader("  ")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/parse", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestStatsHandler(t *testing.T) {
	fs := &fakeScanner{summary: stats.Summary{
		TotalScans: 4,
		LastScans:  []string{"2024-05-10T12:00:00Z", "2024-05-10T12:01:00Z"},
	}}
	s := newTestServer(t, fs, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan-stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"total_scans":4,"last_scans":["2024-05-10T12:00:00Z","2024-05-10T12:01:00Z"]}`,
		rec.Body.String())

	fs.statsErr = errors.New("disk gone")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan-stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeScanner{result: foundResult()}, nil)
	doScan(t, s, "image", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "idscan_scan_requests_total")
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, func(c *Config) {
		c.Host = "127.0.0.1"
		c.ShutdownTimeout = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()
	cancel()

	assert.NoError(t, <-errCh)
}
