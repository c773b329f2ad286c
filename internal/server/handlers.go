package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/idscan/internal/imageio"
	"github.com/MeKo-Tech/idscan/internal/roi"
	"github.com/MeKo-Tech/idscan/internal/scan"
)

const (
	// maxParseBytes bounds a raw AAMVA payload accepted by /parse.
	maxParseBytes = 64 * 1024

	unreadableImageMessage = "Uploaded file is not a readable image"
)

// indexHandler describes the service.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, InfoResponse{
		Name:    "idscan",
		Version: s.version,
		Endpoints: map[string]string{
			"POST /scan":      "scan an uploaded image or PDF (multipart field \"image\")",
			"POST /parse":     "parse raw AAMVA text",
			"GET /scan-stats": "usage counters",
			"GET /health":     "health check",
			"GET /metrics":    "Prometheus metrics",
			"GET /ws/scan":    "streaming scans over WebSocket",
		},
	})
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// scanHandler scans an uploaded document.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		s.writeErrorResponse(w, "No image uploaded", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	req, err := s.scanRequest(r)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.scanner.ScanBytes(ctx, data, req)
	if err != nil {
		s.writeScanError(w, req.RequestID, err)
		return
	}
	observeScan("http", res.Success, len(res.Data), time.Since(start).Seconds())

	s.writeJSON(w, http.StatusOK, res)
}

// scanRequest reads the optional form fields of a scan upload.
func (s *Server) scanRequest(r *http.Request) (scan.Request, error) {
	req := scan.Request{
		RequestID: requestIDFrom(r.Context()),
		Overlay:   s.overlayEnabled,
		Pages:     r.FormValue("pages"),
	}

	var err error
	if req.BoxWidthPct, err = formPercent(r, "box_width"); err != nil {
		return req, err
	}
	if req.BoxHeightPct, err = formPercent(r, "box_height"); err != nil {
		return req, err
	}
	if v := r.FormValue("overlay"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.New("overlay must be a boolean")
		}
		req.Overlay = s.overlayEnabled && on
	}
	return req, nil
}

func formPercent(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 100 {
		return 0, errors.New(key + " must be an integer between 1 and 100")
	}
	return n, nil
}

// writeScanError maps scan failures onto HTTP status codes.
func (s *Server) writeScanError(w http.ResponseWriter, requestID string, err error) {
	var status int
	var message string
	switch {
	case errors.Is(err, roi.ErrInvalidRegion):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, imageio.ErrDecodeInput):
		status, message = http.StatusBadRequest, unreadableImageMessage
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "Scan timed out"
	case errors.Is(err, context.Canceled):
		status, message = http.StatusServiceUnavailable, "Scan cancelled"
	default:
		status, message = http.StatusInternalServerError, "Scan failed"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("scan request failed", "request_id", requestID, "error", err)
		scanRequestsTotal.WithLabelValues("http", "error").Inc()
	} else {
		s.logger.Debug("scan request rejected", "request_id", requestID, "error", err)
	}

	s.writeJSON(w, status, ErrorResponse{Success: false, Error: message, RequestID: requestID})
}

// parseHandler parses raw AAMVA text sent as the body or as JSON {"text": ...}.
func (s *Server) parseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParseBytes))
	if err != nil {
		s.writeErrorResponse(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	raw := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &in); err != nil {
			s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		raw = in.Text
	}
	if strings.TrimSpace(raw) == "" {
		s.writeErrorResponse(w, "No text provided", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, s.scanner.Parse(raw))
}

// statsHandler returns the usage counters.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sum, err := s.scanner.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to read scan stats", "error", err)
		s.writeErrorResponse(w, "Failed to read scan stats", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

// writeJSON writes v as a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
