package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/idscan/internal/imageio"
	"github.com/MeKo-Tech/idscan/internal/roi"
	"github.com/MeKo-Tech/idscan/internal/scan"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketScanRequest is a text frame sent by the client. Type "options"
// (or no type) updates the session settings; type "scan" also scans the
// embedded image.
type WebSocketScanRequest struct {
	Type      string `json:"type"`
	Image     []byte `json:"image,omitempty"`
	Pages     string `json:"pages,omitempty"`
	BoxWidth  *int   `json:"box_width,omitempty"`
	BoxHeight *int   `json:"box_height,omitempty"`
	Overlay   *bool  `json:"overlay,omitempty"`
}

// WebSocketScanResponse is sent for every scan or error.
type WebSocketScanResponse struct {
	Type      string       `json:"type"`
	Status    string       `json:"status"` // "completed", "error"
	Result    *scan.Result `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorType string       `json:"error_type,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsSession holds per-connection scan settings.
type wsSession struct {
	boxWidth  int
	boxHeight int
	overlay   bool
}

// scanWebSocketHandler streams scans: each binary frame is an image and each
// result is returned as one JSON text frame.
func (s *Server) scanWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	session := &wsSession{overlay: s.overlayEnabled}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch messageType {
		case websocket.BinaryMessage:
			s.processWebSocketScan(ctx, conn, session, data, "")
		case websocket.TextMessage:
			s.handleWebSocketMessage(ctx, conn, session, data)
		}
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, session *wsSession, data []byte) {
	var req WebSocketScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	if err := session.apply(req, s.overlayEnabled); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", err.Error())
		return
	}

	switch req.Type {
	case "", "options":
		s.sendWebSocketResponse(conn, WebSocketScanResponse{Type: "options", Status: "completed"})
	case "scan":
		if len(req.Image) == 0 {
			s.sendWebSocketError(conn, "", "invalid_request", "No image provided")
			return
		}
		s.processWebSocketScan(ctx, conn, session, req.Image, req.Pages)
	default:
		s.sendWebSocketError(conn, "", "invalid_request", "Unsupported request type: "+req.Type)
	}
}

func (ws *wsSession) apply(req WebSocketScanRequest, overlayAllowed bool) error {
	if req.BoxWidth != nil {
		if *req.BoxWidth < 1 || *req.BoxWidth > 100 {
			return errors.New("box_width must be between 1 and 100")
		}
		ws.boxWidth = *req.BoxWidth
	}
	if req.BoxHeight != nil {
		if *req.BoxHeight < 1 || *req.BoxHeight > 100 {
			return errors.New("box_height must be between 1 and 100")
		}
		ws.boxHeight = *req.BoxHeight
	}
	if req.Overlay != nil {
		ws.overlay = overlayAllowed && *req.Overlay
	}
	return nil
}

func (s *Server) processWebSocketScan(ctx context.Context, conn WebSocketConnWriter, session *wsSession, data []byte, pages string) {
	requestID := uuid.NewString()
	if int64(len(data)) > s.maxUploadMB*1024*1024 {
		s.sendWebSocketError(conn, requestID, "too_large", "File too large")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.scanner.ScanBytes(ctx, data, scan.Request{
		BoxWidthPct:  session.boxWidth,
		BoxHeightPct: session.boxHeight,
		Overlay:      session.overlay,
		RequestID:    requestID,
		Pages:        pages,
	})
	if err != nil {
		switch {
		case errors.Is(err, roi.ErrInvalidRegion):
			s.sendWebSocketError(conn, requestID, "invalid_region", err.Error())
		case errors.Is(err, imageio.ErrDecodeInput):
			s.sendWebSocketError(conn, requestID, "invalid_image", unreadableImageMessage)
		default:
			scanRequestsTotal.WithLabelValues("websocket", "error").Inc()
			s.logger.Error("websocket scan failed", "request_id", requestID, "error", err)
			s.sendWebSocketError(conn, requestID, "scan_failed", "Scan failed")
		}
		return
	}
	observeScan("websocket", res.Success, len(res.Data), time.Since(start).Seconds())

	s.sendWebSocketResponse(conn, WebSocketScanResponse{
		Type:      "scan_result",
		Status:    "completed",
		Result:    res,
		RequestID: requestID,
	})
}

func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketScanResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketScanResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
