package server

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/imageio"
)

func dialScanSocket(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/scan"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readScanResponse(t *testing.T, conn *websocket.Conn) WebSocketScanResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var resp WebSocketScanResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestWebSocket_BinaryFrameScans(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	conn := dialScanSocket(t, newTestServer(t, fs, nil))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frame-1")))
	resp := readScanResponse(t, conn)

	assert.Equal(t, "scan_result", resp.Type)
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.Equal(t, "SMITH", resp.Result.Data["Last Name"])
	assert.Equal(t, resp.RequestID, resp.Result.RequestID)
	assert.Equal(t, []byte("frame-1"), fs.payload(t, 0))
}

func TestWebSocket_OptionsApplyToLaterFrames(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	conn := dialScanSocket(t, newTestServer(t, fs, nil))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"options","box_width":40,"box_height":10,"overlay":false}`)))
	resp := readScanResponse(t, conn)
	assert.Equal(t, "options", resp.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"box_height":25}`)))
	assert.Equal(t, "options", readScanResponse(t, conn).Type)

	for range 2 {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frame")))
		resp = readScanResponse(t, conn)
		assert.Equal(t, "scan_result", resp.Type)
	}

	req := fs.lastRequest(t)
	assert.Equal(t, 40, req.BoxWidthPct)
	assert.Equal(t, 25, req.BoxHeightPct)
	assert.False(t, req.Overlay)
	assert.Equal(t, 2, fs.calls())
}

func TestWebSocket_ScanMessageWithEmbeddedImage(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	conn := dialScanSocket(t, newTestServer(t, fs, nil))

	msg, err := json.Marshal(WebSocketScanRequest{Type: "scan", Image: []byte("inline"), Pages: "1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	resp := readScanResponse(t, conn)
	assert.Equal(t, "scan_result", resp.Type)
	assert.Equal(t, []byte("inline"), fs.payload(t, 0))
	assert.Equal(t, "1", fs.lastRequest(t).Pages)
}

func TestWebSocket_Errors(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		errorType string
	}{
		{"bad json", `{"type":`, "invalid_request"},
		{"unknown type", `{"type":"ocr"}`, "invalid_request"},
		{"no image", `{"type":"scan"}`, "invalid_request"},
		{"bad width", `{"type":"options","box_width":0}`, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeScanner{result: foundResult()}
			conn := dialScanSocket(t, newTestServer(t, fs, nil))

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.message)))
			resp := readScanResponse(t, conn)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.errorType, resp.ErrorType)
			assert.Zero(t, fs.calls())
		})
	}
}

func TestWebSocket_ScanErrorKeepsConnectionOpen(t *testing.T) {
	fs := &fakeScanner{err: &imageio.DecodeInputError{Reason: "unknown format"}}
	conn := dialScanSocket(t, newTestServer(t, fs, nil))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("garbage")))
	resp := readScanResponse(t, conn)
	assert.Equal(t, "invalid_image", resp.ErrorType)

	fs.mu.Lock()
	fs.err = errors.New("boom")
	fs.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("garbage")))
	resp = readScanResponse(t, conn)
	assert.Equal(t, "scan_failed", resp.ErrorType)
}

// recordingConn captures frames written by the send helpers.
type recordingConn struct {
	frames [][]byte
	err    error
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, data)
	return nil
}

func TestSendWebSocketError(t *testing.T) {
	s := newTestServer(t, &fakeScanner{}, nil)
	conn := &recordingConn{}

	s.sendWebSocketError(conn, "req-1", "too_large", "File too large")
	require.Len(t, conn.frames, 1)
	assert.JSONEq(t,
		`{"type":"error","status":"error","error":"File too large","error_type":"too_large","request_id":"req-1"}`,
		string(conn.frames[0]))

	failing := &recordingConn{err: errors.New("closed")}
	s.sendWebSocketError(failing, "", "x", "y")
	assert.Empty(t, failing.frames)
}

func TestWebSocket_TooLargeFrame(t *testing.T) {
	fs := &fakeScanner{result: foundResult()}
	s := newTestServer(t, fs, func(c *Config) { c.MaxUploadMB = 1 })
	conn := &recordingConn{}

	s.processWebSocketScan(t.Context(), conn, &wsSession{}, make([]byte, 2*1024*1024), "")
	require.Len(t, conn.frames, 1)
	assert.Contains(t, string(conn.frames[0]), "too_large")
	assert.Zero(t, fs.calls())
}
