package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/idscan/internal/barcode"
	"github.com/MeKo-Tech/idscan/internal/config"
	"github.com/MeKo-Tech/idscan/internal/scan"
	"github.com/MeKo-Tech/idscan/internal/server"
	"github.com/MeKo-Tech/idscan/internal/stats"
)

// startServer runs the scan API in-process on an httptest server backed by
// the real decoder cascade and an in-memory usage store.
func (testCtx *TestContext) startServer(mutate func(*server.Config)) error {
	cfg := config.DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := barcode.NewBackend()
	if err != nil {
		return err
	}
	c, err := cfg.NewCascade(backend, logger)
	if err != nil {
		return err
	}
	svc := scan.NewService(c, cfg.NewParser(), stats.NewMemoryStore(stats.DefaultKeep), cfg.ToScanConfig(), logger)

	srvCfg := server.Config{Host: "127.0.0.1", OverlayEnabled: true, Version: "integration"}
	if mutate != nil {
		mutate(&srvCfg)
	}
	srv, err := server.NewServer(srvCfg, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	testCtx.Server = httptest.NewServer(srv.Handler())
	return nil
}

func (testCtx *TestContext) theScanServerIsRunning() error {
	return testCtx.startServer(nil)
}

func (testCtx *TestContext) theScanServerIsRunningWithRateLimit(perMinute int) error {
	return testCtx.startServer(func(c *server.Config) {
		c.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute}
	})
}

func (testCtx *TestContext) do(req *http.Request) error {
	if testCtx.Server == nil {
		return errors.New("server is not running")
	}
	ctx, cancel := context.WithTimeout(req.Context(), 60*time.Second)
	defer cancel()

	resp, err := testCtx.Server.Client().Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if testCtx.LastHTTPResponse != "" {
		testCtx.PreviousResponses = append(testCtx.PreviousResponses, testCtx.LastHTTPResponse)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) url(path string) string {
	if testCtx.Server == nil {
		return path
	}
	return testCtx.Server.URL + path
}

func (testCtx *TestContext) iGET(path string) error {
	req, err := http.NewRequest(http.MethodGet, testCtx.url(path), nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) uploadFile(name, path string, fields map[string]string) error {
	filePath, err := testCtx.FilePath(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: test fixture
	if err != nil {
		return err
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, testCtx.url(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) iUpload(name, path string) error {
	return testCtx.uploadFile(name, path, nil)
}

func (testCtx *TestContext) iUploadWithBox(name, path string, width, height int) error {
	return testCtx.uploadFile(name, path, map[string]string{
		"box_width":  fmt.Sprint(width),
		"box_height": fmt.Sprint(height),
	})
}

func (testCtx *TestContext) iPOSTTheFile(name, path string) error {
	filePath, err := testCtx.FilePath(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: test fixture
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, testCtx.url(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) responseJSON(body string) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, body)
	}
	return v, nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(path, expected string) error {
	doc, err := testCtx.responseJSON(testCtx.LastHTTPResponse)
	if err != nil {
		return err
	}
	return checkJSONField(doc, path, expected)
}

func (testCtx *TestContext) theResponseJSONFieldShouldBeEmpty(path string) error {
	doc, err := testCtx.responseJSON(testCtx.LastHTTPResponse)
	if err != nil {
		return err
	}
	return checkJSONEmpty(doc, path)
}

func (testCtx *TestContext) theResponseJSONFieldShouldBeSet(path string) error {
	doc, err := testCtx.responseJSON(testCtx.LastHTTPResponse)
	if err != nil {
		return err
	}
	return checkJSONSet(doc, path)
}

func (testCtx *TestContext) theResponseShouldNotContainField(field string) error {
	doc, err := testCtx.responseJSON(testCtx.LastHTTPResponse)
	if err != nil {
		return err
	}
	if _, err := lookupJSON(doc, field); err == nil {
		return fmt.Errorf("response unexpectedly contains '%s'", field)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBeSet(name string) error {
	if testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)] == "" {
		return fmt.Errorf("header %s not set", name)
	}
	return nil
}

// theLastTwoResponsesShouldAgreeOn compares comma separated top level fields.
func (testCtx *TestContext) theLastTwoResponsesShouldAgreeOn(fields string) error {
	if len(testCtx.PreviousResponses) == 0 {
		return errors.New("only one response recorded")
	}
	prev, err := testCtx.responseJSON(testCtx.PreviousResponses[len(testCtx.PreviousResponses)-1])
	if err != nil {
		return err
	}
	last, err := testCtx.responseJSON(testCtx.LastHTTPResponse)
	if err != nil {
		return err
	}
	for _, f := range strings.Split(fields, ",") {
		f = strings.TrimSpace(f)
		a, errA := lookupJSON(prev, f)
		b, errB := lookupJSON(last, f)
		if (errA == nil) != (errB == nil) || fmt.Sprint(a) != fmt.Sprint(b) {
			return fmt.Errorf("responses disagree on %s: %v vs %v", f, a, b)
		}
	}
	return nil
}

// RegisterServerSteps registers HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the scan server is running$`, testCtx.theScanServerIsRunning)
	sc.Step(`^the scan server is running with a limit of (\d+) requests? per minute$`,
		testCtx.theScanServerIsRunningWithRateLimit)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUpload)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with a (\d+)% by (\d+)% scan area$`, testCtx.iUploadWithBox)
	sc.Step(`^I POST the file "([^"]*)" to "([^"]*)"$`, testCtx.iPOSTTheFile)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response JSON field "([^"]*)" should be empty$`, testCtx.theResponseJSONFieldShouldBeEmpty)
	sc.Step(`^the response JSON field "([^"]*)" should be set$`, testCtx.theResponseJSONFieldShouldBeSet)
	sc.Step(`^the response should not contain "([^"]*)"$`, testCtx.theResponseShouldNotContainField)
	sc.Step(`^the response header "([^"]*)" should be set$`, testCtx.theResponseHeaderShouldBeSet)
	sc.Step(`^the last two responses should agree on "([^"]*)"$`, testCtx.theLastTwoResponsesShouldAgreeOn)
}
