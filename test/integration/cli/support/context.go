package support

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	// Test environment
	TempDir string
	EnvVars []string
	Files   map[string]string

	// Server state
	Server *httptest.Server

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
	PreviousResponses  []string
}

// NewTestContext creates a new test context with its own temp directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "idscan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		TempDir: tempDir,
		// Keep usage counters out of the working tree.
		EnvVars: []string{"IDSCAN_STATS_BACKEND=memory"},
		Files:   map[string]string{},
	}, nil
}

// Cleanup stops the server and removes the temp directory.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.Server != nil {
		testCtx.Server.Close()
		testCtx.Server = nil
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// WriteFile stores data under name in the temp directory and remembers it
// for {file:name} substitution.
func (testCtx *TestContext) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(testCtx.TempDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	testCtx.Files[name] = path
	return path, nil
}

// FilePath returns the path of a file created by a previous step.
func (testCtx *TestContext) FilePath(name string) (string, error) {
	path, ok := testCtx.Files[name]
	if !ok {
		return "", fmt.Errorf("no test file named %q", name)
	}
	return path, nil
}
