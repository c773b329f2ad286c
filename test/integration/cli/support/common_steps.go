package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

var fileRef = regexp.MustCompile(`\{file:([^}]+)\}`)

// substituteCommandVariables replaces {file:name} and {tmp} placeholders.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)
	return fileRef.ReplaceAllStringFunc(command, func(m string) string {
		name := fileRef.FindStringSubmatch(m)[1]
		if path, err := testCtx.FilePath(name); err == nil {
			return path
		}
		return m
	})
}

// iRunCommand executes a command and stores the result.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] == "idscan" {
		if bin := os.Getenv("IDSCAN_BIN"); bin != "" {
			parts[0] = bin
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.TempDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	testCtx.LastDuration = time.Since(start)
	testCtx.LastOutput = string(output)
	testCtx.LastError = err

	testCtx.LastExitCode = 0
	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// outputJSON decodes the first JSON value in the command output. Log lines
// go to stderr, which is captured too, so skip anything before the first
// line that opens a JSON document.
func (testCtx *TestContext) outputJSON() (interface{}, error) {
	return firstJSONDocument(testCtx.LastOutput)
}

func firstJSONDocument(text string) (interface{}, error) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "{" && trimmed != "[" && !strings.HasPrefix(trimmed, "{\"") {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(strings.Join(lines[i:], "\n")))
		var v interface{}
		if err := dec.Decode(&v); err == nil {
			if m, ok := v.(map[string]interface{}); ok && m["level"] != nil && m["msg"] != nil {
				continue
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("no JSON found in output: %s", text)
}

// theOutputShouldBeValidJSON verifies the output contains a JSON document.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := testCtx.outputJSON()
	return err
}

// theJSONFieldShouldBe compares a dotted JSON path with an expected value.
func (testCtx *TestContext) theJSONFieldShouldBe(path, expected string) error {
	doc, err := testCtx.outputJSON()
	if err != nil {
		return err
	}
	return checkJSONField(doc, path, expected)
}

// theJSONFieldShouldBeEmpty verifies a JSON object or array has no entries.
func (testCtx *TestContext) theJSONFieldShouldBeEmpty(path string) error {
	doc, err := testCtx.outputJSON()
	if err != nil {
		return err
	}
	return checkJSONEmpty(doc, path)
}

// theJSONFieldShouldBeSet verifies a JSON field is present and not empty.
func (testCtx *TestContext) theJSONFieldShouldBeSet(path string) error {
	doc, err := testCtx.outputJSON()
	if err != nil {
		return err
	}
	return checkJSONSet(doc, path)
}

func lookupJSON(doc interface{}, path string) (interface{}, error) {
	current := doc
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("cannot navigate into non-object at '%s'", part)
		}
		if current, ok = m[part]; !ok {
			return nil, fmt.Errorf("field '%s' not found in JSON", path)
		}
	}
	return current, nil
}

func checkJSONField(doc interface{}, path, expected string) error {
	v, err := lookupJSON(doc, path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("field '%s' is %q, expected %q", path, got, expected)
	}
	return nil
}

func checkJSONSet(doc interface{}, path string) error {
	v, err := lookupJSON(doc, path)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		return fmt.Errorf("field '%s' is null", path)
	case string:
		if t == "" {
			return fmt.Errorf("field '%s' is an empty string", path)
		}
	case map[string]interface{}:
		if len(t) == 0 {
			return fmt.Errorf("field '%s' is an empty object", path)
		}
	}
	return nil
}

func checkJSONEmpty(doc interface{}, path string) error {
	v, err := lookupJSON(doc, path)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 0 {
			return nil
		}
	case []interface{}:
		if len(t) == 0 {
			return nil
		}
	}
	return fmt.Errorf("field '%s' is not empty: %v", path, v)
}

// theFileShouldExist verifies a file exists relative to the temp directory.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	path := testCtx.substituteCommandVariables(filename)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	return nil
}

// RegisterCommonSteps registers command execution and output steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be empty$`, testCtx.theJSONFieldShouldBeEmpty)
	sc.Step(`^the JSON field "([^"]*)" should be set$`, testCtx.theJSONFieldShouldBeSet)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
}
