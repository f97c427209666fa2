package main

import (
	"bytes"
	"encoding/json"
	"testing"
)

// captureOutput runs fn with command output redirected to a buffer.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	orig := stdout
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = orig }()
	err := fn()
	return buf.String(), err
}

// withJSON runs fn with --json set.
func withJSON(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	jsonOut = true
	defer func() { jsonOut = false }()
	return captureOutput(t, fn)
}

// decodeJSON unmarshals command output into v.
func decodeJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}
