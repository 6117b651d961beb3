// Package testutil provides golden-file helpers for tests that assert on
// stable JSON artifacts: error report envelopes, compiled DAG summaries.
package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// UpdateGoldens controls whether to update golden files.
// Set via environment variable: UPDATE_GOLDENS=true go test ./...
var UpdateGoldens = os.Getenv("UPDATE_GOLDENS") == "true"

// GoldenPath returns the path to a golden file, relative to the calling
// package.
func GoldenPath(feature, name string) string {
	return filepath.Join("testdata", feature, name+".golden.json")
}

// CompareWithGolden compares actual output with the golden file,
// writing the file instead when UPDATE_GOLDENS is set.
func CompareWithGolden(t *testing.T, feature, name string, actual interface{}) {
	t.Helper()

	actualJSON, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal actual data: %v", err)
	}
	goldenPath := GoldenPath(feature, name)

	if UpdateGoldens {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			t.Fatalf("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, actualJSON, 0644); err != nil {
			t.Fatalf("failed to write golden file: %v", err)
		}
		t.Logf("updated golden file: %s", goldenPath)
		return
	}

	expectedJSON, err := os.ReadFile(goldenPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("golden file does not exist: %s\nRun with UPDATE_GOLDENS=true to create", goldenPath)
		}
		t.Fatalf("failed to read golden file: %v", err)
	}

	if !jsonEqual(actualJSON, expectedJSON) {
		t.Errorf("golden file mismatch for %s/%s (-want +got):\n%s",
			feature, name, diffJSON(expectedJSON, actualJSON))
	}
}

// diffJSON renders a structural diff of two JSON documents, ignoring key
// order and whitespace.
func diffJSON(expected, actual []byte) string {
	var want, got interface{}
	if err := json.Unmarshal(expected, &want); err != nil {
		return "expected side is not valid JSON: " + err.Error()
	}
	if err := json.Unmarshal(actual, &got); err != nil {
		return "actual side is not valid JSON: " + err.Error()
	}
	return cmp.Diff(want, got)
}

// AssertGoldenJSON compares already-marshalled JSON output with a golden
// file.
func AssertGoldenJSON(t *testing.T, feature, name string, actualJSON []byte) {
	t.Helper()

	var actual interface{}
	if err := json.Unmarshal(actualJSON, &actual); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
	CompareWithGolden(t, feature, name, actual)
}

// jsonEqual compares two JSON byte slices structurally, ignoring key
// order and whitespace.
func jsonEqual(a, b []byte) bool {
	var aData, bData interface{}
	if err := json.Unmarshal(a, &aData); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bData); err != nil {
		return false
	}
	aJSON, _ := json.Marshal(aData)
	bJSON, _ := json.Marshal(bData)
	return bytes.Equal(aJSON, bJSON)
}
