package errors

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowrun/flowrun/internal/ast"
)

// Report is the canonical structured error type used by every phase of the
// compiler and runtime. All error builders return *Report so that
// callers can render, serialize, or match on it uniformly.
type Report struct {
	Schema  string         `json:"schema"` // always "flowrun.error/v1"
	Code    string         `json:"code"`
	Phase   string         `json:"phase"`
	Message string         `json:"message"`
	Span    *ast.Span      `json:"span,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Fix     *Fix           `json:"fix,omitempty"`
}

// Fix is an optional suggested remediation attached to a Report.
type Fix struct {
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

const schemaV1 = "flowrun.error/v1"

// New builds a Report with no source span (used for runtime errors that
// have no compile-time position, e.g. MissingModule).
func New(code, phase, message string, data map[string]any) *Report {
	return &Report{Schema: schemaV1, Code: code, Phase: phase, Message: message, Data: data}
}

// NewWithSpan builds a Report carrying a source span, used by the parser
// and type checker so formatters can render a line/column caret.
func NewWithSpan(code, phase, message string, span ast.Span, data map[string]any) *Report {
	return &Report{Schema: schemaV1, Code: code, Phase: phase, Message: message, Span: &span, Data: data}
}

// ReportError wraps a Report as an error, surviving errors.As() unwrapping
// so callers down the stack can recover the structured form.
type ReportError struct {
	Rep *Report
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	if e.Rep == nil {
		return "unknown error"
	}
	if e.Rep.Span != nil {
		return fmt.Sprintf("%s: %s: %s", e.Rep.Span.Start, e.Rep.Code, e.Rep.Message)
	}
	return e.Rep.Code + ": " + e.Rep.Message
}

// AsReport attempts to extract a Report from an error chain.
func AsReport(err error) (*Report, bool) {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Rep, true
	}
	return nil, false
}

// Wrap wraps a Report as an error. Call sites return errors.Wrap(report) to
// preserve structure across the `error` interface.
func Wrap(r *Report) error {
	if r == nil {
		return nil
	}
	return &ReportError{Rep: r}
}

// ToJSON converts a Report to JSON with deterministic field order.
func (r *Report) ToJSON(compact bool) (string, error) {
	var data []byte
	var err error
	if compact {
		data, err = json.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Generic wraps an arbitrary Go error as a Report for a given phase, used
// at system boundaries (SPI backend failures) where no structured code
// applies.
func Generic(phase string, err error) *Report {
	return &Report{Schema: schemaV1, Code: "GENERIC", Phase: phase, Message: err.Error(), Data: map[string]any{}}
}
