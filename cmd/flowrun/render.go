package main

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/parser"
	"github.com/flowrun/flowrun/internal/typecheck"
)

// renderErrors unpacks a compile failure — a parse error, a MultiError
// of collected type errors, or a single structured report — and renders
// each with a source caret.
func renderErrors(src string, err error) {
	var pe *parser.ParseError
	if stderrors.As(err, &pe) {
		renderReport(src, pe.Report(), red("error"))
		return
	}
	var multi *typecheck.MultiError
	if stderrors.As(err, &multi) {
		for _, e := range multi.Errors {
			if rep, ok := errors.AsReport(e); ok {
				renderReport(src, rep, red("error"))
			} else {
				fmt.Printf("%s %v\n", red("error:"), e)
			}
		}
		return
	}
	if rep, ok := errors.AsReport(err); ok {
		renderReport(src, rep, red("error"))
		return
	}
	fmt.Printf("%s %v\n", red("error:"), err)
}

func renderReport(src string, rep *errors.Report, label string) {
	if rep.Span == nil {
		fmt.Printf("%s %s: %s\n", label, cyan(rep.Code), rep.Message)
		return
	}
	start := rep.Span.Start
	fmt.Printf("%s %s: %s\n", label, cyan(rep.Code), rep.Message)
	fmt.Printf("  %s %s\n", bold("-->"), start)

	lines := strings.Split(src, "\n")
	if start.Line < 1 || start.Line > len(lines) {
		return
	}
	line := lines[start.Line-1]
	fmt.Printf("   %s\n", line)

	col := start.Column
	if col < 1 {
		col = 1
	}
	width := rep.Span.End.Column - col
	if rep.Span.End.Line != start.Line || width < 1 {
		width = 1
	}
	fmt.Printf("   %s%s\n", strings.Repeat(" ", col-1), red(strings.Repeat("^", width)))
}
