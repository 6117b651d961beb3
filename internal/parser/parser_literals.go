package parser

import (
	"strings"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/lexer"
)

// parseStringLiteral splits a string token's literal text on `${...}`
// interpolation markers (preserved verbatim by the lexer) into a
// StringInterpolation node, or returns a plain Literal when there are no
// embedded expressions. Each embedded expression is re-lexed from its raw
// text by a fresh sub-parser.
func (p *Parser) parseStringLiteral(tok lexer.Token, start ast.Pos) (ast.Expr, error) {
	raw := tok.Literal
	if !strings.Contains(raw, "${") {
		return &ast.Literal{Kind: ast.StringLit, Value: raw, Sp: spanFrom(start, posOf(p.cur()))}, nil
	}

	var parts []ast.StringInterpPart
	i := 0
	for i < len(raw) {
		idx := strings.Index(raw[i:], "${")
		if idx < 0 {
			parts = append(parts, ast.StringInterpPart{Literal: raw[i:]})
			break
		}
		if idx > 0 {
			parts = append(parts, ast.StringInterpPart{Literal: raw[i : i+idx]})
		}
		exprStart := i + idx + 2
		depth := 1
		j := exprStart
		for j < len(raw) && depth > 0 {
			switch raw[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					goto found
				}
			}
			j++
		}
	found:
		if depth != 0 {
			return nil, p.errf(errors.PAR003, tok, "unterminated ${...} interpolation")
		}
		exprText := raw[exprStart:j]
		sub, err := New(exprText, tok.File)
		if err != nil {
			return nil, err
		}
		e, err := sub.parseExpr()
		if err != nil {
			return nil, err
		}
		parts = append(parts, ast.StringInterpPart{Expr: e})
		i = j + 1
	}
	return &ast.StringInterpolation{Parts: parts, Sp: spanFrom(start, posOf(p.cur()))}, nil
}
