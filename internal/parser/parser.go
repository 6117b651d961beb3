// Package parser turns pipeline DSL source text into an AST. The
// grammar is whitespace- and newline-sensitive: one declaration per
// logical line, with commas and newlines both acting as separators inside
// record/list literals and options clauses.
package parser

import (
	"fmt"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/lexer"
)

// ParseError is a syntactic error with a source span. The
// parser reports the first one it hits and stops — no partial ASTs are
// emitted on failure.
type ParseError struct {
	Code    string
	Pos     ast.Pos
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s at %s", e.Code, e.Message, e.Pos)
}

// Report converts a ParseError into the shared structured error envelope.
func (e *ParseError) Report() *errors.Report {
	span := ast.Span{Start: e.Pos, End: e.Pos}
	return errors.NewWithSpan(e.Code, "parser", e.Message, span, nil)
}

// Parser consumes a pre-tokenized input (declarations can reference a
// `use` alias that is lexically declared anywhere in the file, so the
// whole token stream is scanned up front rather than pulled lazily from
// the lexer one token at a time).
type Parser struct {
	tokens  []lexer.Token
	pos     int
	file    string
	aliases map[string]bool
}

// New creates a Parser over the full, already-tokenized input.
func New(source, filename string) (*Parser, error) {
	l := lexer.New(source, filename)
	var toks []lexer.Token
	for {
		t := l.NextToken()
		toks = append(toks, t)
		if t.Type == lexer.EOF {
			break
		}
		if t.Type == lexer.ILLEGAL {
			return nil, &ParseError{
				Code:    errors.PAR001,
				Pos:     posOf(t),
				Message: fmt.Sprintf("illegal character %q", t.Literal),
			}
		}
	}
	p := &Parser{tokens: toks, file: filename, aliases: map[string]bool{}}
	p.scanUseAliases()
	return p, nil
}

// Parse parses a complete source file into an AST. On any syntactic
// error it returns (nil, error) — partial ASTs are never emitted.
func Parse(source, filename string) (*ast.File, error) {
	p, err := New(source, filename)
	if err != nil {
		return nil, err
	}
	return p.ParseFile()
}

func posOf(t lexer.Token) ast.Pos {
	return ast.Pos{File: t.File, Line: t.Line, Column: t.Column}
}

// scanUseAliases pre-scans `use ns.path [as alias]` lines so the
// expression parser can distinguish a qualified name (`ns.fn`) from a
// plain field access on a record-valued variable purely from the token
// stream, without a semantic pass.
func (p *Parser) scanUseAliases() {
	for i := 0; i < len(p.tokens); i++ {
		if p.tokens[i].Type != lexer.USE {
			continue
		}
		j := i + 1
		var segs []string
		for j < len(p.tokens) && p.tokens[j].Type == lexer.IDENT {
			segs = append(segs, p.tokens[j].Literal)
			if j+1 < len(p.tokens) && p.tokens[j+1].Type == lexer.DOT {
				j += 2
				continue
			}
			j++
			break
		}
		if len(segs) == 0 {
			continue
		}
		alias := segs[len(segs)-1]
		if j < len(p.tokens) && p.tokens[j].Type == lexer.AS && j+1 < len(p.tokens) && p.tokens[j+1].Type == lexer.IDENT {
			alias = p.tokens[j+1].Literal
		}
		p.aliases[alias] = true
	}
}

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(n int) lexer.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(tt lexer.TokenType) bool { return p.cur().Type == tt }

func (p *Parser) errf(code string, tok lexer.Token, format string, args ...interface{}) error {
	return &ParseError{Code: code, Pos: posOf(tok), Message: fmt.Sprintf(format, args...)}
}

// expect consumes the current token if it matches tt, else reports
// PAR001 (unexpected token).
func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	if !p.at(tt) {
		return lexer.Token{}, p.errf(errors.PAR001, p.cur(), "expected %s, got %s %q", tt, p.cur().Type, p.cur().Literal)
	}
	return p.advance(), nil
}

// skipNewlines consumes zero or more NEWLINE tokens, the separator
// between top-level declarations.
func (p *Parser) skipNewlines() {
	for p.at(lexer.NEWLINE) {
		p.advance()
	}
}

// skipSeparators consumes NEWLINE and COMMA tokens interchangeably, used
// inside record/list literals and options clauses where both act as
// separators.
func (p *Parser) skipSeparators() {
	for p.at(lexer.NEWLINE) || p.at(lexer.COMMA) {
		p.advance()
	}
}

func spanFrom(start, end ast.Pos) ast.Span { return ast.Span{Start: start, End: end} }

// ParseType parses a standalone type expression, used by tooling (module
// manifests, configuration files) that declares module signatures
// outside of pipeline source.
func ParseType(source string) (ast.TypeExpr, error) {
	p, err := New(source, "<type>")
	if err != nil {
		return nil, err
	}
	return p.parseTypeExpr()
}
