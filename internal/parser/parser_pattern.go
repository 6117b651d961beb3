package parser

import (
	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/lexer"
)

// parsePattern parses one `match` case pattern: wildcard,
// otherwise, a literal, a bind, a bind+type discrimination, a record
// destructure, or any of those followed by `when cond`.
func (p *Parser) parsePattern() (ast.Pattern, error) {
	base, err := p.parseBasePattern()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.WHEN) {
		start := base.Span().Start
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.GuardedPattern{Inner: base, Cond: cond, Sp: spanFrom(start, posOf(p.cur()))}, nil
	}
	return base, nil
}

func (p *Parser) parseBasePattern() (ast.Pattern, error) {
	start := posOf(p.cur())
	switch p.cur().Type {
	case lexer.OTHERWISE:
		p.advance()
		return &ast.OtherwisePattern{Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.LBRACE:
		return p.parseRecordPattern()
	case lexer.INT:
		tok := p.advance()
		n, err := parseIntLiteral(tok.Literal)
		if err != nil {
			return nil, p.errf(errors.PAR006, tok, "invalid integer literal %q", tok.Literal)
		}
		return &ast.LiteralPattern{Kind: ast.IntLit, Value: n, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.FLOAT:
		tok := p.advance()
		f, err := parseFloatLiteral(tok.Literal)
		if err != nil {
			return nil, p.errf(errors.PAR006, tok, "invalid float literal %q", tok.Literal)
		}
		return &ast.LiteralPattern{Kind: ast.FloatLit, Value: f, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.STRING:
		tok := p.advance()
		return &ast.LiteralPattern{Kind: ast.StringLit, Value: tok.Literal, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.TRUE:
		p.advance()
		return &ast.LiteralPattern{Kind: ast.BoolLit, Value: true, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.FALSE:
		p.advance()
		return &ast.LiteralPattern{Kind: ast.BoolLit, Value: false, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.STRING_T, lexer.INT_T, lexer.FLOAT_T, lexer.BOOLEAN_T, lexer.NOTHING_T,
		lexer.LIST_T, lexer.MAP_T, lexer.OPTIONAL_T:
		te, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		return &ast.TypePattern{Type: te, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.IDENT:
		name := p.cur().Literal
		if name == "_" {
			p.advance()
			return &ast.WildcardPattern{Sp: spanFrom(start, posOf(p.cur()))}, nil
		}
		if p.peekAt(1).Type == lexer.COLON {
			p.advance() // name
			p.advance() // :
			te, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			return &ast.TypePattern{Bind: name, Type: te, Sp: spanFrom(start, posOf(p.cur()))}, nil
		}
		p.advance()
		return &ast.BindPattern{Name: name, Sp: spanFrom(start, posOf(p.cur()))}, nil
	default:
		return nil, p.errf(errors.PAR001, p.cur(), "expected a match pattern, got %s %q", p.cur().Type, p.cur().Literal)
	}
}

func (p *Parser) parseRecordPattern() (ast.Pattern, error) {
	start := posOf(p.cur())
	p.advance() // {
	var fields []ast.RecordFieldPattern
	p.skipSeparators()
	for !p.at(lexer.RBRACE) {
		nameTok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected field name in record pattern")
		}
		if _, err := p.expect(lexer.COLON); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected : after field name %q", nameTok.Literal)
		}
		inner, err := p.parseBasePattern()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.RecordFieldPattern{Name: nameTok.Literal, Pattern: inner})
		if p.at(lexer.COMMA) || p.at(lexer.NEWLINE) {
			p.skipSeparators()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected } to close record pattern")
	}
	return &ast.RecordPattern{Fields: fields, Sp: spanFrom(start, posOf(p.cur()))}, nil
}
