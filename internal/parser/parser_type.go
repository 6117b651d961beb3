package parser

import (
	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/lexer"
)

// parseTypeExpr parses a full type expression, `T1 | T2 | ...` binding
// loosest.
func (p *Parser) parseTypeExpr() (ast.TypeExpr, error) {
	start := posOf(p.cur())
	first, err := p.parsePrimaryType()
	if err != nil {
		return nil, err
	}
	if !p.at(lexer.PIPE) {
		return first, nil
	}
	variants := []ast.TypeExpr{first}
	for p.at(lexer.PIPE) {
		p.advance()
		v, err := p.parsePrimaryType()
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	end := posOf(p.cur())
	return &ast.UnionType{Variants: variants, Sp: spanFrom(start, end)}, nil
}

func (p *Parser) parsePrimaryType() (ast.TypeExpr, error) {
	start := posOf(p.cur())
	switch p.cur().Type {
	case lexer.STRING_T:
		p.advance()
		return &ast.PrimitiveType{Kind: ast.TString, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.INT_T:
		p.advance()
		return &ast.PrimitiveType{Kind: ast.TInt, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.FLOAT_T:
		p.advance()
		return &ast.PrimitiveType{Kind: ast.TFloat, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.BOOLEAN_T:
		p.advance()
		return &ast.PrimitiveType{Kind: ast.TBoolean, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.NOTHING_T:
		p.advance()
		return &ast.PrimitiveType{Kind: ast.TNothing, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.LIST_T:
		p.advance()
		if _, err := p.expect(lexer.LPAREN); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected ( after List")
		}
		elem, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected ) to close List(...)")
		}
		return &ast.ListType{Elem: elem, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.MAP_T:
		p.advance()
		if _, err := p.expect(lexer.LPAREN); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected ( after Map")
		}
		key, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.COMMA); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected , between Map key and value types")
		}
		val, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected ) to close Map(...)")
		}
		return &ast.MapType{Key: key, Val: val, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.OPTIONAL_T:
		p.advance()
		if _, err := p.expect(lexer.LPAREN); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected ( after Optional")
		}
		elem, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected ) to close Optional(...)")
		}
		return &ast.OptionalType{Elem: elem, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.LBRACE:
		return p.parseRecordType()
	case lexer.IDENT:
		tok := p.advance()
		return &ast.TypeRef{Name: tok.Literal, Sp: spanFrom(start, posOf(p.cur()))}, nil
	default:
		return nil, p.errf(errors.PAR003, p.cur(), "expected a type, got %s %q", p.cur().Type, p.cur().Literal)
	}
}

func (p *Parser) parseRecordType() (ast.TypeExpr, error) {
	start := posOf(p.cur())
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return nil, err
	}
	var fields []ast.RecordFieldType
	p.skipSeparators()
	for !p.at(lexer.RBRACE) {
		nameTok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected field name in record type")
		}
		if _, err := p.expect(lexer.COLON); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected : after field name %q", nameTok.Literal)
		}
		fieldType, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.RecordFieldType{Name: nameTok.Literal, Type: fieldType})
		if p.at(lexer.COMMA) || p.at(lexer.NEWLINE) {
			p.skipSeparators()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected } to close record type")
	}
	return &ast.RecordType{Fields: fields, Sp: spanFrom(start, posOf(p.cur()))}, nil
}
