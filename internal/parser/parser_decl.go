package parser

import (
	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/lexer"
)

// ParseFile parses a full pipeline source file: inputs, type defs, use
// decls, assignments and outputs, in any order, one per logical line.
func (p *Parser) ParseFile() (*ast.File, error) {
	start := posOf(p.cur())
	f := &ast.File{}
	var pendingAnnotations []*ast.Annotation

	p.skipNewlines()
	for !p.at(lexer.EOF) {
		switch p.cur().Type {
		case lexer.AT:
			ann, err := p.parseAnnotation()
			if err != nil {
				return nil, err
			}
			pendingAnnotations = append(pendingAnnotations, ann)
		case lexer.IN:
			in, err := p.parseInputDecl(pendingAnnotations)
			if err != nil {
				return nil, err
			}
			if err := p.validateAnnotations(in); err != nil {
				return nil, err
			}
			f.Inputs = append(f.Inputs, in)
			pendingAnnotations = nil
		case lexer.TYPE:
			td, err := p.parseTypeDef()
			if err != nil {
				return nil, err
			}
			f.TypeDefs = append(f.TypeDefs, td)
		case lexer.USE:
			u, err := p.parseUseDecl()
			if err != nil {
				return nil, err
			}
			f.Uses = append(f.Uses, u)
		case lexer.OUT:
			o, err := p.parseOutputDecl()
			if err != nil {
				return nil, err
			}
			f.Outputs = append(f.Outputs, o)
		case lexer.IDENT:
			a, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			f.Assigns = append(f.Assigns, a)
		default:
			return nil, p.errf(errors.PAR003, p.cur(), "unexpected token %s at top level", p.cur().Type)
		}
		p.skipNewlines()
	}

	if len(pendingAnnotations) > 0 {
		return nil, p.errf(errors.PAR004, p.cur(), "annotation not attached to an input declaration")
	}

	f.Sp = spanFrom(start, posOf(p.cur()))
	return f, nil
}

// validateAnnotations enforces the at-most-one-@example rule: a second
// @example on the same input is a compile error, not a silent override.
func (p *Parser) validateAnnotations(in *ast.InputDecl) error {
	seen := map[string]bool{}
	for _, a := range in.Annotations {
		if a.Name == "example" {
			if seen["example"] {
				return p.errf(errors.TC012, tokenAt(a.Sp.Start), "duplicate @example annotation on input %q", in.Name)
			}
			seen["example"] = true
		}
	}
	return nil
}

func tokenAt(pos ast.Pos) lexer.Token {
	return lexer.Token{Line: pos.Line, Column: pos.Column, File: pos.File}
}

// parseAnnotation parses `@name(expr)` followed by its terminating
// newline.
func (p *Parser) parseAnnotation() (*ast.Annotation, error) {
	start := posOf(p.cur())
	if _, err := p.expect(lexer.AT); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, p.errf(errors.PAR004, p.cur(), "expected annotation name after @")
	}
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, p.errf(errors.PAR004, p.cur(), "expected ( after annotation name")
	}
	arg, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, p.errf(errors.PAR004, p.cur(), "expected ) to close annotation")
	}
	end := posOf(p.cur())
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return &ast.Annotation{Name: nameTok.Literal, Arg: arg, Sp: spanFrom(start, end)}, nil
}

// expectLineEnd requires a NEWLINE or EOF to terminate the current
// declaration.
func (p *Parser) expectLineEnd() error {
	if p.at(lexer.EOF) {
		return nil
	}
	if !p.at(lexer.NEWLINE) {
		return p.errf(errors.PAR003, p.cur(), "expected end of line, got %s %q", p.cur().Type, p.cur().Literal)
	}
	p.advance()
	return nil
}

func (p *Parser) parseInputDecl(anns []*ast.Annotation) (*ast.InputDecl, error) {
	start := posOf(p.cur())
	if len(anns) > 0 {
		start = anns[0].Sp.Start
	}
	if _, err := p.expect(lexer.IN); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected input name")
	}
	if _, err := p.expect(lexer.COLON); err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected : after input name")
	}
	te, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	end := posOf(p.cur())
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return &ast.InputDecl{Name: nameTok.Literal, Type: te, Annotations: anns, Sp: spanFrom(start, end)}, nil
}

func (p *Parser) parseTypeDef() (*ast.TypeDef, error) {
	start := posOf(p.cur())
	if _, err := p.expect(lexer.TYPE); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected type name")
	}
	if _, err := p.expect(lexer.ASSIGN); err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected = after type name")
	}
	te, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	end := posOf(p.cur())
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return &ast.TypeDef{Name: nameTok.Literal, Type: te, Sp: spanFrom(start, end)}, nil
}

func (p *Parser) parseUseDecl() (*ast.UseDecl, error) {
	start := posOf(p.cur())
	if _, err := p.expect(lexer.USE); err != nil {
		return nil, err
	}
	firstTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected path after use")
	}
	path := firstTok.Literal
	for p.at(lexer.DOT) {
		p.advance()
		seg, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected identifier after . in use path")
		}
		path += "." + seg.Literal
	}
	alias := ""
	if p.at(lexer.AS) {
		p.advance()
		aliasTok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected alias after as")
		}
		alias = aliasTok.Literal
	}
	end := posOf(p.cur())
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return &ast.UseDecl{Path: path, Alias: alias, Sp: spanFrom(start, end)}, nil
}

func (p *Parser) parseOutputDecl() (*ast.OutputDecl, error) {
	start := posOf(p.cur())
	if _, err := p.expect(lexer.OUT); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected output name")
	}
	end := posOf(p.cur())
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return &ast.OutputDecl{Name: nameTok.Literal, Sp: spanFrom(start, end)}, nil
}

func (p *Parser) parseAssignment() (*ast.Assignment, error) {
	start := posOf(p.cur())
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.ASSIGN); err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected = after %q", nameTok.Literal)
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	end := posOf(p.cur())
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return &ast.Assignment{Name: nameTok.Literal, Value: val, Sp: spanFrom(start, end)}, nil
}
