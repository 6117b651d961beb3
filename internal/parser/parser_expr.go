package parser

import (
	"strconv"
	"strings"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/lexer"
)

// parseExpr parses a full expression: `e when cond` binds loosest of all
//, wrapping everything below it.
func (p *Parser) parseExpr() (ast.Expr, error) {
	start := posOf(p.cur())
	e, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if p.at(lexer.WHEN) {
		p.advance()
		cond, err := p.parseBinary(1)
		if err != nil {
			return nil, err
		}
		e = &ast.Guard{Value: e, Cond: cond, Sp: spanFrom(start, posOf(p.cur()))}
	}
	return e, nil
}

// precedenceOf returns the binding power of the current token if it is a
// binary operator recognized by this climbing parser, 0 otherwise.
func precedenceOf(t lexer.Token) int {
	switch t.Type {
	case lexer.COALESCE, lexer.OR, lexer.AND, lexer.EQ, lexer.NEQ,
		lexer.LT, lexer.GT, lexer.LTE, lexer.GTE, lexer.PLUS:
		return t.Precedence()
	default:
		return 0
	}
}

// parseBinary implements precedence climbing over +, ==, !=, <, >, <=,
// >=, and, or, ??. All are left-associative.
func (p *Parser) parseBinary(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.cur()
		prec := precedenceOf(op)
		if prec == 0 || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = combineBinary(op, left, right)
	}
}

func combineBinary(op lexer.Token, left, right ast.Expr) ast.Expr {
	sp := spanFrom(left.Span().Start, right.Span().End)
	switch op.Type {
	case lexer.PLUS:
		return &ast.Merge{Left: left, Right: right, Sp: sp}
	case lexer.COALESCE:
		return &ast.Coalesce{Left: left, Right: right, Sp: sp}
	case lexer.AND:
		return &ast.BoolOp{Kind: ast.OpAnd, Left: left, Right: right, Sp: sp}
	case lexer.OR:
		return &ast.BoolOp{Kind: ast.OpOr, Left: left, Right: right, Sp: sp}
	default:
		return &ast.CompareOp{Op: op.Literal, Left: left, Right: right, Sp: sp}
	}
}

// parseUnary handles the `not` prefix operator, otherwise falls
// through to a postfix-wrapped primary.
func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.at(lexer.NOT) {
		start := posOf(p.cur())
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.BoolOp{Kind: ast.OpNot, Left: operand, Sp: spanFrom(start, posOf(p.cur()))}, nil
	}
	prim, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(prim)
}

// parsePostfix applies `.field` (FieldAccess) and `[f1, f2, ...]`
// (Projection) suffixes.
func (p *Parser) parsePostfix(e ast.Expr) (ast.Expr, error) {
	for {
		switch p.cur().Type {
		case lexer.DOT:
			p.advance()
			fieldTok, err := p.expect(lexer.IDENT)
			if err != nil {
				return nil, p.errf(errors.PAR001, p.cur(), "expected field name after .")
			}
			e = &ast.FieldAccess{Record: e, Field: fieldTok.Literal, Sp: spanFrom(e.Span().Start, posOf(p.cur()))}
		case lexer.LBRACKET:
			p.advance()
			var names []string
			for !p.at(lexer.RBRACKET) {
				nameTok, err := p.expect(lexer.IDENT)
				if err != nil {
					return nil, p.errf(errors.PAR001, p.cur(), "expected field name in projection")
				}
				names = append(names, nameTok.Literal)
				if p.at(lexer.COMMA) {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(lexer.RBRACKET); err != nil {
				return nil, p.errf(errors.PAR002, p.cur(), "expected ] to close projection")
			}
			e = &ast.Projection{Record: e, Fields: names, Sp: spanFrom(e.Span().Start, posOf(p.cur()))}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	start := posOf(p.cur())
	switch p.cur().Type {
	case lexer.INT:
		tok := p.advance()
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return nil, p.errf(errors.PAR006, tok, "invalid integer literal %q", tok.Literal)
		}
		return &ast.Literal{Kind: ast.IntLit, Value: n, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.FLOAT:
		tok := p.advance()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, p.errf(errors.PAR006, tok, "invalid float literal %q", tok.Literal)
		}
		return &ast.Literal{Kind: ast.FloatLit, Value: f, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.TRUE:
		p.advance()
		return &ast.Literal{Kind: ast.BoolLit, Value: true, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.FALSE:
		p.advance()
		return &ast.Literal{Kind: ast.BoolLit, Value: false, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.STRING:
		tok := p.advance()
		return p.parseStringLiteral(tok, start)
	case lexer.DURATION:
		tok := p.advance()
		d, err := parseDurationLiteral(tok.Literal)
		if err != nil {
			return nil, p.errf(errors.PAR006, tok, "%s", err.Error())
		}
		return &ast.Literal{Kind: ast.DurationLit, Value: d, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.RATE:
		tok := p.advance()
		r, err := parseRateLiteral(tok.Literal)
		if err != nil {
			return nil, p.errf(errors.PAR006, tok, "%s", err.Error())
		}
		return &ast.Literal{Kind: ast.RateLit, Value: r, Sp: spanFrom(start, posOf(p.cur()))}, nil
	case lexer.LBRACKET:
		return p.parseListLiteral()
	case lexer.LBRACE:
		return p.parseRecordLiteral()
	case lexer.LPAREN:
		return p.parseParenOrLambda()
	case lexer.IF:
		return p.parseIf()
	case lexer.BRANCH:
		return p.parseBranch()
	case lexer.MATCH:
		return p.parseMatch()
	case lexer.IDENT:
		return p.parseIdentPrimary()
	default:
		return nil, p.errf(errors.PAR001, p.cur(), "unexpected token %s %q in expression", p.cur().Type, p.cur().Literal)
	}
}

// parseIdentPrimary parses a leading identifier, its dotted segments, and
// (if parenthesized args follow) a ModuleCall. A bare two-segment path
// whose first segment is a known `use` alias becomes a QualifiedName;
// everything else becomes a chain of Variable + FieldAccess, identical in
// shape to ordinary record field access.
func (p *Parser) parseIdentPrimary() (ast.Expr, error) {
	start := posOf(p.cur())
	firstTok := p.advance()
	segs := []string{firstTok.Literal}
	for p.at(lexer.DOT) && p.peekAt(1).Type == lexer.IDENT {
		p.advance()
		seg := p.advance()
		segs = append(segs, seg.Literal)
	}
	if p.at(lexer.LPAREN) {
		return p.parseModuleCall(strings.Join(segs, "."), start)
	}
	if len(segs) == 2 && p.aliases[segs[0]] {
		return &ast.QualifiedName{Namespace: segs[0], Name: segs[1], Sp: spanFrom(start, posOf(p.cur()))}, nil
	}
	var e ast.Expr = &ast.Variable{Name: segs[0], Sp: spanFrom(start, start)}
	for _, seg := range segs[1:] {
		e = &ast.FieldAccess{Record: e, Field: seg, Sp: spanFrom(start, posOf(p.cur()))}
	}
	return e, nil
}

// parseModuleCall parses `Name(arg1, arg2, key: arg3) [with k: v, ...]`.
func (p *Parser) parseModuleCall(name string, start ast.Pos) (ast.Expr, error) {
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	var args []ast.Arg
	p.skipSeparators()
	for !p.at(lexer.RPAREN) {
		argName := ""
		if p.at(lexer.IDENT) && p.peekAt(1).Type == lexer.COLON {
			argName = p.advance().Literal
			p.advance() // COLON
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, ast.Arg{Name: argName, Value: v})
		if p.at(lexer.COMMA) || p.at(lexer.NEWLINE) {
			p.skipSeparators()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected ) to close call to %s", name)
	}
	var opts []ast.OptionArg
	if p.at(lexer.WITH) {
		p.advance()
		for {
			keyTok, err := p.expect(lexer.IDENT)
			if err != nil {
				return nil, p.errf(errors.PAR005, p.cur(), "expected option key after with")
			}
			if _, err := p.expect(lexer.COLON); err != nil {
				return nil, p.errf(errors.PAR005, p.cur(), "expected : after option key %q", keyTok.Literal)
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			opts = append(opts, ast.OptionArg{Key: keyTok.Literal, Value: v})
			if p.at(lexer.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}
	return &ast.ModuleCall{Module: name, Args: args, Options: opts, Sp: spanFrom(start, posOf(p.cur()))}, nil
}

func (p *Parser) parseIf() (ast.Expr, error) {
	start := posOf(p.cur())
	p.advance() // if
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.THEN); err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected then")
	}
	thenE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.ELSE); err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected else")
	}
	elseE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.If{Cond: cond, Then: thenE, Else: elseE, Sp: spanFrom(start, posOf(p.cur()))}, nil
}

func (p *Parser) parseBranch() (ast.Expr, error) {
	start := posOf(p.cur())
	p.advance() // branch
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected { after branch")
	}
	var cases []ast.BranchCase
	var otherwise ast.Expr
	p.skipSeparators()
	for !p.at(lexer.RBRACE) {
		if p.at(lexer.OTHERWISE) {
			p.advance()
			if _, err := p.expect(lexer.ARROW); err != nil {
				return nil, p.errf(errors.PAR003, p.cur(), "expected -> after otherwise")
			}
			body, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			otherwise = body
			p.skipSeparators()
			continue
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.ARROW); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected -> in branch case")
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cases = append(cases, ast.BranchCase{Cond: cond, Body: body})
		p.skipSeparators()
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected } to close branch")
	}
	if otherwise == nil {
		return nil, p.errf(errors.PAR003, p.cur(), "branch requires a mandatory otherwise arm")
	}
	return &ast.Branch{Cases: cases, Otherwise: otherwise, Sp: spanFrom(start, posOf(p.cur()))}, nil
}

func (p *Parser) parseMatch() (ast.Expr, error) {
	start := posOf(p.cur())
	p.advance() // match
	scrutinee, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return nil, p.errf(errors.PAR003, p.cur(), "expected { after match scrutinee")
	}
	var cases []ast.MatchCase
	p.skipSeparators()
	for !p.at(lexer.RBRACE) {
		caseStart := posOf(p.cur())
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.ARROW); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected -> in match case")
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cases = append(cases, ast.MatchCase{Pattern: pat, Body: body, Sp: spanFrom(caseStart, posOf(p.cur()))})
		p.skipSeparators()
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected } to close match")
	}
	return &ast.Match{Scrutinee: scrutinee, Cases: cases, Sp: spanFrom(start, posOf(p.cur()))}, nil
}

// parseParenOrLambda disambiguates `(expr)` from `(x, y) => expr` by
// trying the lambda parameter list first and backtracking if it doesn't
// resolve to `=>`.
func (p *Parser) parseParenOrLambda() (ast.Expr, error) {
	start := posOf(p.cur())
	savedPos := p.pos
	if params, ok := p.tryParseLambdaParams(); ok {
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Lambda{Params: params, Body: body, Sp: spanFrom(start, posOf(p.cur()))}, nil
	}
	p.pos = savedPos
	p.advance() // (
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected ) to close parenthesized expression")
	}
	return e, nil
}

// tryParseLambdaParams speculatively parses `(p1[: T1], p2[: T2], ...) =>`
// and reports whether it succeeded; on failure the caller restores pos.
func (p *Parser) tryParseLambdaParams() ([]ast.LambdaParam, bool) {
	if !p.at(lexer.LPAREN) {
		return nil, false
	}
	p.advance()
	var params []ast.LambdaParam
	for !p.at(lexer.RPAREN) {
		if !p.at(lexer.IDENT) {
			return nil, false
		}
		name := p.advance().Literal
		var typ ast.TypeExpr
		if p.at(lexer.COLON) {
			p.advance()
			t, err := p.parseTypeExpr()
			if err != nil {
				return nil, false
			}
			typ = t
		}
		params = append(params, ast.LambdaParam{Name: name, Type: typ})
		if p.at(lexer.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if !p.at(lexer.RPAREN) {
		return nil, false
	}
	p.advance()
	if !p.at(lexer.FARROW) {
		return nil, false
	}
	p.advance()
	return params, true
}

func (p *Parser) parseListLiteral() (ast.Expr, error) {
	start := posOf(p.cur())
	p.advance() // [
	var elems []ast.Expr
	p.skipSeparators()
	for !p.at(lexer.RBRACKET) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.at(lexer.COMMA) || p.at(lexer.NEWLINE) {
			p.skipSeparators()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBRACKET); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected ] to close list literal")
	}
	return &ast.ListLiteral{Elements: elems, Sp: spanFrom(start, posOf(p.cur()))}, nil
}

func (p *Parser) parseRecordLiteral() (ast.Expr, error) {
	start := posOf(p.cur())
	p.advance() // {
	var fields []ast.RecordField
	p.skipSeparators()
	for !p.at(lexer.RBRACE) {
		nameTok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected field name in record literal")
		}
		if _, err := p.expect(lexer.COLON); err != nil {
			return nil, p.errf(errors.PAR003, p.cur(), "expected : after field name %q", nameTok.Literal)
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.RecordField{Name: nameTok.Literal, Value: v})
		if p.at(lexer.COMMA) || p.at(lexer.NEWLINE) {
			p.skipSeparators()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, p.errf(errors.PAR002, p.cur(), "expected } to close record literal")
	}
	return &ast.RecordLiteral{Fields: fields, Sp: spanFrom(start, posOf(p.cur()))}, nil
}
