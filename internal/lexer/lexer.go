package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes pipeline DSL source.
type Lexer struct {
	input        string
	position     int // current position in input (points to current char)
	readPosition int // current reading position in input (after current char)
	ch           rune
	line         int
	column       int
	file         string
}

// New creates a new Lexer. Input passes through Normalize first, so a
// BOM or an NFD-encoded identifier never reaches token scanning.
func New(input string, filename string) *Lexer {
	input = string(Normalize([]byte(input)))
	l := &Lexer{input: input, file: filename, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
	} else {
		var size int
		l.ch, size = utf8.DecodeRuneInString(l.input[l.readPosition:])
		l.position = l.readPosition
		l.readPosition += size
		l.column++
		if l.ch == '\n' {
			l.line++
			l.column = 0
		}
	}
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	ch, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return ch
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespaceExceptNewline()

	line := l.line
	column := l.column

	switch l.ch {
	case '\n':
		tok = NewToken(NEWLINE, "\\n", line, column, l.file)
	case '=':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = NewToken(EQ, string(ch)+string(l.ch), line, column, l.file)
		} else if l.peekChar() == '>' {
			ch := l.ch
			l.readChar()
			tok = NewToken(FARROW, string(ch)+string(l.ch), line, column, l.file)
		} else {
			tok = NewToken(ASSIGN, string(l.ch), line, column, l.file)
		}
	case '+':
		tok = NewToken(PLUS, string(l.ch), line, column, l.file)
	case '!':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = NewToken(NEQ, string(ch)+string(l.ch), line, column, l.file)
		} else {
			tok = NewToken(ILLEGAL, string(l.ch), line, column, l.file)
		}
	case '<':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = NewToken(LTE, string(ch)+string(l.ch), line, column, l.file)
		} else {
			tok = NewToken(LT, string(l.ch), line, column, l.file)
		}
	case '>':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = NewToken(GTE, string(ch)+string(l.ch), line, column, l.file)
		} else {
			tok = NewToken(GT, string(l.ch), line, column, l.file)
		}
	case '-':
		if l.peekChar() == '>' {
			ch := l.ch
			l.readChar()
			tok = NewToken(ARROW, string(ch)+string(l.ch), line, column, l.file)
		} else {
			tok = NewToken(ILLEGAL, string(l.ch), line, column, l.file)
		}
	case '?':
		if l.peekChar() == '?' {
			ch := l.ch
			l.readChar()
			tok = NewToken(COALESCE, string(ch)+string(l.ch), line, column, l.file)
		} else {
			tok = NewToken(ILLEGAL, string(l.ch), line, column, l.file)
		}
	case ':':
		tok = NewToken(COLON, string(l.ch), line, column, l.file)
	case ',':
		tok = NewToken(COMMA, string(l.ch), line, column, l.file)
	case '.':
		tok = NewToken(DOT, string(l.ch), line, column, l.file)
	case '(':
		tok = NewToken(LPAREN, string(l.ch), line, column, l.file)
	case ')':
		tok = NewToken(RPAREN, string(l.ch), line, column, l.file)
	case '{':
		tok = NewToken(LBRACE, string(l.ch), line, column, l.file)
	case '}':
		tok = NewToken(RBRACE, string(l.ch), line, column, l.file)
	case '[':
		tok = NewToken(LBRACKET, string(l.ch), line, column, l.file)
	case ']':
		tok = NewToken(RBRACKET, string(l.ch), line, column, l.file)
	case '@':
		tok = NewToken(AT, string(l.ch), line, column, l.file)
	case '|':
		tok = NewToken(PIPE, string(l.ch), line, column, l.file)
	case '$':
		tok = NewToken(DOLLAR, string(l.ch), line, column, l.file)
	case '#':
		l.skipLineComment()
		return l.NextToken()
	case '"':
		tok.Type = STRING
		tok.Literal = l.readString()
		tok.Line = line
		tok.Column = column
		tok.File = l.file
		return tok
	case 0:
		tok = NewToken(EOF, "", line, column, l.file)
	default:
		if isLetter(l.ch) {
			literal := l.readIdentifier()
			tok = NewToken(LookupIdent(literal), literal, line, column, l.file)
			return tok
		} else if isDigit(l.ch) {
			return l.readNumberLike(line, column)
		}
		tok = NewToken(ILLEGAL, string(l.ch), line, column, l.file)
	}

	l.readChar()
	return tok
}

// skipWhitespaceExceptNewline skips spaces, tabs, and carriage returns;
// newlines are significant (declaration and assignment terminators) and
// are returned as NEWLINE tokens.
func (l *Lexer) skipWhitespaceExceptNewline() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}
}

// skipLineComment consumes a `#`-delimited comment to end of line.
func (l *Lexer) skipLineComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

// readString reads a string literal. Interpolation markers (`${...}`) are
// preserved verbatim in the returned literal; the parser re-lexes each
// embedded expression from the raw text.
func (l *Lexer) readString() string {
	var out strings.Builder
	l.readChar() // skip opening quote

	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				out.WriteRune('\n')
			case 't':
				out.WriteRune('\t')
			case 'r':
				out.WriteRune('\r')
			case '\\':
				out.WriteRune('\\')
			case '"':
				out.WriteRune('"')
			case '$':
				out.WriteRune('$')
			default:
				out.WriteRune(l.ch)
			}
		} else {
			out.WriteRune(l.ch)
		}
		l.readChar()
	}

	l.readChar() // skip closing quote
	return out.String()
}

// durationUnits lists the recognized duration suffixes; a suffix matches
// only when no identifier character follows it.
var durationUnits = []string{"ms", "min", "s", "h", "d"}

// readNumberLike reads an INT, FLOAT, DURATION ("250ms"), or RATE
// ("100/s") literal starting at the current digit.
func (l *Lexer) readNumberLike(line, column int) Token {
	start := l.position
	isFloat := false

	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	numLit := l.input[start:l.position]

	if unit := l.matchDurationUnit(); unit != "" {
		return NewToken(DURATION, numLit+unit, line, column, l.file)
	}

	if l.ch == '/' {
		save := *l
		l.readChar() // consume '/'
		if unit := l.matchDurationUnit(); unit != "" {
			return NewToken(RATE, numLit+"/"+unit, line, column, l.file)
		}
		*l = save
	}

	if isFloat {
		return NewToken(FLOAT, numLit, line, column, l.file)
	}
	return NewToken(INT, numLit, line, column, l.file)
}

// matchDurationUnit consumes and returns a duration unit suffix at the
// current position, or "" (consuming nothing) if none matches.
func (l *Lexer) matchDurationUnit() string {
	for _, u := range durationUnits {
		if l.hasPrefix(u) && !isIdentTail(l.runeAt(len([]rune(u)))) {
			for range u {
				l.readChar()
			}
			return u
		}
	}
	return ""
}

func (l *Lexer) hasPrefix(s string) bool {
	rs := []rune(s)
	for i, r := range rs {
		if l.runeAt(i) != r {
			return false
		}
	}
	return true
}

// runeAt returns the rune n positions ahead of the current char (0 is
// the current char itself).
func (l *Lexer) runeAt(n int) rune {
	if n == 0 {
		return l.ch
	}
	pos := l.readPosition
	var r rune
	for i := 1; i <= n; i++ {
		if pos >= len(l.input) {
			return 0
		}
		var size int
		r, size = utf8.DecodeRuneInString(l.input[pos:])
		pos += size
	}
	return r
}

func isIdentTail(ch rune) bool {
	return isLetter(ch) || isDigit(ch)
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isDigit(ch rune) bool {
	return unicode.IsDigit(ch)
}

// Error represents a lexer error.
type Error struct {
	Message string
	Line    int
	Column  int
	File    string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}
