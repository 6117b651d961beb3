package lexer

import "testing"

func TestNextToken(t *testing.T) {
	input := `in amount: Float
in user: { id: String, tier: String }
@sensitive(true)
in token: String

use billing.stripe as stripe

type Receipt = { id: String, total: Float }

result = charge(amount, token) with { retries: 3, delay: 250ms }
flagged = amount > 100.0 and user.tier != "gold"
limited = 100/s

# a comment
status = if flagged then "review" else "ok"

out result
`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{IN, "in"},
		{IDENT, "amount"},
		{COLON, ":"},
		{FLOAT_T, "Float"},
		{NEWLINE, "\\n"},

		{IN, "in"},
		{IDENT, "user"},
		{COLON, ":"},
		{LBRACE, "{"},
		{IDENT, "id"},
		{COLON, ":"},
		{STRING_T, "String"},
		{COMMA, ","},
		{IDENT, "tier"},
		{COLON, ":"},
		{STRING_T, "String"},
		{RBRACE, "}"},
		{NEWLINE, "\\n"},

		{AT, "@"},
		{IDENT, "sensitive"},
		{LPAREN, "("},
		{TRUE, "true"},
		{RPAREN, ")"},
		{NEWLINE, "\\n"},
		{IN, "in"},
		{IDENT, "token"},
		{COLON, ":"},
		{STRING_T, "String"},
		{NEWLINE, "\\n"},

		{NEWLINE, "\\n"},
		{USE, "use"},
		{IDENT, "billing"},
		{DOT, "."},
		{IDENT, "stripe"},
		{AS, "as"},
		{IDENT, "stripe"},
		{NEWLINE, "\\n"},

		{NEWLINE, "\\n"},
		{TYPE, "type"},
		{IDENT, "Receipt"},
		{ASSIGN, "="},
		{LBRACE, "{"},
		{IDENT, "id"},
		{COLON, ":"},
		{STRING_T, "String"},
		{COMMA, ","},
		{IDENT, "total"},
		{COLON, ":"},
		{FLOAT_T, "Float"},
		{RBRACE, "}"},
		{NEWLINE, "\\n"},

		{NEWLINE, "\\n"},
		{IDENT, "result"},
		{ASSIGN, "="},
		{IDENT, "charge"},
		{LPAREN, "("},
		{IDENT, "amount"},
		{COMMA, ","},
		{IDENT, "token"},
		{RPAREN, ")"},
		{WITH, "with"},
		{LBRACE, "{"},
		{IDENT, "retries"},
		{COLON, ":"},
		{INT, "3"},
		{COMMA, ","},
		{IDENT, "delay"},
		{COLON, ":"},
		{DURATION, "250ms"},
		{RBRACE, "}"},
		{NEWLINE, "\\n"},

		{IDENT, "flagged"},
		{ASSIGN, "="},
		{IDENT, "amount"},
		{GT, ">"},
		{FLOAT, "100.0"},
		{AND, "and"},
		{IDENT, "user"},
		{DOT, "."},
		{IDENT, "tier"},
		{NEQ, "!="},
		{STRING, "gold"},
		{NEWLINE, "\\n"},

		{IDENT, "limited"},
		{ASSIGN, "="},
		{RATE, "100/s"},
		{NEWLINE, "\\n"},

		{NEWLINE, "\\n"},
		{NEWLINE, "\\n"}, // end of the comment line
		{IDENT, "status"},
		{ASSIGN, "="},
		{IF, "if"},
		{IDENT, "flagged"},
		{THEN, "then"},
		{STRING, "review"},
		{ELSE, "else"},
		{STRING, "ok"},
		{NEWLINE, "\\n"},

		{NEWLINE, "\\n"},
		{OUT, "out"},
		{IDENT, "result"},
		{NEWLINE, "\\n"},

		{EOF, ""},
	}

	l := New(input, "test.flow")

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (literal=%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}

		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestDurationAndRateLiterals(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"250ms", DURATION, "250ms"},
		{"5s", DURATION, "5s"},
		{"1min", DURATION, "1min"},
		{"2h", DURATION, "2h"},
		{"1d", DURATION, "1d"},
		{"100/s", RATE, "100/s"},
		{"5/min", RATE, "5/min"},
		{"42", INT, "42"},
		{"3.14", FLOAT, "3.14"},
	}

	for _, tt := range tests {
		l := New(tt.input, "test.flow")
		tok := l.NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.lit {
			t.Errorf("input %q: expected %q %q, got %q %q", tt.input, tt.typ, tt.lit, tok.Type, tok.Literal)
		}
	}
}

func TestStringInterpolationPreserved(t *testing.T) {
	l := New(`"hello ${name}!"`, "test.flow")
	tok := l.NextToken()
	if tok.Type != STRING {
		t.Fatalf("expected STRING, got %q", tok.Type)
	}
	if tok.Literal != "hello ${name}!" {
		t.Fatalf("unexpected literal: %q", tok.Literal)
	}
}

func TestLineComment(t *testing.T) {
	l := New("x = 1 # trailing comment\ny = 2", "test.flow")
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == EOF {
			break
		}
	}
	want := []TokenType{IDENT, ASSIGN, INT, NEWLINE, IDENT, ASSIGN, INT, EOF}
	if len(types) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(types), types)
	}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("token %d: expected %q, got %q", i, w, types[i])
		}
	}
}
