package expr

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenPlaceholder
	tokenOperator
	tokenLeftParen
	tokenRightParen
	tokenComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits an expression into tokens. Placeholders keep their field name
// as the token text, without braces.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokenLeftParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRightParen, text: ")", pos: i})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokenComma, text: ",", pos: i})
			i++
		case c == '{':
			end := strings.IndexByte(input[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("expr: unterminated placeholder at position %d", i)
			}
			name := strings.TrimSpace(input[i+1 : i+end])
			if name == "" {
				return nil, fmt.Errorf("expr: empty placeholder at position %d", i)
			}
			tokens = append(tokens, token{kind: tokenPlaceholder, text: name, pos: i})
			i += end + 1
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			var b strings.Builder
			for j < n && input[j] != quote {
				if input[j] == '\\' && j+1 < n {
					j++
				}
				b.WriteByte(input[j])
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("expr: unterminated string at position %d", i)
			}
			tokens = append(tokens, token{kind: tokenString, text: b.String(), pos: i})
			i = j + 1
		case c >= '0' && c <= '9':
			j := i
			seenDot := false
			for j < n && (input[j] >= '0' && input[j] <= '9' || input[j] == '.' && !seenDot) {
				if input[j] == '.' {
					seenDot = true
				}
				j++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: input[i:j], pos: i})
			i = j
		case isIdentByte(c):
			j := i
			for j < n && isIdentByte(input[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: input[i:j], pos: i})
			i = j
		case c == '>' || c == '<' || c == '=' || c == '!':
			op := string(c)
			if i+1 < n && input[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("expr: invalid operator %q at position %d", op, i)
			}
			tokens = append(tokens, token{kind: tokenOperator, text: op, pos: i})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, token{kind: tokenOperator, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("expr: unexpected character %q at position %d", c, i)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: n})
	return tokens, nil
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
