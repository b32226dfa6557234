// Package expr evaluates computed-column expressions over a joined row.
//
// The grammar is deliberately small: placeholders in braces, a fixed helper
// whitelist, arithmetic, and comparisons. Template content is uploaded by
// semi-trusted admins, so nothing outside that grammar ever executes; any
// unknown identifier fails closed with ErrUnsafeExpression.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsafeExpression indicates the expression references an identifier
// outside the helper whitelist.
var ErrUnsafeExpression = errors.New("expr: unsafe expression")

// errMissingNumber indicates a missing placeholder was used where a number
// is required. Callers fall back to the column default.
var errMissingNumber = errors.New("expr: missing placeholder in arithmetic context")

// helperArity maps every allowed function to its argument count; -1 means
// variadic with at least one argument.
var helperArity = map[string]int{
	"concat":    -1,
	"replace":   3,
	"split":     3,
	"substring": 2,
	"upper":     1,
	"lower":     1,
	"trim":      1,
	"if":        3,
}

// Expr is a parsed computed-column expression, reusable across rows.
type Expr struct {
	root         node
	placeholders []string
}

// Parse compiles an expression. Parsing is independent of row data so
// template documents can be validated at upload time.
func Parse(input string) (*Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("expr: empty expression")
	}
	tokens, errLex := lex(input)
	if errLex != nil {
		return nil, errLex
	}
	p := &parser{tokens: tokens}
	root, errParse := p.parseExpression()
	if errParse != nil {
		return nil, errParse
	}
	if p.peek().kind != tokenEOF {
		return nil, fmt.Errorf("expr: unexpected trailing input at position %d", p.peek().pos)
	}

	e := &Expr{root: root}
	collectPlaceholders(root, &e.placeholders)
	return e, nil
}

// Placeholders returns the field names the expression references, in order
// of first appearance.
func (e *Expr) Placeholders() []string {
	return append([]string(nil), e.placeholders...)
}

// Eval evaluates the expression against a row. Missing placeholders resolve
// to the empty string in string contexts and fail the expression in
// arithmetic contexts.
func (e *Expr) Eval(row map[string]string) (string, error) {
	v, errEval := e.root.eval(row)
	if errEval != nil {
		return "", errEval
	}
	return v.asString(), nil
}

func collectPlaceholders(n node, out *[]string) {
	switch t := n.(type) {
	case placeholderNode:
		for _, existing := range *out {
			if existing == t.name {
				return
			}
		}
		*out = append(*out, t.name)
	case binaryNode:
		collectPlaceholders(t.left, out)
		collectPlaceholders(t.right, out)
	case unaryNode:
		collectPlaceholders(t.operand, out)
	case callNode:
		for _, arg := range t.args {
			collectPlaceholders(arg, out)
		}
	}
}

// value is an evaluated expression result.
type value struct {
	str     string
	num     float64
	boolean bool
	kind    valueKind
	missing bool
}

type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
)

func stringValue(s string) value  { return value{kind: kindString, str: s} }
func numberValue(f float64) value { return value{kind: kindNumber, num: f} }
func boolValue(b bool) value      { return value{kind: kindBool, boolean: b} }

// missingValue marks an unresolved placeholder. It reads as an empty string
// and refuses numeric coercion.
func missingValue() value { return value{kind: kindString, missing: true} }

func (v value) asString() string {
	switch v.kind {
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	}
	return v.str
}

func (v value) asNumber() (float64, error) {
	switch v.kind {
	case kindNumber:
		return v.num, nil
	case kindBool:
		if v.boolean {
			return 1, nil
		}
		return 0, nil
	}
	if v.missing {
		return 0, errMissingNumber
	}
	f, errParse := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
	if errParse != nil {
		return 0, fmt.Errorf("expr: %q is not a number", v.str)
	}
	return f, nil
}

func (v value) asBool() bool {
	switch v.kind {
	case kindBool:
		return v.boolean
	case kindNumber:
		return v.num != 0
	}
	return v.str != ""
}

// numeric reports whether the value can participate in numeric comparison.
func (v value) numeric() bool {
	_, err := v.asNumber()
	return err == nil
}
