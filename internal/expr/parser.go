package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// node is an AST node. eval must not touch anything outside the row.
type node interface {
	eval(row map[string]string) (value, error)
}

type literalNode struct {
	value value
}

func (n literalNode) eval(map[string]string) (value, error) {
	return n.value, nil
}

type placeholderNode struct {
	name string
}

func (n placeholderNode) eval(row map[string]string) (value, error) {
	raw, ok := row[n.name]
	if !ok {
		return missingValue(), nil
	}
	return stringValue(raw), nil
}

type unaryNode struct {
	op      string
	operand node
}

func (n unaryNode) eval(row map[string]string) (value, error) {
	v, errEval := n.operand.eval(row)
	if errEval != nil {
		return value{}, errEval
	}
	f, errNum := v.asNumber()
	if errNum != nil {
		return value{}, errNum
	}
	return numberValue(-f), nil
}

type binaryNode struct {
	op    string
	left  node
	right node
}

func (n binaryNode) eval(row map[string]string) (value, error) {
	left, errLeft := n.left.eval(row)
	if errLeft != nil {
		return value{}, errLeft
	}
	right, errRight := n.right.eval(row)
	if errRight != nil {
		return value{}, errRight
	}

	switch n.op {
	case "+", "-", "*", "/":
		a, errA := left.asNumber()
		if errA != nil {
			return value{}, errA
		}
		b, errB := right.asNumber()
		if errB != nil {
			return value{}, errB
		}
		switch n.op {
		case "+":
			return numberValue(a + b), nil
		case "-":
			return numberValue(a - b), nil
		case "*":
			return numberValue(a * b), nil
		default:
			if b == 0 {
				return value{}, fmt.Errorf("expr: division by zero")
			}
			return numberValue(a / b), nil
		}
	}

	// Comparisons run numerically when both sides coerce, textually otherwise.
	if left.numeric() && right.numeric() {
		a, _ := left.asNumber()
		b, _ := right.asNumber()
		return boolValue(compareFloats(n.op, a, b)), nil
	}
	return boolValue(compareStrings(n.op, left.asString(), right.asString())), nil
}

func compareFloats(op string, a, b float64) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case "==":
		return a == b
	default:
		return a != b
	}
}

func compareStrings(op, a, b string) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case "==":
		return a == b
	default:
		return a != b
	}
}

type callNode struct {
	name string
	args []node
}

func (n callNode) eval(row map[string]string) (value, error) {
	if n.name == "if" {
		cond, errCond := n.args[0].eval(row)
		if errCond != nil {
			return value{}, errCond
		}
		if cond.asBool() {
			return n.args[1].eval(row)
		}
		return n.args[2].eval(row)
	}

	args := make([]value, len(n.args))
	for i, arg := range n.args {
		v, errArg := arg.eval(row)
		if errArg != nil {
			return value{}, errArg
		}
		args[i] = v
	}

	switch n.name {
	case "concat":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(a.asString())
		}
		return stringValue(b.String()), nil
	case "replace":
		return stringValue(strings.ReplaceAll(args[0].asString(), args[1].asString(), args[2].asString())), nil
	case "split":
		idx, errIdx := args[2].asNumber()
		if errIdx != nil {
			return value{}, errIdx
		}
		parts := strings.Split(args[0].asString(), args[1].asString())
		i := int(idx)
		if i < 0 || i >= len(parts) {
			return stringValue(""), nil
		}
		return stringValue(parts[i]), nil
	case "substring":
		s := args[0].asString()
		start, errStart := args[1].asNumber()
		if errStart != nil {
			return value{}, errStart
		}
		end := float64(len(s))
		if len(args) == 3 {
			var errEnd error
			end, errEnd = args[2].asNumber()
			if errEnd != nil {
				return value{}, errEnd
			}
		}
		return stringValue(substring(s, int(start), int(end))), nil
	case "upper":
		return stringValue(strings.ToUpper(args[0].asString())), nil
	case "lower":
		return stringValue(strings.ToLower(args[0].asString())), nil
	case "trim":
		return stringValue(strings.TrimSpace(args[0].asString())), nil
	}
	return value{}, fmt.Errorf("%w: unknown function %q", ErrUnsafeExpression, n.name)
}

// substring clamps its bounds instead of failing on out-of-range indexes.
func substring(s string, start, end int) string {
	runes := []rune(s)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

// parseExpression := additive ((">"|"<"|">="|"<="|"=="|"!=") additive)?
func (p *parser) parseExpression() (node, error) {
	left, errLeft := p.parseAdditive()
	if errLeft != nil {
		return nil, errLeft
	}
	if t := p.peek(); t.kind == tokenOperator && isComparison(t.text) {
		op := p.next().text
		right, errRight := p.parseAdditive()
		if errRight != nil {
			return nil, errRight
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func isComparison(op string) bool {
	switch op {
	case ">", "<", ">=", "<=", "==", "!=":
		return true
	}
	return false
}

// parseAdditive := multiplicative (("+"|"-") multiplicative)*
func (p *parser) parseAdditive() (node, error) {
	left, errLeft := p.parseMultiplicative()
	if errLeft != nil {
		return nil, errLeft
	}
	for {
		t := p.peek()
		if t.kind != tokenOperator || t.text != "+" && t.text != "-" {
			return left, nil
		}
		op := p.next().text
		right, errRight := p.parseMultiplicative()
		if errRight != nil {
			return nil, errRight
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// parseMultiplicative := unary (("*"|"/") unary)*
func (p *parser) parseMultiplicative() (node, error) {
	left, errLeft := p.parseUnary()
	if errLeft != nil {
		return nil, errLeft
	}
	for {
		t := p.peek()
		if t.kind != tokenOperator || t.text != "*" && t.text != "/" {
			return left, nil
		}
		op := p.next().text
		right, errRight := p.parseUnary()
		if errRight != nil {
			return nil, errRight
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// parseUnary := "-" unary | primary
func (p *parser) parseUnary() (node, error) {
	if t := p.peek(); t.kind == tokenOperator && t.text == "-" {
		p.next()
		operand, errOperand := p.parseUnary()
		if errOperand != nil {
			return nil, errOperand
		}
		return unaryNode{op: "-", operand: operand}, nil
	}
	return p.parsePrimary()
}

// parsePrimary := NUMBER | STRING | PLACEHOLDER | IDENT "(" args ")" | "(" expression ")"
func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber:
		f, errParse := strconv.ParseFloat(t.text, 64)
		if errParse != nil {
			return nil, fmt.Errorf("expr: invalid number %q at position %d", t.text, t.pos)
		}
		return literalNode{value: numberValue(f)}, nil
	case tokenString:
		return literalNode{value: stringValue(t.text)}, nil
	case tokenPlaceholder:
		return placeholderNode{name: t.text}, nil
	case tokenLeftParen:
		inner, errInner := p.parseExpression()
		if errInner != nil {
			return nil, errInner
		}
		if closing := p.next(); closing.kind != tokenRightParen {
			return nil, fmt.Errorf("expr: missing closing parenthesis at position %d", closing.pos)
		}
		return inner, nil
	case tokenIdent:
		switch t.text {
		case "true":
			return literalNode{value: boolValue(true)}, nil
		case "false":
			return literalNode{value: boolValue(false)}, nil
		}
		return p.parseCall(t)
	}
	return nil, fmt.Errorf("expr: unexpected token at position %d", t.pos)
}

// parseCall parses a whitelisted function call. Bare identifiers and
// unknown function names fail closed.
func (p *parser) parseCall(ident token) (node, error) {
	arity, known := helperArity[ident.text]
	if !known {
		return nil, fmt.Errorf("%w: identifier %q is not allowed", ErrUnsafeExpression, ident.text)
	}
	if p.peek().kind != tokenLeftParen {
		return nil, fmt.Errorf("%w: bare identifier %q", ErrUnsafeExpression, ident.text)
	}
	p.next()

	var args []node
	if p.peek().kind != tokenRightParen {
		for {
			arg, errArg := p.parseExpression()
			if errArg != nil {
				return nil, errArg
			}
			args = append(args, arg)
			if p.peek().kind != tokenComma {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.kind != tokenRightParen {
		return nil, fmt.Errorf("expr: missing closing parenthesis in %s() at position %d", ident.text, closing.pos)
	}

	if errArity := checkArity(ident.text, arity, len(args)); errArity != nil {
		return nil, errArity
	}
	return callNode{name: ident.text, args: args}, nil
}

func checkArity(name string, arity, got int) error {
	if name == "substring" {
		if got != 2 && got != 3 {
			return fmt.Errorf("expr: substring() takes 2 or 3 arguments, got %d", got)
		}
		return nil
	}
	if arity == -1 {
		if got < 1 {
			return fmt.Errorf("expr: %s() takes at least 1 argument", name)
		}
		return nil
	}
	if got != arity {
		return fmt.Errorf("expr: %s() takes %d arguments, got %d", name, arity, got)
	}
	return nil
}
