package expr

import (
	"errors"
	"strings"
	"testing"
)

func eval(t *testing.T, input string, row map[string]string) string {
	t.Helper()
	e, errParse := Parse(input)
	if errParse != nil {
		t.Fatalf("parse %q: %v", input, errParse)
	}
	out, errEval := e.Eval(row)
	if errEval != nil {
		t.Fatalf("eval %q: %v", input, errEval)
	}
	return out
}

func TestEval_Helpers(t *testing.T) {
	row := map[string]string{"first": "Ada", "last": "Lovelace", "phone": " 555-1234 "}

	cases := []struct {
		input string
		want  string
	}{
		{`concat({first}, " ", {last})`, "Ada Lovelace"},
		{`replace({phone}, "-", "")`, " 5551234 "},
		{`trim({phone})`, "555-1234"},
		{`split(trim({phone}), "-", 1)`, "1234"},
		{`split(trim({phone}), "-", 9)`, ""},
		{`substring({last}, 0, 4)`, "Love"},
		{`substring({last}, 4)`, "lace"},
		{`substring({last}, 0, 100)`, "Lovelace"},
		{`upper({first})`, "ADA"},
		{`lower({last})`, "lovelace"},
		{`if({first} == "Ada", "yes", "no")`, "yes"},
	}
	for _, tc := range cases {
		if got := eval(t, tc.input, row); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.input, tc.want, got)
		}
	}
}

func TestEval_Arithmetic(t *testing.T) {
	row := map[string]string{"qty": "3", "price": "2.50"}

	cases := []struct {
		input string
		want  string
	}{
		{`{qty} * {price}`, "7.5"},
		{`{qty} + 1`, "4"},
		{`({qty} + 1) * 2`, "8"},
		{`-{qty}`, "-3"},
		{`10 / 4`, "2.5"},
	}
	for _, tc := range cases {
		if got := eval(t, tc.input, row); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.input, tc.want, got)
		}
	}
}

func TestEval_Comparisons(t *testing.T) {
	row := map[string]string{"qty": "10", "name": "beta"}

	// Both sides numeric: compared as numbers, so "10" > "9".
	if got := eval(t, `if({qty} > 9, "big", "small")`, row); got != "big" {
		t.Fatalf("numeric comparison failed, got %q", got)
	}
	// One side non-numeric: compared as strings.
	if got := eval(t, `if({name} < "gamma", "lt", "ge")`, row); got != "lt" {
		t.Fatalf("string comparison failed, got %q", got)
	}
	if got := eval(t, `if({qty} != 10, "ne", "eq")`, row); got != "eq" {
		t.Fatalf("equality comparison failed, got %q", got)
	}
}

func TestEval_MissingPlaceholders(t *testing.T) {
	row := map[string]string{"present": "x"}

	// String context: missing resolves to the empty string.
	if got := eval(t, `concat("[", {absent}, "]")`, row); got != "[]" {
		t.Fatalf("missing placeholder must read as empty in string context, got %q", got)
	}

	// Arithmetic context: missing fails the expression.
	e, errParse := Parse(`{absent} + 1`)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if _, errEval := e.Eval(row); errEval == nil {
		t.Fatalf("missing placeholder must fail arithmetic")
	}

	// Present-but-empty is a value, not a missing placeholder.
	if got := eval(t, `if({present} == "x", "ok", "no")`, row); got != "ok" {
		t.Fatalf("unexpected placeholder handling, got %q", got)
	}
}

func TestParse_UnsafeExpressionsFailClosed(t *testing.T) {
	inputs := []string{
		`__import__('os')`,
		`system("rm -rf /")`,
		`exec({x})`,
		`concat`,
		`eval("1+1")`,
	}
	for _, input := range inputs {
		_, errParse := Parse(input)
		if !errors.Is(errParse, ErrUnsafeExpression) {
			t.Fatalf("%s: expected ErrUnsafeExpression, got %v", input, errParse)
		}
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	inputs := []string{
		``,
		`  `,
		`concat("a"`,
		`{unclosed`,
		`1 +`,
		`replace("a", "b")`,
		`substring("a")`,
		`upper("a") upper("b")`,
		`{a} = 1`,
	}
	for _, input := range inputs {
		if _, errParse := Parse(input); errParse == nil {
			t.Fatalf("%q: expected a parse error", input)
		}
	}
}

func TestEval_DivisionByZero(t *testing.T) {
	e, errParse := Parse(`1 / {qty}`)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	_, errEval := e.Eval(map[string]string{"qty": "0"})
	if errEval == nil || !strings.Contains(errEval.Error(), "division by zero") {
		t.Fatalf("expected division-by-zero error, got %v", errEval)
	}
}

func TestPlaceholders_CollectedInOrder(t *testing.T) {
	e, errParse := Parse(`concat({b}, {a}, {b})`)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	got := e.Placeholders()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("unexpected placeholders %v", got)
	}
}

func TestEval_IfIsLazy(t *testing.T) {
	// The untaken branch would divide by zero if it were evaluated.
	row := map[string]string{"zero": "0"}
	if got := eval(t, `if(true, "safe", 1 / {zero})`, row); got != "safe" {
		t.Fatalf("if() must not evaluate the untaken branch, got %q", got)
	}
}
