package card

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CompareOp is a binary comparison operator in an escalation trigger.
type CompareOp string

const (
	CompareGreater      CompareOp = ">"
	CompareLess         CompareOp = "<"
	CompareGreaterEqual CompareOp = ">="
	CompareLessEqual    CompareOp = "<="
	CompareEqual        CompareOp = "=="
	CompareNotEqual     CompareOp = "!="
)

// Comparison is a parsed trigger expression: <identifier> <op> <numeric-literal>.
type Comparison struct {
	Identifier string
	Op         CompareOp
	Literal    float64
}

// String renders the comparison back to its canonical text form.
func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Identifier, c.Op, strconv.FormatFloat(c.Literal, 'f', -1, 64))
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ParseComparison parses a single binary comparison. The expression is split
// on the first operator found scanning left to right, two-character operators
// taking precedence at the same position.
func ParseComparison(expr string) (*Comparison, error) {
	idx, op := findCompareOp(expr)
	if op == "" {
		return nil, fmt.Errorf("no comparison operator in %q", expr)
	}

	ident := strings.TrimSpace(expr[:idx])
	literal := strings.TrimSpace(expr[idx+len(op):])

	if ident == "" {
		return nil, fmt.Errorf("missing identifier in %q", expr)
	}
	if !identifierPattern.MatchString(ident) {
		return nil, fmt.Errorf("invalid identifier %q", ident)
	}
	if literal == "" {
		return nil, fmt.Errorf("missing literal in %q", expr)
	}

	value, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("literal %q is not a finite number", literal)
	}

	return &Comparison{Identifier: ident, Op: op, Literal: value}, nil
}

func findCompareOp(expr string) (int, CompareOp) {
	for i := 0; i < len(expr); i++ {
		if i+1 < len(expr) {
			switch CompareOp(expr[i : i+2]) {
			case CompareGreaterEqual, CompareLessEqual, CompareEqual, CompareNotEqual:
				return i, CompareOp(expr[i : i+2])
			}
		}
		switch expr[i] {
		case '>':
			return i, CompareGreater
		case '<':
			return i, CompareLess
		}
	}
	return -1, ""
}
