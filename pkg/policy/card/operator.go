package card

import "sort"

// Operator is one of the fixed condition operators.
type Operator string

const (
	OperatorEquals             Operator = "equals"
	OperatorNotEquals          Operator = "not_equals"
	OperatorAnyOf              Operator = "any_of"
	OperatorNotAnyOf           Operator = "not_any_of"
	OperatorContains           Operator = "contains"
	OperatorNotContains        Operator = "not_contains"
	OperatorExists             Operator = "exists"
	OperatorNotExists          Operator = "not_exists"
	OperatorGreaterThan        Operator = "greater_than"
	OperatorLessThan           Operator = "less_than"
	OperatorGreaterThanOrEqual Operator = "greater_than_or_equal"
	OperatorLessThanOrEqual    Operator = "less_than_or_equal"
)

// OperandKind describes the operand shape an operator requires.
type OperandKind int

const (
	// OperandNone means the operator ignores its operand.
	OperandNone OperandKind = iota

	// OperandScalar requires a single string, number or boolean.
	OperandScalar

	// OperandList requires a list of scalars.
	OperandList

	// OperandNumber requires a numeric literal.
	OperandNumber
)

// String returns a human-readable operand kind.
func (k OperandKind) String() string {
	switch k {
	case OperandScalar:
		return "scalar"
	case OperandList:
		return "list"
	case OperandNumber:
		return "number"
	default:
		return "none"
	}
}

var operandKinds = map[Operator]OperandKind{
	OperatorEquals:             OperandScalar,
	OperatorNotEquals:          OperandScalar,
	OperatorAnyOf:              OperandList,
	OperatorNotAnyOf:           OperandList,
	OperatorContains:           OperandScalar,
	OperatorNotContains:        OperandScalar,
	OperatorExists:             OperandNone,
	OperatorNotExists:          OperandNone,
	OperatorGreaterThan:        OperandNumber,
	OperatorLessThan:           OperandNumber,
	OperatorGreaterThanOrEqual: OperandNumber,
	OperatorLessThanOrEqual:    OperandNumber,
}

// Valid reports whether op belongs to the operator set.
func (op Operator) Valid() bool {
	_, ok := operandKinds[op]
	return ok
}

// OperandKind returns the operand shape op requires.
func (op Operator) OperandKind() OperandKind {
	return operandKinds[op]
}

// Operators returns every supported operator name, sorted.
func Operators() []string {
	names := make([]string, 0, len(operandKinds))
	for op := range operandKinds {
		names = append(names, string(op))
	}
	sort.Strings(names)
	return names
}
