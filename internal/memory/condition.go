package memory

import (
	"strconv"
	"strings"
)

// Operator is a comparison operator. Only the six listed below are
// accepted; anything else fails closed.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// two-character operators must be tried before their one-character prefixes
var operatorScanOrder = []Operator{OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual, OpGreater, OpLess}

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// Condition compares a named variable against a literal.
type Condition struct {
	Variable string   `json:"variable"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// String renders the condition in the expression syntax accepted by ParseCondition.
func (c Condition) String() string {
	lit := c.Value.String()
	if c.Value.Kind() == KindString {
		lit = "'" + lit + "'"
	}
	return c.Variable + " " + string(c.Operator) + " " + lit
}

// ParseCondition parses "<variable> <op> <literal>".
// Literals are numbers, true/false, or single- or double-quoted strings.
//
//	score >= 10
//	name == 'Jack'
//	met_guard != true
func ParseCondition(expr string) (Condition, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Condition{}, &InvalidConditionError{Expr: expr, Reason: "empty expression"}
	}

	var op Operator
	idx := -1
	for _, candidate := range operatorScanOrder {
		i := strings.Index(trimmed, string(candidate))
		if i < 0 {
			continue
		}
		if idx < 0 || i < idx {
			op, idx = candidate, i
		}
	}
	if idx < 0 {
		return Condition{}, &InvalidConditionError{Expr: expr, Reason: "no comparison operator"}
	}

	name := strings.TrimSpace(trimmed[:idx])
	if !validName(name) {
		return Condition{}, &InvalidConditionError{Expr: expr, Reason: "invalid variable name"}
	}

	lit, err := parseLiteral(strings.TrimSpace(trimmed[idx+len(op):]))
	if err != nil {
		return Condition{}, &InvalidConditionError{Expr: expr, Reason: err.Error()}
	}

	return Condition{Variable: name, Operator: op, Value: lit}, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

type literalError string

func (e literalError) Error() string { return string(e) }

func parseLiteral(raw string) (Value, error) {
	if raw == "" {
		return Value{}, literalError("missing literal")
	}
	if n := len(raw); n >= 2 && (raw[0] == '\'' || raw[0] == '"') {
		if raw[n-1] != raw[0] {
			return Value{}, literalError("unterminated string literal")
		}
		return String(raw[1 : n-1]), nil
	}
	switch raw {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, literalError("unsupported literal " + strconv.Quote(raw))
	}
	return Number(f), nil
}

func compare(c Condition, current Value) (bool, error) {
	expr := c.String()
	if !c.Operator.Valid() {
		return false, &InvalidConditionError{Expr: expr, Reason: "unsupported operator " + strconv.Quote(string(c.Operator))}
	}
	if !c.Value.IsValid() {
		return false, &InvalidConditionError{Expr: expr, Reason: "missing literal"}
	}
	if current.Kind() != c.Value.Kind() {
		return false, &InvalidConditionError{
			Expr:   expr,
			Reason: "cannot compare " + current.Kind().String() + " with " + c.Value.Kind().String(),
		}
	}

	if current.Kind() == KindNumber {
		a, _ := current.Float()
		b, _ := c.Value.Float()
		switch c.Operator {
		case OpEqual:
			return a == b, nil
		case OpNotEqual:
			return a != b, nil
		case OpGreater:
			return a > b, nil
		case OpLess:
			return a < b, nil
		case OpGreaterEqual:
			return a >= b, nil
		case OpLessEqual:
			return a <= b, nil
		}
	}

	// strings and booleans only support equality
	switch c.Operator {
	case OpEqual:
		return current.Equal(c.Value), nil
	case OpNotEqual:
		return !current.Equal(c.Value), nil
	}
	return false, &InvalidConditionError{
		Expr:   expr,
		Reason: "operator " + string(c.Operator) + " is not defined for " + current.Kind().String(),
	}
}
