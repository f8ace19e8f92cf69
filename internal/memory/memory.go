// Package memory holds the typed variable store of a play session.
package memory

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Operation is a variable mutation applied by a Variable node.
type Operation string

const (
	OpSet      Operation = "set"
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpSet, OpAdd, OpSubtract, OpMultiply, OpDivide:
		return true
	}
	return false
}

// Pair is one (name, value) write of a mass initialization.
type Pair struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Memory is the variable store. It is owned by exactly one engine and is
// not safe for concurrent use.
type Memory struct {
	vars map[string]Value
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{vars: make(map[string]Value)}
}

// Set creates or overwrites a variable with whatever type v carries.
func (m *Memory) Set(name string, v Value) {
	m.vars[name] = v
}

// Get returns the current value of name.
func (m *Memory) Get(name string) (Value, error) {
	v, ok := m.vars[name]
	if !ok {
		return Value{}, &UndefinedVariableError{Name: name}
	}
	return v, nil
}

// Has reports whether name has been written.
func (m *Memory) Has(name string) bool {
	_, ok := m.vars[name]
	return ok
}

// Len returns the number of defined variables.
func (m *Memory) Len() int {
	return len(m.vars)
}

// Names returns the defined variable names in sorted order.
func (m *Memory) Names() []string {
	names := make([]string, 0, len(m.vars))
	for name := range m.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate evaluates c against the current variables.
func (m *Memory) Evaluate(c Condition) (bool, error) {
	current, err := m.Get(c.Variable)
	if err != nil {
		return false, &InvalidConditionError{Expr: c.String(), Reason: "variable not defined", Err: err}
	}
	return compare(c, current)
}

// EvaluateExpr parses and evaluates a condition expression.
func (m *Memory) EvaluateExpr(expr string) (bool, error) {
	c, err := ParseCondition(expr)
	if err != nil {
		return false, err
	}
	return m.Evaluate(c)
}

// MassInit applies every pair or none of them. Pairs are staged on a copy
// of the store and swapped in only when the whole batch is valid. Pairs with
// an empty name are skipped.
func (m *Memory) MassInit(pairs []Pair) error {
	staged := make(map[string]Value, len(m.vars)+len(pairs))
	for k, v := range m.vars {
		staged[k] = v
	}
	for _, p := range pairs {
		if p.Name == "" {
			continue
		}
		if !p.Value.IsValid() {
			return &OperationError{Variable: p.Name, Operation: OpSet, Reason: "invalid value"}
		}
		staged[p.Name] = p.Value
	}
	m.vars = staged
	return nil
}

// Apply performs op on the named variable and returns the new value.
// Arithmetic on an undefined variable starts from zero; adding a string
// appends to it. Failed operations leave the variable untouched.
func (m *Memory) Apply(name string, op Operation, operand Value) (Value, error) {
	if !operand.IsValid() {
		return Value{}, &OperationError{Variable: name, Operation: op, Reason: "invalid operand"}
	}
	if op == OpSet {
		m.vars[name] = operand
		return operand, nil
	}
	if !op.Valid() {
		return Value{}, &OperationError{Variable: name, Operation: op, Reason: "unknown operation"}
	}

	if s, ok := operand.Text(); ok && op == OpAdd {
		prefix := ""
		if current, exists := m.vars[name]; exists {
			if prefix, ok = current.Text(); !ok {
				return Value{}, &OperationError{Variable: name, Operation: op, Reason: "cannot append to " + current.Kind().String()}
			}
		}
		v := String(prefix + s)
		m.vars[name] = v
		return v, nil
	}

	rhs, ok := operand.Float()
	if !ok {
		return Value{}, &OperationError{Variable: name, Operation: op, Reason: "operand is " + operand.Kind().String()}
	}
	lhs := 0.0
	if current, exists := m.vars[name]; exists {
		if lhs, ok = current.Float(); !ok {
			return Value{}, &OperationError{Variable: name, Operation: op, Reason: "variable is " + current.Kind().String()}
		}
	}

	var result float64
	switch op {
	case OpAdd:
		result = lhs + rhs
	case OpSubtract:
		result = lhs - rhs
	case OpMultiply:
		result = lhs * rhs
	case OpDivide:
		if rhs == 0 {
			return Value{}, &OperationError{Variable: name, Operation: op, Reason: "division by zero"}
		}
		result = lhs / rhs
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return Value{}, &OperationError{Variable: name, Operation: op, Reason: "result out of range"}
	}
	v := Number(result)
	m.vars[name] = v
	return v, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Interpolate replaces {{name}} placeholders with variable values.
// Unknown names are left as written.
func (m *Memory) Interpolate(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := m.vars[name]; ok {
			return v.String()
		}
		return match
	})
}

// Snapshot returns an independent copy of every variable.
func (m *Memory) Snapshot() map[string]Value {
	out := make(map[string]Value, len(m.vars))
	for k, v := range m.vars {
		out[k] = v
	}
	return out
}

// Restore replaces the whole store with a copy of vars.
func (m *Memory) Restore(vars map[string]Value) {
	m.vars = make(map[string]Value, len(vars))
	for k, v := range vars {
		m.vars[k] = v
	}
}

// Clone returns an independent copy of m.
func (m *Memory) Clone() *Memory {
	return &Memory{vars: m.Snapshot()}
}

// Clear removes every variable.
func (m *Memory) Clear() {
	m.vars = make(map[string]Value)
}
