package memory

import "fmt"

// UndefinedVariableError indicates a read of a variable that was never written.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return "undefined variable: " + e.Name
}

// InvalidConditionError indicates a condition that cannot be evaluated:
// a malformed expression, an unsupported operator, a type mismatch or an
// undefined variable (in which case Err is an *UndefinedVariableError).
type InvalidConditionError struct {
	Expr   string
	Reason string
	Err    error
}

func (e *InvalidConditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid condition %q: %s: %v", e.Expr, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid condition %q: %s", e.Expr, e.Reason)
}

func (e *InvalidConditionError) Unwrap() error {
	return e.Err
}

// OperationError indicates a variable operation that could not be applied.
type OperationError struct {
	Variable  string
	Operation Operation
	Reason    string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s", e.Operation, e.Variable, e.Reason)
}
