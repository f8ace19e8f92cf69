package engine

import "fmt"

// InvalidChoiceError reports a Choose index that is out of range or hidden.
// The engine state is unchanged.
type InvalidChoiceError struct {
	NodeID string
	Index  int
	Reason string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("invalid choice %d at node %s: %s", e.Index, e.NodeID, e.Reason)
}

// EngineHaltedError is returned by Advance and Choose once the engine is halted.
type EngineHaltedError struct {
	NodeID     string
	Diagnostic string
}

func (e *EngineHaltedError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("engine halted at node %s: %s", e.NodeID, e.Diagnostic)
	}
	return fmt.Sprintf("engine halted at node %s", e.NodeID)
}

// StateError reports a call that does not fit the current state, such as
// Advance while a choice is pending.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

// StepLimitError is returned when a single call walks more nodes than the
// configured limit without reaching a pause.
type StepLimitError struct {
	Limit int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("walked %d nodes without a pause", e.Limit)
}

// NoVisibleChoiceError is returned when every option of a choice is hidden.
type NoVisibleChoiceError struct{}

func (e *NoVisibleChoiceError) Error() string {
	return "no visible option"
}

// NodeError locates an authoring error at the node that raised it.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
