package strategy

import "fmt"

// CompileError reports a structurally invalid graph. It is fatal to
// compilation and is never retried.
type CompileError struct {
	NodeID string
	Reason string
}

func (e *CompileError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("compile: %s", e.Reason)
	}
	return fmt.Sprintf("compile: node %s: %s", e.NodeID, e.Reason)
}

func compileErrf(nodeID, format string, args ...any) *CompileError {
	return &CompileError{NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}
