package opgraph

import (
	"fmt"
	"strings"
)

// CyclicDependencyError reports a dependency cycle in the operation graph.
// It is a fatal configuration error: the run aborts before any operation
// is dispatched.
type CyclicDependencyError struct {
	// Members are the operation keys forming the cycle, in traversal order.
	Members []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency detected: %s", strings.Join(e.Members, " -> "))
}
