package fingerprint

import "fmt"

// MissingInputError reports a declared input path that does not exist. It
// is a fatal configuration error: an operation must never run with an
// undefined fingerprint.
type MissingInputError struct {
	// OperationKey identifies the operation declaring the input.
	OperationKey string
	// Path is the missing input path, relative to the project root.
	Path string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("operation %s declares missing input %q", e.OperationKey, e.Path)
}
