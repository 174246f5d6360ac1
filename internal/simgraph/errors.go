package simgraph

import "errors"

// Graph mutation errors.
var (
	ErrCycle              = errors.New("dependency would create a circular dependency")
	ErrDepthExceeded      = errors.New("dependency chain exceeds maximum depth")
	ErrServiceNotFound    = errors.New("service not found")
	ErrDependencyNotFound = errors.New("dependency not found")
)
