package health

import "errors"

// Repository errors.
var (
	ErrServiceNotFound = errors.New("service not found")
)
