package execution

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engines, the lifecycle manager and the API.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrExecution        = errors.New("execution failed")
	ErrConfiguration    = errors.New("configuration error")
	ErrBackendUnhealthy = errors.New("backend unhealthy")
)

// Errorf formats a message and wraps kind so errors.Is(err, kind) holds.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
