// domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFoundLocally means an id lookup missed the local collections. The
// item may still be on its way from the remote store.
var ErrNotFoundLocally = errors.New("not found locally")

// ValidationError rejects input before it reaches the remote store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
