// remote/errors.go
package remote

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrOffline          = errors.New("store unavailable")
	ErrInvalidPath      = errors.New("invalid path")
	ErrInvalidValue     = errors.New("invalid value")
)

// WriteError is returned by every rejected write, update or remove.
type WriteError struct {
	Op   Op
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// AsWriteError wraps err unless it already is a WriteError.
func AsWriteError(op Op, path string, err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Op: op, Path: path, Err: err}
}

// Code is the wire name of an error's cause.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	case errors.Is(err, ErrOffline):
		return "unavailable"
	default:
		return "internal"
	}
}

// FromCode reverses Code. Unknown codes become a plain error carrying msg.
func FromCode(code, msg string) error {
	switch code {
	case "":
		return nil
	case "permission_denied":
		return ErrPermissionDenied
	case "invalid_path":
		return ErrInvalidPath
	case "invalid_value":
		return ErrInvalidValue
	case "unavailable":
		return ErrOffline
	default:
		return errors.New(msg)
	}
}
