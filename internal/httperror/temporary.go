package httperror

import (
	"context"
	"errors"
	"io"
	"os"
)

type temporary interface {
	Temporary() bool
}

// Temporary returns true if err looks like a transient failure that might
// succeed if retried
func Temporary(err error) bool {
	if err == nil {
		return false
	}
	var t temporary
	if errors.As(err, &t) && t.Temporary() {
		return true
	}
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.As(err, new(*os.SyscallError)):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
