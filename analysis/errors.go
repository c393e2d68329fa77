package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when either recording is absent
	ErrMissingInput = errors.New("missing input recording")

	// ErrDecodeFailure is matched by every *DecodeError
	ErrDecodeFailure = errors.New("decode failure")
)

// Role names which of the two recordings an error or summary refers to
type Role string

const (
	RoleOriginal Role = "original"
	RoleUser     Role = "user"
)

// DecodeError carries a decoder failure for one recording unchanged
type DecodeError struct {
	Role Role
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s recording %q: %v", e.Role, e.Path, e.Err)
}

// Unwrap exposes the decoder's error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecodeFailure) hold for any DecodeError
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecodeFailure
}

func missing(role Role) error {
	return fmt.Errorf("%w: %s", ErrMissingInput, role)
}
