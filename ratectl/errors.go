package ratectl

import (
	"errors"
	"fmt"
)

// ErrConfiguration is returned (wrapped) when a controller cannot be built:
// the catalog exposes no configurations or a parameter is out of range.
var ErrConfiguration = errors.New("ratectl: invalid configuration")

// InvariantViolation is the panic value raised when a lookup that correct
// construction guarantees to succeed does not. Recovering from it would mean
// transmitting at an arbitrary rate.
type InvariantViolation struct {
	Msg string
}

func (v InvariantViolation) Error() string { return "ratectl: invariant violated: " + v.Msg }

func invariant(format string, args ...any) {
	panic(InvariantViolation{Msg: fmt.Sprintf(format, args...)})
}
