package game

import (
	"errors"
	"fmt"

	"github.com/flipmatch/flipmatch/internal/engine"
)

// ErrGameFull signals a join against a roster already at capacity. It is
// surfaced to the user as a blocking message; the stored state is left
// untouched. Shares identity with the engine's rejection so errors.Is
// works across layers.
var ErrGameFull = engine.ErrGameFull

// ErrAuthorizationDenied signals that channel authorization was refused.
// The client can still play locally but will not receive realtime updates.
var ErrAuthorizationDenied = errors.New("channel authorization denied")

// TransportError wraps a store-write or publish failure. These are
// reported, never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
