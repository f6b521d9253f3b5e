package hub

import "github.com/pkg/errors"

// ErrCapacityExceeded indicates that the registry is full and the new
// connection must be rejected.
var ErrCapacityExceeded = errors.New("client capacity exceeded")

// ErrInvalidTarget indicates a matchmaking call naming a session that does
// not exist or is not available.
var ErrInvalidTarget = errors.New("invalid target")

// ErrDuplicateRequest indicates a session trying to open a second game
// request while one is already pending.
var ErrDuplicateRequest = errors.New("duplicate game request")
