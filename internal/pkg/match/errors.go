package match

import "github.com/pkg/errors"

// ErrNotYourTurn indicates a move by the player whose turn it is not.
var ErrNotYourTurn = errors.New("not your turn")

// ErrMatchOver indicates a move against a match in a terminal state.
var ErrMatchOver = errors.New("match is over")
