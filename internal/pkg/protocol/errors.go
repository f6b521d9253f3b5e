package protocol

import (
	"regexp"

	"github.com/pkg/errors"
)

// ErrMalformed indicates a line that does not follow the protocol: an
// unrecognized tag, a wrong argument count, or an argument of the wrong type.
var ErrMalformed = errors.New("malformed message")

// Error codes carried in the first argument of an ERR reply.
const (
	CodeMalformed     = "MALFORMED"
	CodeCapacity      = "CAPACITY"
	CodeNickTaken     = "NICK_TAKEN"
	CodeBadState      = "BAD_STATE"
	CodeInvalidTarget = "INVALID_TARGET"
	CodeDuplicateRQ   = "DUPLICATE_RQ"
	CodeNotYourTurn   = "NOT_YOUR_TURN"
	CodeInvalidColumn = "INVALID_COLUMN"
)

var nickRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,20}$`)
