// Package protocol implements the line codec for the game protocol.
//
// A protocol line is a sequence of fields separated by a single space and
// terminated by a newline. The first field is the command tag, the remaining
// fields are the tag's arguments. Client-to-server and server-to-client
// lines use separate tag tables because a few tags (MOVE, RQ) carry a
// different argument schema in each direction.
package protocol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Separator is the field delimiter within a protocol line.
const Separator = " "

// Tag identifies a protocol command.
type Tag string

// Client-to-server tags.
const (
	TagNick     Tag = "NICK"
	TagList     Tag = "LIST"
	TagRequest  Tag = "RQ"
	TagCancel   Tag = "RQ_CANCEL"
	TagReply    Tag = "RPL"
	TagMove     Tag = "MOVE"
	TagPing     Tag = "PING"
	TagPong     Tag = "PONG"
	TagSay      Tag = "SAY"
	TagQuit     Tag = "QUIT"
	TagWhoami   Tag = "WHOAMI"
	TagGetState Tag = "STATE"
	TagHelp     Tag = "HELP"
)

// Server-to-client tags.
const (
	TagOK           Tag = "OK"
	TagErr          Tag = "ERR"
	TagListReply    Tag = "LIST"
	TagRequested    Tag = "RQ"
	TagRequestGone  Tag = "RQ_CANCELED"
	TagGameStart    Tag = "GAME_START"
	TagMovePlayed   Tag = "MOVE"
	TagOutcome      Tag = "OUTCOME"
	TagInfo         Tag = "INFO"
	TagSaid         Tag = "SAY"
	TagClientJoined Tag = "ADD_CLIENT"
	TagClientLeft   Tag = "REMOVE_CLIENT"
	TagPlayerState  Tag = "PLAYER_STATE"
	TagRecovery     Tag = "GAME_RECOVERY"
	TagWinningTiles Tag = "WINNING_TILES"
)

// Accept/reject replies to a game request.
const (
	ReplyAccept = "YES"
	ReplyReject = "NO"
)

// Message is one parsed protocol line.
type Message struct {
	Tag  Tag
	Args []string
}

// New builds a message from a tag and its arguments.
func New(tag Tag, args ...string) Message {
	return Message{Tag: tag, Args: args}
}

// Serialize renders the message as a single protocol line, without the
// trailing newline.
func (m Message) Serialize() string {
	if len(m.Args) == 0 {
		return string(m.Tag)
	}
	return string(m.Tag) + Separator + strings.Join(m.Args, Separator)
}

// Arg returns the i-th argument, or the empty string if there is none.
func (m Message) Arg(i int) string {
	if i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

// Tail returns the arguments from index i onwards joined back into a single
// string. Used for free-text fields that may contain the separator.
func (m Message) Tail(i int) string {
	if i >= len(m.Args) {
		return ""
	}
	return strings.Join(m.Args[i:], Separator)
}

// Column returns the column argument of a MOVE message.
func (m Message) Column() (int, error) {
	col, err := strconv.Atoi(m.Arg(0))
	if err != nil {
		return 0, errors.Wrap(ErrMalformed, "column is not a number")
	}
	return col, nil
}

// schema describes the accepted argument shape of a tag. maxArgs < 0 means
// the tag takes an unbounded free-text tail.
type schema struct {
	minArgs int
	maxArgs int
	check   func(args []string) error
}

var clientSchemas = map[Tag]schema{
	TagNick:     {minArgs: 1, maxArgs: 1, check: checkNick},
	TagList:     {minArgs: 0, maxArgs: 0},
	TagRequest:  {minArgs: 1, maxArgs: 1},
	TagCancel:   {minArgs: 0, maxArgs: 0},
	TagReply:    {minArgs: 1, maxArgs: 1, check: checkReply},
	TagMove:     {minArgs: 1, maxArgs: 1, check: checkColumn},
	TagPing:     {minArgs: 0, maxArgs: 0},
	TagPong:     {minArgs: 0, maxArgs: 0},
	TagSay:      {minArgs: 1, maxArgs: -1},
	TagQuit:     {minArgs: 0, maxArgs: 0},
	TagWhoami:   {minArgs: 0, maxArgs: 0},
	TagGetState: {minArgs: 0, maxArgs: 0},
	TagHelp:     {minArgs: 0, maxArgs: 0},
}

var serverSchemas = map[Tag]schema{
	TagOK:           {minArgs: 0, maxArgs: 0},
	TagErr:          {minArgs: 1, maxArgs: -1},
	TagListReply:    {minArgs: 0, maxArgs: -1},
	TagRequestGone:  {minArgs: 1, maxArgs: 1},
	TagGameStart:    {minArgs: 2, maxArgs: 2},
	TagOutcome:      {minArgs: 1, maxArgs: -1},
	TagInfo:         {minArgs: 1, maxArgs: -1},
	TagClientJoined: {minArgs: 1, maxArgs: 1},
	TagClientLeft:   {minArgs: 1, maxArgs: 1},
	TagPlayerState:  {minArgs: 2, maxArgs: 2},
	TagRecovery:     {minArgs: 2, maxArgs: -1},
	TagWinningTiles: {minArgs: 8, maxArgs: 8},
	TagPing:         {minArgs: 0, maxArgs: 0},
	TagPong:         {minArgs: 0, maxArgs: 0},
	// RQ, MOVE and SAY collide with client tags but carry an
	// originating nickname in this direction.
	TagRequested:  {minArgs: 1, maxArgs: 1},
	TagMovePlayed: {minArgs: 3, maxArgs: 3},
	TagSaid:       {minArgs: 2, maxArgs: -1},
}

// ParseClient parses a line sent by a client.
func ParseClient(line string) (Message, error) {
	return parse(line, clientSchemas)
}

// ParseServer parses a line sent by the server.
func ParseServer(line string) (Message, error) {
	return parse(line, serverSchemas)
}

func parse(line string, schemas map[Tag]schema) (Message, error) {
	fields := split(line)
	if len(fields) == 0 {
		return Message{}, errors.Wrap(ErrMalformed, "empty line")
	}
	tag := Tag(fields[0])
	s, ok := schemas[tag]
	if !ok {
		return Message{}, errors.Wrapf(ErrMalformed, "unknown tag %q", fields[0])
	}
	args := fields[1:]
	if len(args) < s.minArgs || (s.maxArgs >= 0 && len(args) > s.maxArgs) {
		return Message{}, errors.Wrapf(ErrMalformed, "tag %s takes %d argument(s), got %d", tag, s.minArgs, len(args))
	}
	if s.check != nil {
		if err := s.check(args); err != nil {
			return Message{}, err
		}
	}
	return Message{Tag: tag, Args: args}, nil
}

// split tokenizes a line on the separator, dropping empty fields so that
// repeated separators cannot smuggle empty arguments through validation.
func split(line string) []string {
	var fields []string
	for _, f := range strings.Split(strings.TrimSpace(line), Separator) {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func checkNick(args []string) error {
	if !nickRe.MatchString(args[0]) {
		return errors.Wrapf(ErrMalformed, "invalid nickname %q", args[0])
	}
	return nil
}

func checkReply(args []string) error {
	if args[0] != ReplyAccept && args[0] != ReplyReject {
		return errors.Wrapf(ErrMalformed, "reply must be %s or %s", ReplyAccept, ReplyReject)
	}
	return nil
}

func checkColumn(args []string) error {
	if _, err := strconv.Atoi(args[0]); err != nil {
		return errors.Wrapf(ErrMalformed, "column %q is not a number", args[0])
	}
	return nil
}
