package protocol

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseClientValid(t *testing.T) {
	tests := []struct {
		line string
		want Message
	}{
		{"NICK alice", New(TagNick, "alice")},
		{"LIST", New(TagList)},
		{"RQ bob", New(TagRequest, "bob")},
		{"RQ_CANCEL", New(TagCancel)},
		{"RPL YES", New(TagReply, "YES")},
		{"RPL NO", New(TagReply, "NO")},
		{"MOVE 3", New(TagMove, "3")},
		{"PING", New(TagPing)},
		{"PONG", New(TagPong)},
		{"SAY good game", New(TagSay, "good", "game")},
		{"QUIT", New(TagQuit)},
	}
	for _, tt := range tests {
		msg, err := ParseClient(tt.line)
		require.NoError(t, err, tt.line)
		require.Equal(t, tt.want, msg, tt.line)
	}
}

func TestParseClientRejects(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"BOGUS",
		"NICK",
		"NICK two words",
		"NICK bad!chars",
		"NICK " + strings.Repeat("a", 21),
		"RPL MAYBE",
		"MOVE",
		"MOVE x",
		"MOVE 1 2",
		"LIST extra",
		"SAY",
		"OK", // server tag, not valid from a client
	}
	for _, line := range lines {
		_, err := ParseClient(line)
		require.Error(t, err, "line %q", line)
		require.True(t, errors.Is(err, ErrMalformed), "line %q: %v", line, err)
	}
}

func TestDirectionalSchemas(t *testing.T) {
	// MOVE, RQ and SAY carry different shapes per direction.
	_, err := ParseClient("MOVE 3")
	require.NoError(t, err)
	_, err = ParseServer("MOVE 3")
	require.Error(t, err)
	msg, err := ParseServer("MOVE alice 5 3")
	require.NoError(t, err)
	require.Equal(t, New(TagMovePlayed, "alice", "5", "3"), msg)

	_, err = ParseClient("SAY hello")
	require.NoError(t, err)
	_, err = ParseServer("SAY hello")
	require.Error(t, err)
	_, err = ParseServer("SAY alice hello there")
	require.NoError(t, err)
}

func TestParseServerValid(t *testing.T) {
	msg, err := ParseServer("GAME_START bob YES")
	require.NoError(t, err)
	require.Equal(t, "bob", msg.Arg(0))
	require.Equal(t, "YES", msg.Arg(1))

	msg, err = ParseServer("ERR BAD_STATE not in a game")
	require.NoError(t, err)
	require.Equal(t, "BAD_STATE", msg.Arg(0))
	require.Equal(t, "not in a game", msg.Tail(1))

	_, err = ParseServer("WINNING_TILES 5 3 5 4 5 5 5 6")
	require.NoError(t, err)
	_, err = ParseServer("WINNING_TILES 5 3")
	require.Error(t, err)
}

func TestSerialize(t *testing.T) {
	require.Equal(t, "OK", New(TagOK).Serialize())
	require.Equal(t, "GAME_START bob NO", New(TagGameStart, "bob", "NO").Serialize())

	// Round-trip through the parser.
	out := New(TagMovePlayed, "alice", "5", "3").Serialize()
	msg, err := ParseServer(out)
	require.NoError(t, err)
	require.Equal(t, out, msg.Serialize())
}

func TestSplitCollapsesRepeatedSeparators(t *testing.T) {
	msg, err := ParseClient("  NICK   alice  ")
	require.NoError(t, err)
	require.Equal(t, New(TagNick, "alice"), msg)

	// Repeated separators must not smuggle an empty argument through.
	_, err = ParseClient("NICK  ")
	require.Error(t, err)
}

func TestColumn(t *testing.T) {
	msg := New(TagMove, "4")
	col, err := msg.Column()
	require.NoError(t, err)
	require.Equal(t, 4, col)

	_, err = New(TagMove, "x").Column()
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestArgBeyondBounds(t *testing.T) {
	msg := New(TagOK)
	require.Equal(t, "", msg.Arg(0))
	require.Equal(t, "", msg.Tail(0))
}
