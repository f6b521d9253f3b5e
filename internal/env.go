// Package internal holds the process-level configuration surface: CLI
// flags, their environment fallbacks, and the parsed values.
package internal

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Flag binds a CLI flag to an environment variable with a default.
// Resolution order is flag, then environment, then default.
type Flag struct {
	Name    string
	EnvVar  string
	Default string
	Usage   string

	value string
}

// resolve returns the effective raw value of the flag.
func (f *Flag) resolve() string {
	if f.value != "" {
		return f.value
	}
	if v := os.Getenv(f.EnvVar); v != "" {
		return v
	}
	return f.Default
}

// CLI flag definitions.
var (
	LogLevelFlag = Flag{
		Name:    "log-level",
		EnvVar:  "DROP4_LOG_LEVEL",
		Default: "info",
		Usage:   "log level (trace, debug, info, warn, error)",
	}
	PortFlag = Flag{
		Name:    "port",
		EnvVar:  "DROP4_PORT",
		Default: "53333",
		Usage:   "TCP port the server listens on",
	}
	MaxClientsFlag = Flag{
		Name:    "max-clients",
		EnvVar:  "DROP4_MAX_CLIENTS",
		Default: "10",
		Usage:   "maximum number of concurrently connected clients",
	}
	NickWaitFlag = Flag{
		Name:    "nick-wait",
		EnvVar:  "DROP4_NICK_WAIT",
		Default: "10s",
		Usage:   "how long a client may take to enter a nickname",
	}
	PingReplyFlag = Flag{
		Name:    "ping-reply",
		EnvVar:  "DROP4_PING_REPLY",
		Default: "6s",
		Usage:   "how long a client may take to answer a keep-alive probe",
	}
	ReplyWaitFlag = Flag{
		Name:    "reply-wait",
		EnvVar:  "DROP4_REPLY_WAIT",
		Default: "30s",
		Usage:   "how long a game request waits for a reply",
	}
	TurnWaitFlag = Flag{
		Name:    "turn-wait",
		EnvVar:  "DROP4_TURN_WAIT",
		Default: "30s",
		Usage:   "maximum think-time per move",
	}
	GraceWaitFlag = Flag{
		Name:    "grace-wait",
		EnvVar:  "DROP4_GRACE_WAIT",
		Default: "60s",
		Usage:   "reconnection window after a mid-match connection loss",
	}
)

// Parsed configuration values, populated by ValidateEnv.
var (
	LogLevel   string
	Port       uint16
	MaxClients int
	NickWait   time.Duration
	PingReply  time.Duration
	ReplyWait  time.Duration
	TurnWait   time.Duration
	GraceWait  time.Duration
)

// RegisterCommandFlags registers the given flags on the command.
func RegisterCommandFlags(cmd *cobra.Command, flags []*Flag) error {
	for _, f := range flags {
		if f.Name == "" {
			return errors.New("flag requires a name")
		}
		cmd.PersistentFlags().StringVar(&f.value, f.Name, "", f.Usage)
	}
	return nil
}

// ValidateEnv resolves and parses every configuration value.
func ValidateEnv() error {
	LogLevel = LogLevelFlag.resolve()

	port, err := strconv.ParseUint(PortFlag.resolve(), 10, 16)
	if err != nil {
		return errors.Wrap(err, "parse port failed")
	}
	Port = uint16(port)

	MaxClients, err = strconv.Atoi(MaxClientsFlag.resolve())
	if err != nil {
		return errors.Wrap(err, "parse max clients failed")
	}
	if MaxClients < 1 {
		return errors.New("max clients must be positive")
	}

	for _, d := range []struct {
		flag *Flag
		dst  *time.Duration
	}{
		{&NickWaitFlag, &NickWait},
		{&PingReplyFlag, &PingReply},
		{&ReplyWaitFlag, &ReplyWait},
		{&TurnWaitFlag, &TurnWait},
		{&GraceWaitFlag, &GraceWait},
	} {
		v, err := time.ParseDuration(d.flag.resolve())
		if err != nil {
			return errors.Wrapf(err, "parse %s failed", d.flag.Name)
		}
		if v <= 0 {
			return errors.Errorf("%s must be positive", d.flag.Name)
		}
		*d.dst = v
	}
	return nil
}
