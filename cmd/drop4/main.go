// Package main is the drop4 application entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drop4/internal"
	"drop4/internal/app/apps"
	"drop4/internal/app/cfg"
	"drop4/internal/pkg/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI command definitions.
var (
	logger logrus.FieldLogger = logrus.StandardLogger()

	rootCmd = &cobra.Command{
		Use: "drop4",
		RunE: func(*cobra.Command, []string) error {
			return nil
		},
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Starts the Connect-Four game server.",
		RunE:  runCmd,
	}

	clientCmd = &cobra.Command{
		Use:   "client [nick]",
		Short: "Starts an interactive game client.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCmd,
	}
)

func newApp(_ context.Context, cmd *cobra.Command, args []string) (apps.App, []string, error) {
	var err error
	var app apps.App
	switch cmd.Name() {
	case "server":
		app, err = apps.NewServerApp(
			cfg.PortFromEnv(),
			cfg.LimitsFromEnv(),
			cfg.TimeoutsFromEnv(),
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new server app failed")
		}
		args = append([]string{cmd.Name()}, args...)
		return app, args, nil
	case "client":
		app, err = apps.NewClientApp(cfg.PortFromEnv())
		if err != nil {
			return nil, nil, errors.Wrap(err, "new client app failed")
		}
		args = append([]string{cmd.Name()}, args...)
		return app, args, nil
	default:
		return nil, nil, fmt.Errorf("unknown command: %s", cmd.Name())
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := chainedCheck(
		ctx,
		envCheck,
	); err != nil {
		return errors.Wrap(err, "chained check failed")
	}
	app, args, err := newApp(ctx, cmd, args)
	if err != nil {
		return errors.Wrapf(err, "new %s app failed", cmd.Name())
	}
	return errors.Wrap(app.Run(ctx, args), "run app failed")
}

func envCheck(context.Context) error {
	if err := internal.ValidateEnv(); err != nil {
		return errors.Wrap(err, "validate env failed")
	}
	log.SetLogger(internal.LogLevel)
	return nil
}

func chainedCheck(ctx context.Context, checks ...func(context.Context) error) error {
	for _, check := range checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	err := internal.RegisterCommandFlags(rootCmd, []*internal.Flag{
		&internal.LogLevelFlag,
		&internal.PortFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(serverCmd, []*internal.Flag{
		&internal.MaxClientsFlag,
		&internal.NickWaitFlag,
		&internal.PingReplyFlag,
		&internal.ReplyWaitFlag,
		&internal.TurnWaitFlag,
		&internal.GraceWaitFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	rootCmd.AddCommand(
		serverCmd,
		clientCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(errors.Wrap(err, "execute root command failed"))
	}
}
