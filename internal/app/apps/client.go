package apps

import (
	"context"
	"os"

	"drop4/internal/pkg/client"
	"drop4/internal/pkg/validate"

	"github.com/pkg/errors"
)

// ClientAppCfg configures a ClientApp.
type ClientAppCfg interface {
	ApplyClientApp(*ClientApp) error
}

// ClientApp is the interactive command-line client.
type ClientApp struct {
	Port uint16 `validate:"required"`
}

// NewClientApp creates a new ClientApp.
func NewClientApp(cfgs ...ClientAppCfg) (*ClientApp, error) {
	app := &ClientApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyClientApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ClientApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ClientApp failed")
	}
	return app, nil
}

// Run connects to the server, optionally negotiating the nickname given as
// the first argument, and then relays lines between the terminal and the
// server.
func (app *ClientApp) Run(ctx context.Context, args []string) error {
	c, err := client.NewClient(
		client.WithServerPort(app.Port),
	)
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}
	if err := c.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect client failed")
	}
	defer func() { _ = c.Close() }()
	if len(args) > 1 {
		if err := c.Login(args[1]); err != nil {
			return errors.Wrap(err, "login failed")
		}
	}
	return errors.Wrap(c.Interactive(ctx, os.Stdin, os.Stdout), "run client failed")
}
