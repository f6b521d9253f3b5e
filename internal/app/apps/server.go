package apps

import (
	"context"

	"drop4/internal/pkg/hub"
	"drop4/internal/pkg/server"
	"drop4/internal/pkg/validate"

	"github.com/pkg/errors"
)

// ServerAppCfg configures a ServerApp.
type ServerAppCfg interface {
	ApplyServerApp(*ServerApp) error
}

// ServerApp is the game server application.
type ServerApp struct {
	Port       uint16
	MaxClients int          `validate:"required,min=1"`
	Timeouts   hub.Timeouts `validate:"required"`
}

// NewServerApp creates a new ServerApp.
func NewServerApp(cfgs ...ServerAppCfg) (*ServerApp, error) {
	app := &ServerApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyServerApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ServerApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ServerApp failed")
	}
	return app, nil
}

// Run starts the server and blocks until the context is cancelled.
func (app *ServerApp) Run(ctx context.Context, _ []string) error {
	registry, err := hub.NewHub(
		hub.WithMaxClients(app.MaxClients),
		hub.WithTimeouts(app.Timeouts),
	)
	if err != nil {
		return errors.Wrap(err, "create hub failed")
	}
	srv, err := server.NewServer(
		server.WithPort(app.Port),
		server.WithHub(registry),
	)
	if err != nil {
		return errors.Wrap(err, "create server failed")
	}
	if err := srv.Start(ctx); err != nil {
		return errors.Wrap(err, "start server failed")
	}
	<-ctx.Done()
	srv.Wait()
	return nil
}
