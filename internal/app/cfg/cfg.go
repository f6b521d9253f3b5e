// Package cfg implements functionality to configure an app.
//
// The configuration objects defined here need only be implemented once,
// but can be applied to multiple types. In order to add support for a new
// type, the configuration need only implement an ApplyX method.
package cfg

import (
	"drop4/internal"
	"drop4/internal/app/apps"
	"drop4/internal/pkg/hub"
)

// PortCfg is configuration for the server port.
type PortCfg struct {
	port uint16
}

// NewPortCfg creates a new PortCfg from the given port.
func NewPortCfg(port uint16) *PortCfg {
	return &PortCfg{port: port}
}

// PortFromEnv creates a new PortCfg from the current environment.
func PortFromEnv() *PortCfg {
	return &PortCfg{port: internal.Port}
}

// ApplyServerApp applies the PortCfg to a ServerApp.
func (cfg PortCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.Port = cfg.port
	return nil
}

// ApplyClientApp applies the PortCfg to a ClientApp.
func (cfg PortCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.Port = cfg.port
	return nil
}

// LimitsCfg is configuration for the server's client capacity.
type LimitsCfg struct {
	maxClients int
}

// NewLimitsCfg creates a new LimitsCfg from the given maximum.
func NewLimitsCfg(maxClients int) *LimitsCfg {
	return &LimitsCfg{maxClients: maxClients}
}

// LimitsFromEnv creates a new LimitsCfg from the current environment.
func LimitsFromEnv() *LimitsCfg {
	return &LimitsCfg{maxClients: internal.MaxClients}
}

// ApplyServerApp applies the LimitsCfg to a ServerApp.
func (cfg LimitsCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.MaxClients = cfg.maxClients
	return nil
}

// TimeoutsCfg is configuration for the server's waiting periods.
type TimeoutsCfg struct {
	timeouts hub.Timeouts
}

// NewTimeoutsCfg creates a new TimeoutsCfg from the given timeouts.
func NewTimeoutsCfg(t hub.Timeouts) *TimeoutsCfg {
	return &TimeoutsCfg{timeouts: t}
}

// TimeoutsFromEnv creates a new TimeoutsCfg from the current environment.
func TimeoutsFromEnv() *TimeoutsCfg {
	return &TimeoutsCfg{timeouts: hub.Timeouts{
		NickWait:  internal.NickWait,
		PingReply: internal.PingReply,
		ReplyWait: internal.ReplyWait,
		TurnWait:  internal.TurnWait,
		GraceWait: internal.GraceWait,
	}}
}

// ApplyServerApp applies the TimeoutsCfg to a ServerApp.
func (cfg TimeoutsCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.Timeouts = cfg.timeouts
	return nil
}
