// Package apps defines the runnable applications of this module.
package apps

import "context"

// App is a runnable application.
type App interface {
	Run(ctx context.Context, args []string) error
}
