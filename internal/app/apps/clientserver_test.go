package apps

import (
	"context"
	"sync"
	"testing"
	"time"

	"drop4/internal/pkg/hub"

	"github.com/stretchr/testify/require"
)

func TestNewServerAppValidation(t *testing.T) {
	_, err := NewServerApp()
	require.Error(t, err)
}

func TestNewClientAppValidation(t *testing.T) {
	_, err := NewClientApp()
	require.Error(t, err)
}

type testServerCfg struct{}

func (testServerCfg) ApplyServerApp(app *ServerApp) error {
	app.Port = 53999
	app.MaxClients = 4
	app.Timeouts = hub.DefaultTimeouts
	return nil
}

func TestServerAppRunsUntilCancelled(t *testing.T) {
	s, err := NewServerApp(testServerCfg{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, s.Run(ctx, nil))
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	wg.Wait()
}
