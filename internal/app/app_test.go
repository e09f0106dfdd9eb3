package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayxworxfr/go_rbac/internal/config"
	"github.com/ayxworxfr/go_rbac/pkg/tests"
)

func TestApp_Lifecycle(t *testing.T) {
	tests.InitLogger(t)
	a := NewApp(config.Default())

	var order []string
	step := func(name string, err error) LifecycleFunc {
		return func(context.Context) error {
			order = append(order, name)
			return err
		}
	}
	a.RegisterInit(step("init-db", nil), step("init-engine", nil))
	a.RegisterExit(step("close-db", nil), step("close-engine", errors.New("boom")), step("stop-cron", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Run(ctx, time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"init-db", "init-engine", "stop-cron", "close-engine", "close-db"}, order)

	order = nil
	assert.NoError(t, a.GracefulShutdown(time.Second), "exit hooks run once")
	assert.Empty(t, order)
}

func TestApp_InitFailureShutsDown(t *testing.T) {
	tests.InitLogger(t)
	a := NewApp(config.Default())

	closed := false
	a.RegisterExit(func(context.Context) error { closed = true; return nil })
	a.RegisterInit(func(context.Context) error { return errors.New("db unreachable") })

	err := a.Run(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unreachable")
	assert.True(t, closed)
}

func TestInitOpenTelemetry(t *testing.T) {
	tests.InitLogger(t)
	ctx := context.Background()

	cfg := config.NewOpenTelemetryConfig()
	provider, err := InitOpenTelemetry(ctx, cfg)
	require.NoError(t, err)
	assert.NoError(t, provider.Shutdown(ctx))

	cfg.Enable = true
	cfg.Protocol = "thrift"
	_, err = InitOpenTelemetry(ctx, cfg)
	assert.Error(t, err)
}
