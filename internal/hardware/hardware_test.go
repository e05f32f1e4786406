package hardware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/forcedmode/internal/mode"
)

func TestNewMockDefaults(t *testing.T) {
	m := NewMock("", -time.Second)
	_, err := uuid.Parse(m.ID())
	assert.NoError(t, err, "generated id should be a uuid")
	assert.Equal(t, time.Duration(0), m.OperateDelay())

	m = NewMock("bench-1", DefaultOperateDelay)
	assert.Equal(t, "bench-1", m.ID())
	assert.Equal(t, 2*time.Second, m.OperateDelay())
}

func TestMockOperateWaits(t *testing.T) {
	m := NewMock("d", 30*time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Operate(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMockOperateCancelled(t *testing.T) {
	m := NewMock("d", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- m.Operate(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Operate did not return after cancellation")
	}
}

func TestMockThroughHandles(t *testing.T) {
	ctx := context.Background()
	sb := mode.New[mode.Driver](NewMock("m", 10*time.Millisecond))

	cfg, terr := sb.Configure(ctx)
	require.Nil(t, terr)
	sb = cfg.Standby(ctx)
	op, terr := sb.Operate(ctx)
	require.Nil(t, terr)
	sb = op.Standby(ctx)

	assert.True(t, sb.Live())
	assert.Equal(t, "m", sb.ID())
}

func TestMockCancelReturnsStandby(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sb := mode.New[mode.Driver](NewMock("m", time.Hour))
	_, terr := sb.Operate(ctx)
	require.NotNil(t, terr)
	assert.Equal(t, "operate", terr.Transition)
	assert.ErrorIs(t, terr, context.Canceled)
	assert.True(t, terr.Standby.Live())
}

func TestFaulty(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	f := NewFaulty(NewMock("f", 0))

	assert.Equal(t, "f", f.ID())
	require.NoError(t, f.Configure(ctx))

	f.FailConfigure(boom)
	assert.ErrorIs(t, f.Configure(ctx), boom)
	f.FailConfigure(nil)
	assert.NoError(t, f.Configure(ctx))

	f.FailOperate(boom)
	assert.ErrorIs(t, f.Operate(ctx), boom)
	f.Release(ctx, mode.ModeOperate)

	configures, operates, releases := f.Calls()
	assert.Equal(t, 3, configures)
	assert.Equal(t, 1, operates)
	assert.Equal(t, 1, releases)
}
