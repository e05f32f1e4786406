package mode_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/forcedmode/internal/mode"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeDriver struct {
	id string

	mu           sync.Mutex
	configureErr error
	operateErr   error
	releases     []mode.Mode
	block        chan struct{}

	active  atomic.Int32
	overlap atomic.Bool
}

func (f *fakeDriver) ID() string { return f.id }

// enter records a driver call and notes whether another one was running.
func (f *fakeDriver) enter() func() {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeDriver) Configure(ctx context.Context) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configureErr
}

func (f *fakeDriver) Operate(ctx context.Context) error {
	defer f.enter()()
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.operateErr
}

func (f *fakeDriver) Release(ctx context.Context, from mode.Mode) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, from)
}

func (f *fakeDriver) released() []mode.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mode.Mode(nil), f.releases...)
}

func requireViolation(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		iv, ok := r.(*mode.InvariantViolation)
		require.True(t, ok, "panic value %T is not *InvariantViolation", r)
		assert.Equal(t, op, iv.Op)
	}()
	fn()
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	drv := &fakeDriver{id: "dev-1"}

	sb := mode.New[*fakeDriver](drv)
	require.True(t, sb.Live())
	assert.Equal(t, "standby", sb.State())
	assert.Equal(t, "dev-1", sb.ID())

	cfg, terr := sb.Configure(ctx)
	require.Nil(t, terr)
	assert.Equal(t, "configure", cfg.State())
	assert.False(t, sb.Live())
	assert.Equal(t, mode.ModeConfigure, sb.Ref().Mode())

	sb = cfg.Standby(ctx)
	assert.False(t, cfg.Live())

	op, terr := sb.Operate(ctx)
	require.Nil(t, terr)
	assert.Equal(t, "operate", op.State())
	assert.Equal(t, mode.ModeOperate, sb.Ref().Mode())

	sb = op.Standby(ctx)
	assert.True(t, sb.Live())
	assert.Equal(t, "standby", sb.State())
	assert.Equal(t, "dev-1", sb.ID())
	assert.Equal(t, mode.ModeStandby, sb.Ref().Mode())
	assert.Equal(t, []mode.Mode{mode.ModeConfigure, mode.ModeOperate}, drv.released())
}

func TestTransitionFailureReturnsDevice(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("bus fault")

	tests := []struct {
		name string
		drv  *fakeDriver
		step func(mode.Standby[*fakeDriver]) *mode.TransitionError[*fakeDriver]
		want string
	}{
		{
			name: "configure",
			drv:  &fakeDriver{id: "a", configureErr: cause},
			step: func(sb mode.Standby[*fakeDriver]) *mode.TransitionError[*fakeDriver] {
				_, terr := sb.Configure(ctx)
				return terr
			},
			want: "configure",
		},
		{
			name: "operate",
			drv:  &fakeDriver{id: "b", operateErr: cause},
			step: func(sb mode.Standby[*fakeDriver]) *mode.TransitionError[*fakeDriver] {
				_, terr := sb.Operate(ctx)
				return terr
			},
			want: "operate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := mode.New(tt.drv)
			terr := tt.step(sb)
			require.NotNil(t, terr)

			assert.Equal(t, tt.want, terr.Transition)
			assert.ErrorIs(t, terr, cause)
			assert.Contains(t, terr.Error(), tt.drv.id)
			assert.False(t, sb.Live())

			back := terr.Standby
			require.True(t, back.Live())
			assert.Equal(t, tt.drv.id, back.ID())
			assert.True(t, sb.Ref().Owns(back))
			assert.Equal(t, mode.ModeStandby, back.Ref().Mode())
			assert.Empty(t, tt.drv.released())

			// The returned handle is fully usable once the fault clears.
			tt.drv.mu.Lock()
			tt.drv.configureErr, tt.drv.operateErr = nil, nil
			tt.drv.mu.Unlock()
			cfg, terr := back.Configure(ctx)
			require.Nil(t, terr)
			assert.True(t, cfg.Standby(ctx).Live())
		})
	}
}

func TestTransitionErrorAs(t *testing.T) {
	drv := &fakeDriver{id: "x", operateErr: context.Canceled}
	_, terr := mode.New(drv).Operate(context.Background())

	var err error = terr
	var target *mode.TransitionError[*fakeDriver]
	require.True(t, errors.As(err, &target))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, target.Standby.Live())
}

func TestConsumedHandlePanics(t *testing.T) {
	ctx := context.Background()
	sb := mode.New(&fakeDriver{id: "d"})

	cfg, terr := sb.Configure(ctx)
	require.Nil(t, terr)

	requireViolation(t, "configure", func() { _, _ = sb.Configure(ctx) })
	requireViolation(t, "operate", func() { _, _ = sb.Operate(ctx) })

	// The violation must not disturb the live handle.
	require.True(t, cfg.Live())
	sb2 := cfg.Standby(ctx)
	requireViolation(t, "configure.standby", func() { cfg.Standby(ctx) })

	op, terr := sb2.Operate(ctx)
	require.Nil(t, terr)
	sb3 := op.Standby(ctx)
	requireViolation(t, "operate.standby", func() { op.Standby(ctx) })
	assert.True(t, sb3.Live())
}

func TestCopiedHandleIsSpentWithSource(t *testing.T) {
	ctx := context.Background()
	sb := mode.New(&fakeDriver{id: "d"})
	dup := sb

	cfg, terr := sb.Configure(ctx)
	require.Nil(t, terr)
	requireViolation(t, "operate", func() { _, _ = dup.Operate(ctx) })
	assert.True(t, cfg.Live())
}

func TestZeroHandlePanics(t *testing.T) {
	var sb mode.Standby[*fakeDriver]
	assert.False(t, sb.Live())
	assert.Equal(t, "", sb.ID())
	assert.Equal(t, "standby", sb.State())
	requireViolation(t, "configure", func() { _, _ = sb.Configure(context.Background()) })

	var op mode.Operate[*fakeDriver]
	requireViolation(t, "operate.standby", func() { op.Standby(context.Background()) })
}

func TestReclaim(t *testing.T) {
	ctx := context.Background()
	drv := &fakeDriver{id: "r"}
	sb := mode.New(drv)
	ref := sb.Ref()

	op, terr := sb.Operate(ctx)
	require.Nil(t, terr)

	back := ref.Reclaim(ctx)
	assert.True(t, back.Live())
	assert.True(t, ref.Owns(back))
	assert.False(t, op.Live())
	assert.Equal(t, mode.ModeStandby, ref.Mode())
	assert.Equal(t, []mode.Mode{mode.ModeOperate}, drv.released())
	requireViolation(t, "operate.standby", func() { op.Standby(ctx) })

	// Reclaiming a device already in standby does not touch the driver.
	again := ref.Reclaim(ctx)
	assert.False(t, back.Live())
	assert.True(t, again.Live())
	assert.Len(t, drv.released(), 1)
}

func TestReclaimDuringTransitionOrphansResult(t *testing.T) {
	ctx := context.Background()
	drv := &fakeDriver{id: "o", block: make(chan struct{})}
	sb := mode.New(drv)
	ref := sb.Ref()

	done := make(chan mode.Operate[*fakeDriver])
	go func() {
		op, _ := sb.Operate(ctx)
		done <- op
	}()

	// Wait until the transition is in flight.
	require.Eventually(t, func() bool { return drv.active.Load() == 1 }, timeout, tick)

	reclaimed := make(chan mode.Standby[*fakeDriver])
	go func() { reclaimed <- ref.Reclaim(ctx) }()

	// Reclaim waits for the driver call to finish.
	select {
	case <-reclaimed:
		t.Fatal("Reclaim returned while Operate was still running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, drv.released())

	close(drv.block)
	op := <-done
	back := <-reclaimed

	assert.False(t, op.Live())
	assert.True(t, back.Live())
	assert.Equal(t, mode.ModeStandby, ref.Mode())
	// The orphaned Operate left the hardware up, so Reclaim released it.
	assert.Equal(t, []mode.Mode{mode.ModeOperate}, drv.released())
	assert.False(t, drv.overlap.Load(), "driver calls overlapped")
}

func TestReclaimedDeviceIsNotDrivenConcurrently(t *testing.T) {
	ctx := context.Background()
	drv := &fakeDriver{id: "c", block: make(chan struct{})}
	sb := mode.New(drv)
	ref := sb.Ref()

	// The first holder loses track of the handle mid-transition.
	go func() { _, _ = sb.Operate(ctx) }()
	require.Eventually(t, func() bool { return drv.active.Load() == 1 }, timeout, tick)

	next := make(chan mode.Standby[*fakeDriver])
	go func() { next <- ref.Reclaim(ctx) }()

	time.AfterFunc(50*time.Millisecond, func() { close(drv.block) })

	// The new owner only gets the device once the orphan is done and released.
	sb2 := <-next
	cfg, terr := sb2.Configure(ctx)
	require.Nil(t, terr)
	assert.Equal(t, mode.ModeConfigure, ref.Mode())
	assert.Equal(t, []mode.Mode{mode.ModeOperate}, drv.released())

	sb2 = cfg.Standby(ctx)
	assert.True(t, sb2.Live())
	assert.Equal(t, []mode.Mode{mode.ModeOperate, mode.ModeConfigure}, drv.released())
	assert.False(t, drv.overlap.Load(), "driver calls overlapped")
}

// panicky panics inside Operate.
type panicky struct{ *fakeDriver }

func (p panicky) Operate(ctx context.Context) error {
	panic("operate exploded")
}

func TestPanickingDriverDoesNotWedgeReclaim(t *testing.T) {
	ctx := context.Background()
	drv := panicky{&fakeDriver{id: "p"}}
	sb := mode.New(drv)
	ref := sb.Ref()

	assert.Panics(t, func() { _, _ = sb.Operate(ctx) })
	assert.False(t, sb.Live())

	// The device may be up, so Reclaim releases it from Operate.
	back := ref.Reclaim(ctx)
	assert.True(t, back.Live())
	assert.Equal(t, []mode.Mode{mode.ModeOperate}, drv.released())
}

func TestNewTwiceGivesUnrelatedHandles(t *testing.T) {
	drv := &fakeDriver{id: "twice"}
	a := mode.New(drv)
	b := mode.New(drv)

	// Same device, but neither handle knows about the other.
	assert.Equal(t, a.ID(), b.ID())
	assert.True(t, a.Live())
	assert.True(t, b.Live())
	assert.False(t, a.Ref().Owns(b))
	assert.False(t, b.Ref().Owns(a))
}

func TestOwns(t *testing.T) {
	a := mode.New(&fakeDriver{id: "a"})
	b := mode.New(&fakeDriver{id: "b"})

	assert.True(t, a.Ref().Owns(a))
	assert.False(t, a.Ref().Owns(b))
	assert.False(t, mode.Ref[*fakeDriver]{}.Owns(a))
	assert.False(t, mode.Ref[*fakeDriver]{}.Valid())
	assert.True(t, a.Ref().Valid())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "standby", mode.ModeStandby.String())
	assert.Equal(t, "configure", mode.ModeConfigure.String())
	assert.Equal(t, "operate", mode.ModeOperate.String())
	assert.Equal(t, "Mode(7)", mode.Mode(7).String())
}
