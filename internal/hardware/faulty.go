package hardware

import (
	"context"
	"sync"

	"github.com/muurk/forcedmode/internal/mode"
)

// Faulty wraps a driver and fails Configure and/or Operate with the
// configured errors. Calls are counted whether or not they fail.
type Faulty struct {
	inner mode.Driver

	mu           sync.Mutex
	configureErr error
	operateErr   error
	configures   int
	operates     int
	releases     int
}

// NewFaulty wraps inner. With no errors set it behaves exactly like inner.
func NewFaulty(inner mode.Driver) *Faulty {
	return &Faulty{inner: inner}
}

// FailConfigure makes subsequent Configure calls return err. nil clears it.
func (f *Faulty) FailConfigure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configureErr = err
}

// FailOperate makes subsequent Operate calls return err. nil clears it.
func (f *Faulty) FailOperate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operateErr = err
}

// Calls returns how many times each driver method was invoked.
func (f *Faulty) Calls() (configures, operates, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configures, f.operates, f.releases
}

func (f *Faulty) ID() string {
	return f.inner.ID()
}

func (f *Faulty) Configure(ctx context.Context) error {
	f.mu.Lock()
	f.configures++
	err := f.configureErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.inner.Configure(ctx)
}

func (f *Faulty) Operate(ctx context.Context) error {
	f.mu.Lock()
	f.operates++
	err := f.operateErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.inner.Operate(ctx)
}

func (f *Faulty) Release(ctx context.Context, from mode.Mode) {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
	f.inner.Release(ctx, from)
}

var _ mode.Driver = (*Faulty)(nil)
