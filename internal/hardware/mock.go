package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/muurk/forcedmode/internal/mode"
)

// DefaultOperateDelay is the simulated bring-up time of Operate.
const DefaultOperateDelay = 2 * time.Second

// NewID returns a fresh device identity.
func NewID() string {
	return uuid.New().String()
}

// Mock is a simulated device. It never fails on its own; Operate only fails
// when its context is cancelled during the bring-up wait.
type Mock struct {
	id           string
	operateDelay time.Duration
}

// NewMock creates a simulated device. An empty id gets a generated one and a
// negative delay is treated as zero.
func NewMock(id string, operateDelay time.Duration) *Mock {
	if id == "" {
		id = NewID()
	}
	if operateDelay < 0 {
		operateDelay = 0
	}
	return &Mock{id: id, operateDelay: operateDelay}
}

func (m *Mock) ID() string {
	return m.id
}

// OperateDelay returns the simulated bring-up time.
func (m *Mock) OperateDelay() time.Duration {
	return m.operateDelay
}

func (m *Mock) Configure(ctx context.Context) error {
	return nil
}

func (m *Mock) Operate(ctx context.Context) error {
	if m.operateDelay == 0 {
		return nil
	}
	timer := time.NewTimer(m.operateDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("operate interrupted: %w", ctx.Err())
	}
}

func (m *Mock) Release(ctx context.Context, from mode.Mode) {}

var _ mode.Driver = (*Mock)(nil)
