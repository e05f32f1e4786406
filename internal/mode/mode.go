package mode

import (
	"context"
	"fmt"
	"sync"
)

// Mode is the hardware mode a device is in.
type Mode int

const (
	ModeStandby Mode = iota
	ModeConfigure
	ModeOperate
)

// State labels reported by the handles.
const (
	StateStandby   = "standby"
	StateConfigure = "configure"
	StateOperate   = "operate"
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return StateStandby
	case ModeConfigure:
		return StateConfigure
	case ModeOperate:
		return StateOperate
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Driver performs the hardware side of each transition.
type Driver interface {
	// ID identifies the physical device.
	ID() string
	// Configure brings the device from standby into configuration mode.
	Configure(ctx context.Context) error
	// Operate brings the device from standby into operating mode.
	Operate(ctx context.Context) error
	// Release returns the device to standby from the given mode. It cannot fail.
	Release(ctx context.Context, from Mode)
}

// lease marks one issued handle. Only the device's live lease may transition.
// The field keeps the type non-zero-sized so every lease has a distinct address.
type lease struct{ _ byte }

// unit is the bookkeeping shared by every handle ever issued for one device.
type unit[D Driver] struct {
	drv D

	mu    sync.Mutex
	idle  *sync.Cond // signalled when busy clears
	live  *lease     // nil while a transition is in flight
	busy  *lease     // the driver call in progress, if any
	mode  Mode
	epoch uint64 // bumped by Reclaim; in-flight transitions from an older epoch are orphaned
}

func newUnit[D Driver](d D) *unit[D] {
	u := &unit[D]{drv: d, mode: ModeStandby}
	u.idle = sync.NewCond(&u.mu)
	return u
}

type handle[D Driver] struct {
	u *unit[D]
	l *lease
}

// flight is one driver call started by spend or Reclaim.
type flight struct {
	l     *lease
	epoch uint64
}

// spend consumes the handle and marks its driver call in flight. It panics
// unless h is the live handle.
func (h handle[D]) spend(op string) (*unit[D], flight) {
	if h.u == nil {
		panic(&InvariantViolation{Op: op, Reason: "zero-value handle"})
	}
	h.u.mu.Lock()
	defer h.u.mu.Unlock()
	if h.u.live == nil || h.u.live != h.l {
		panic(&InvariantViolation{Op: op, Reason: "handle already consumed"})
	}
	h.u.live = nil
	h.u.busy = h.l
	return h.u, flight{l: h.l, epoch: h.u.epoch}
}

// settle ends the driver call f with the device in mode m and issues the
// handle for it. If the device was reclaimed meanwhile the handle is
// already dead; the mode is still recorded so the waiting Reclaim can
// release from it.
func (u *unit[D]) settle(f flight, m Mode) handle[D] {
	u.mu.Lock()
	defer u.mu.Unlock()
	l := &lease{}
	u.end(f, m)
	if u.epoch == f.epoch {
		u.live = l
	}
	return handle[D]{u: u, l: l}
}

// abandon ends f if the driver call unwound without settling. The device
// is assumed to be in m.
func (u *unit[D]) abandon(f flight, m Mode) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.end(f, m)
}

func (u *unit[D]) end(f flight, m Mode) {
	if u.busy != f.l {
		return
	}
	u.busy = nil
	u.mode = m
	u.idle.Broadcast()
}

func (h handle[D]) live() bool {
	if h.u == nil {
		return false
	}
	h.u.mu.Lock()
	defer h.u.mu.Unlock()
	return h.u.live != nil && h.u.live == h.l
}

func (h handle[D]) id() string {
	if h.u == nil {
		return ""
	}
	return h.u.drv.ID()
}

// New wraps a driver whose device is currently in standby and returns the
// only live handle for it. Call it once per physical device.
//
// New keeps no registry of drivers. Two calls with the same driver give two
// independent live handles, and nothing then stops both from driving the
// device. The caller owns the one-handle-per-device rule, usually by
// storing the result in a slot.Slot straight away.
func New[D Driver](d D) Standby[D] {
	u := newUnit(d)
	l := &lease{}
	u.live = l
	return Standby[D]{h: handle[D]{u: u, l: l}}
}

// Standby is a device in standby.
type Standby[D Driver] struct{ h handle[D] }

// Configure is a device in configuration mode.
type Configure[D Driver] struct{ h handle[D] }

// Operate is a device in operating mode.
type Operate[D Driver] struct{ h handle[D] }

// Configure moves the device into configuration mode, consuming s.
func (s Standby[D]) Configure(ctx context.Context) (Configure[D], *TransitionError[D]) {
	u, f := s.h.spend("configure")
	defer u.abandon(f, ModeConfigure)
	if err := u.drv.Configure(ctx); err != nil {
		return Configure[D]{}, &TransitionError[D]{
			Transition: StateConfigure,
			Standby:    Standby[D]{h: u.settle(f, ModeStandby)},
			Err:        err,
		}
	}
	return Configure[D]{h: u.settle(f, ModeConfigure)}, nil
}

// Operate moves the device into operating mode, consuming s.
func (s Standby[D]) Operate(ctx context.Context) (Operate[D], *TransitionError[D]) {
	u, f := s.h.spend("operate")
	defer u.abandon(f, ModeOperate)
	if err := u.drv.Operate(ctx); err != nil {
		return Operate[D]{}, &TransitionError[D]{
			Transition: StateOperate,
			Standby:    Standby[D]{h: u.settle(f, ModeStandby)},
			Err:        err,
		}
	}
	return Operate[D]{h: u.settle(f, ModeOperate)}, nil
}

// Standby returns the device to standby, consuming c.
func (c Configure[D]) Standby(ctx context.Context) Standby[D] {
	u, f := c.h.spend("configure.standby")
	defer u.abandon(f, ModeStandby)
	u.drv.Release(ctx, ModeConfigure)
	return Standby[D]{h: u.settle(f, ModeStandby)}
}

// Standby returns the device to standby, consuming o.
func (o Operate[D]) Standby(ctx context.Context) Standby[D] {
	u, f := o.h.spend("operate.standby")
	defer u.abandon(f, ModeStandby)
	u.drv.Release(ctx, ModeOperate)
	return Standby[D]{h: u.settle(f, ModeStandby)}
}

func (s Standby[D]) State() string   { return StateStandby }
func (c Configure[D]) State() string { return StateConfigure }
func (o Operate[D]) State() string   { return StateOperate }

func (s Standby[D]) ID() string   { return s.h.id() }
func (c Configure[D]) ID() string { return c.h.id() }
func (o Operate[D]) ID() string   { return o.h.id() }

// Live reports whether s may still be transitioned.
func (s Standby[D]) Live() bool   { return s.h.live() }
func (c Configure[D]) Live() bool { return c.h.live() }
func (o Operate[D]) Live() bool   { return o.h.live() }

// Ref returns a reference to the device behind s. A Ref cannot drive
// transitions; it lets the holder check ownership and reclaim the device.
func (s Standby[D]) Ref() Ref[D] { return Ref[D]{u: s.h.u} }

// Ref identifies a device independently of the handle currently owning it.
type Ref[D Driver] struct{ u *unit[D] }

// Valid reports whether r refers to a device.
func (r Ref[D]) Valid() bool { return r.u != nil }

// ID returns the device identity.
func (r Ref[D]) ID() string {
	if r.u == nil {
		return ""
	}
	return r.u.drv.ID()
}

// Mode returns the mode the device is currently in. While a transition is in
// flight this is the mode it started from.
func (r Ref[D]) Mode() Mode {
	if r.u == nil {
		return ModeStandby
	}
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	return r.u.mode
}

// Owns reports whether h is the live handle of the device r refers to.
func (r Ref[D]) Owns(h Standby[D]) bool {
	return r.u != nil && h.h.u == r.u && h.h.live()
}

// Reclaim takes the device back from whoever holds it, invalidating every
// outstanding handle, and returns it in standby.
//
// A transition already running in the driver is not interrupted: Reclaim
// waits for it to finish, so the driver never sees two calls at once. That
// transition ends with a dead handle. The device is then released through
// the driver from whatever mode it was left in.
func (r Ref[D]) Reclaim(ctx context.Context) Standby[D] {
	if r.u == nil {
		panic(&InvariantViolation{Op: "reclaim", Reason: "zero-value reference"})
	}
	u := r.u

	u.mu.Lock()
	u.epoch++
	u.live = nil
	for u.busy != nil {
		u.idle.Wait()
	}
	f := flight{l: &lease{}, epoch: u.epoch}
	u.busy = f.l
	from := u.mode
	u.mu.Unlock()

	defer u.abandon(f, ModeStandby)
	if from != ModeStandby {
		u.drv.Release(ctx, from)
	}
	return Standby[D]{h: u.settle(f, ModeStandby)}
}
