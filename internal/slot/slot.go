// Package slot arbitrates access to the one device.
//
// A Slot holds the device's Standby handle between uses. TryTake removes it
// or reports ErrBusy straight away; PutBack stores it again. Borrow pairs
// the two around a callback and restores the device on every exit path,
// including panics and callbacks that lose track of the handle.
package slot

import (
	"context"
	"errors"
	"sync"

	"github.com/muurk/forcedmode/internal/mode"
)

// ErrBusy is returned when another caller holds the device.
var ErrBusy = errors.New("device busy")

// Status is a point-in-time view of the slot.
type Status struct {
	DeviceID  string
	Available bool
	// State is the mode the device is in; "standby" while it sits in the slot.
	State string
}

// Slot holds at most one Standby handle.
type Slot[D mode.Driver] struct {
	ref mode.Ref[D]

	mu   sync.Mutex
	held mode.Standby[D]
	full bool
}

// New stores h in a new slot. h must be live.
func New[D mode.Driver](h mode.Standby[D]) *Slot[D] {
	if !h.Live() {
		panic(&mode.InvariantViolation{Op: "slot.new", Reason: "handle is not live"})
	}
	return &Slot[D]{ref: h.Ref(), held: h, full: true}
}

// TryTake removes the device from the slot. It never blocks.
func (s *Slot[D]) TryTake() (mode.Standby[D], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		return mode.Standby[D]{}, ErrBusy
	}
	h := s.held
	s.held = mode.Standby[D]{}
	s.full = false
	return h, nil
}

// PutBack stores h. It must be called exactly once per successful TryTake.
// It panics with *mode.InvariantViolation when the slot already holds the
// device or h is not the live handle of this slot's device.
func (s *Slot[D]) PutBack(h mode.Standby[D]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full {
		panic(&mode.InvariantViolation{Op: "slot.putback", Reason: "slot already holds the device"})
	}
	if !s.ref.Owns(h) {
		panic(&mode.InvariantViolation{Op: "slot.putback", Reason: "handle is not the live handle of this device"})
	}
	s.held = h
	s.full = true
}

// Borrow takes the device, hands it to fn and puts back whatever fn returns.
// It returns ErrBusy without calling fn when the device is taken.
//
// The device is back in the slot before Borrow returns or unwinds:
//   - fn returns its live handle: that handle is stored and fn's error returned.
//   - fn panics: the device is reclaimed into standby, stored, and the panic
//     continues.
//   - fn returns a handle it no longer owns: the device is reclaimed, stored,
//     and fn's error or an *mode.InvariantViolation is returned.
//
// fn's context is cancelled before a reclaim, so a transition fn started
// but did not wait for can stop early. The reclaim itself waits for any
// such transition to leave the driver; the device is not stored until
// then. Reclaiming ignores ctx cancellation so that a cancelled request
// still brings the hardware back to standby.
func (s *Slot[D]) Borrow(ctx context.Context, fn func(context.Context, mode.Standby[D]) (mode.Standby[D], error)) error {
	h, err := s.TryTake()
	if err != nil {
		return err
	}

	fnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	restored := false
	defer func() {
		if restored {
			return
		}
		r := recover()
		cancel()
		s.PutBack(s.ref.Reclaim(context.WithoutCancel(ctx)))
		if r != nil {
			panic(r)
		}
	}()

	out, err := fn(fnCtx, h)
	if !s.ref.Owns(out) {
		cancel()
		back := s.ref.Reclaim(context.WithoutCancel(ctx))
		restored = true
		s.PutBack(back)
		if err != nil {
			return err
		}
		return &mode.InvariantViolation{Op: "slot.borrow", Reason: "callback did not return the live handle"}
	}

	restored = true
	s.PutBack(out)
	return err
}

// Available reports whether the device is in the slot.
func (s *Slot[D]) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

// Peek returns the slot's status without taking the device.
func (s *Slot[D]) Peek() Status {
	available := s.Available()
	st := Status{DeviceID: s.ref.ID(), Available: available, State: mode.StateStandby}
	if !available {
		st.State = s.ref.Mode().String()
	}
	return st
}

// DeviceID returns the identity of the device this slot arbitrates.
func (s *Slot[D]) DeviceID() string {
	return s.ref.ID()
}
