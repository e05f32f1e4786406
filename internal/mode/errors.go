package mode

import "fmt"

// TransitionError is returned when Configure or Operate fails. The device is
// handed back, unchanged and usable, in Standby.
type TransitionError[D Driver] struct {
	// Transition is the name of the transition that failed ("configure" or "operate")
	Transition string
	// Standby is the live handle returned to the caller
	Standby Standby[D]
	// Err is the driver's cause
	Err error
}

func (e *TransitionError[D]) Error() string {
	return fmt.Sprintf("%s transition failed for device %s: %v", e.Transition, e.Standby.ID(), e.Err)
}

func (e *TransitionError[D]) Unwrap() error {
	return e.Err
}

// InvariantViolation reports misuse of a handle or of the slot holding it:
// a consumed handle was used again, a zero handle was used, or a device was
// deposited twice. It is raised by panic and indicates a bug in the caller.
type InvariantViolation struct {
	// Op is the operation that detected the violation
	Op string
	// Reason describes what was wrong
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Reason)
}
