// Package mode encodes the Standby/Configure/Operate lifecycle of a single
// physical device as distinct handle types.
//
// Each mode has its own handle type, and each handle type only has the
// methods that are legal from that mode:
//
//	Standby[D]   -> Configure(ctx) (Configure[D], *TransitionError[D])
//	Standby[D]   -> Operate(ctx)   (Operate[D], *TransitionError[D])
//	Configure[D] -> Standby(ctx)   Standby[D]
//	Operate[D]   -> Standby(ctx)   Standby[D]
//
// There is no edge between Configure and Operate, and nothing skips
// Standby. Writing such a sequence is a compile error, not a runtime check.
//
// # Ownership
//
// A transition consumes the handle it is called on and returns a new handle
// of the next type. Go values can always be copied, so every handle carries a
// lease and the device remembers which lease is live. Calling a transition on
// anything other than the live handle (a copy kept from before a transition,
// a zero value) panics with *InvariantViolation at the call site.
//
// A failed Configure or Operate never drops the device: the returned
// *TransitionError carries a fresh, live Standby handle for the same device.
//
//	cfg, terr := standby.Configure(ctx)
//	if terr != nil {
//	    standby = terr.Standby // ownership comes back with the error
//	    return standby, terr
//	}
//	standby = cfg.Standby(ctx)
//
// A Ref can take the device back with Reclaim whatever happened to the live
// handle. Reclaim waits for a driver call that is still running, so a
// reclaimed device is never driven by two holders at once.
//
// # Drivers
//
// The hardware side is a Driver. The handles call the driver and do the
// bookkeeping; the driver only talks to the hardware. Leaving Configure or
// Operate is modelled as infallible: a driver that can fail during teardown
// must retry internally.
package mode
