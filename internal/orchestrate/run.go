// Package orchestrate runs the fixed bring-up sequence against a device:
// configure, back to standby, operate, back to standby.
package orchestrate

import (
	"context"
	"time"

	"github.com/muurk/forcedmode/internal/mode"
)

// Transition names, in the order Run performs them.
const (
	StepConfigure        = "configure"
	StepConfigureStandby = "configure.standby"
	StepOperate          = "operate"
	StepOperateStandby   = "operate.standby"
)

// Steps lists the transitions of a complete run.
var Steps = []string{StepConfigure, StepConfigureStandby, StepOperate, StepOperateStandby}

// Step reports one transition of a run.
type Step struct {
	// Index is 1-based.
	Index      int           `json:"index"`
	Transition string        `json:"transition"`
	State      string        `json:"state"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Error      string        `json:"error,omitempty"`
}

// Failed reports whether the transition failed.
func (s Step) Failed() bool {
	return s.Error != ""
}

// Observer receives each step as soon as it completes. It is called on the
// goroutine running the sequence and must not block for long.
type Observer func(Step)

// Run drives sb through the sequence and returns the device in standby.
//
// If Configure or Operate fails, Run stops and returns the failure; the
// error's Standby field holds the device. The failed step is reported with
// its error and the standby state the device was returned to.
// A nil observer is allowed.
func Run[D mode.Driver](ctx context.Context, sb mode.Standby[D], observe Observer) (mode.Standby[D], *mode.TransitionError[D]) {
	if observe == nil {
		observe = func(Step) {}
	}

	index := 0
	report := func(transition, state string, start time.Time, err error) {
		index++
		st := Step{Index: index, Transition: transition, State: state, Elapsed: time.Since(start)}
		if err != nil {
			st.Error = err.Error()
		}
		observe(st)
	}

	start := time.Now()
	cfg, terr := sb.Configure(ctx)
	if terr != nil {
		report(StepConfigure, terr.Standby.State(), start, terr.Err)
		return terr.Standby, terr
	}
	report(StepConfigure, cfg.State(), start, nil)

	start = time.Now()
	sb = cfg.Standby(ctx)
	report(StepConfigureStandby, sb.State(), start, nil)

	start = time.Now()
	op, terr := sb.Operate(ctx)
	if terr != nil {
		report(StepOperate, terr.Standby.State(), start, terr.Err)
		return terr.Standby, terr
	}
	report(StepOperate, op.State(), start, nil)

	start = time.Now()
	sb = op.Standby(ctx)
	report(StepOperateStandby, sb.State(), start, nil)

	return sb, nil
}
