package server

import (
	"time"

	"github.com/archonhq/archon/chain"
	"github.com/archonhq/archon/exec"
)

// interactiveDriver streams the last step live over SSE. Unresolved step
// references stay in the prompt instead of failing the run, and the whole
// chain is bounded by the request-level timeout rather than per-step timers.
type interactiveDriver struct {
	progress chan exec.ProgressEvent
}

func newInteractiveDriver() *interactiveDriver {
	return &interactiveDriver{progress: make(chan exec.ProgressEvent, 64)}
}

func (d *interactiveDriver) Resolve(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) (string, error) {
	return chain.ResolveStrict(template, inputs, previousOutputs, mapping), nil
}

func (d *interactiveDriver) StepTimeout(*chain.Prompt) time.Duration { return 0 }
func (d *interactiveDriver) Await() bool                             { return false }
func (d *interactiveDriver) Notify() bool                            { return false }

// EmitProgress queues the event for the SSE forwarder. A slow client drops
// progress events rather than stalling the chain.
func (d *interactiveDriver) EmitProgress(ev exec.ProgressEvent) {
	select {
	case d.progress <- ev:
	default:
	}
}

// scheduledDriver runs the chain to completion on behalf of the scheduler:
// checked substitution, per-step timeouts, completion notification.
type scheduledDriver struct {
	defaultTimeout time.Duration
}

func (d *scheduledDriver) Resolve(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) (string, error) {
	return chain.ResolveStrictChecked(template, inputs, previousOutputs, mapping)
}

func (d *scheduledDriver) StepTimeout(step *chain.Prompt) time.Duration {
	if t := step.Timeout(); t > 0 {
		return t
	}
	return d.defaultTimeout
}

func (d *scheduledDriver) Await() bool                     { return true }
func (d *scheduledDriver) Notify() bool                    { return true }
func (d *scheduledDriver) EmitProgress(exec.ProgressEvent) {}
