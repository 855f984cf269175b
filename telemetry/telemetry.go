// Package telemetry emits structured lifecycle events (process up/down,
// churn, save/load, run end) to an optional sink, modeled on the teacher's
// scheduler.EventEmitter: the kernel never depends on any particular
// sink implementation, only on this narrow interface, so a host can
// wire telemetry to a message bus, a test observer, or nothing at all.
package telemetry

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// eventSourcePrefix, followed by the Recorder's run id, forms the
// CloudEvent source; every event a Recorder emits carries the same
// source, letting a downstream sink correlate a whole run's events.
const eventSourcePrefix = "dsim/run/"

// Event types emitted by the kernel.
const (
	EventChurnApplied   = "dsim.churn.applied"
	EventProcessUp      = "dsim.process.up"
	EventProcessDown    = "dsim.process.down"
	EventSnapshotSaved  = "dsim.snapshot.saved"
	EventSnapshotLoaded = "dsim.snapshot.loaded"
	EventRunEnded       = "dsim.run.ended"
)

// Emitter dispatches a single CloudEvent. Implementations must not block
// the kernel's single-threaded event loop for long; a slow sink should
// buffer or drop rather than stall the simulation.
type Emitter interface {
	EmitEvent(ctx context.Context, event cloudevents.Event) error
}

// Recorder builds and dispatches CloudEvents for one simulation run
// through an Emitter. A nil Emitter makes Recorder a no-op, so telemetry
// stays entirely optional.
type Recorder struct {
	runID   string
	emitter Emitter
}

// NewRecorder returns a Recorder correlating every emitted event under a
// freshly generated run id.
func NewRecorder(emitter Emitter) *Recorder {
	return &Recorder{runID: uuid.NewString(), emitter: emitter}
}

// RunID is the correlation id shared by every event this Recorder emits.
func (r *Recorder) RunID() string { return r.runID }

// Emit builds a CloudEvent of the given type carrying data as its JSON
// payload and dispatches it. Errors from the underlying Emitter are
// swallowed: telemetry is an observability side-channel, not load-bearing
// for simulation correctness, matching the teacher's emitEvent helper
// which logs and continues rather than failing the caller.
func (r *Recorder) Emit(ctx context.Context, eventType string, data map[string]interface{}) {
	if r == nil || r.emitter == nil {
		return
	}
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(eventSourcePrefix + r.runID)
	event.SetType(eventType)
	event.SetTime(time.Now())
	_ = event.SetData(cloudevents.ApplicationJSON, data)

	_ = r.emitter.EmitEvent(ctx, event)
}
