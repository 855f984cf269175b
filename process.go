package dsim

// Process is a non-owning handle an Application uses to act within the
// simulation: send messages, schedule local callbacks, and query the
// clock, RNG, and membership view. It holds no mutable state of its
// own; every call delegates to the Kernel that owns the actual process
// state, queue, and RNG, mirroring the original's Rc<RefCell<Process>>
// shared handle without needing Go's own reference-counted cells.
type Process struct {
	id     ProcessID
	kernel *Kernel
}

// ID returns this process's id.
func (p *Process) ID() ProcessID { return p.id }

// Send schedules op to run on target after a latency drawn from the
// kernel's network oracle. If the oracle reports the message lost, Send
// is a no-op: the message simply never arrives.
func (p *Process) Send(op Operation, target ProcessID) {
	latency, delivered := p.kernel.network.Deliver(p.kernel.rngSrc, int(p.id), int(target))
	if !delivered {
		return
	}
	p.kernel.queue.addEvent(Event{
		Ts:     p.kernel.currentTs + Time(latency),
		Target: target,
		Op:     op,
		Kind:   EventMessage,
	})
}

// Call schedules op to run on this same process after delta ticks,
// exactly once.
func (p *Process) Call(op Operation, delta Time) error {
	return p.Periodic(op, delta, 1)
}

// Periodic schedules op to run on this process every delta ticks,
// repeating count times (count == 0 means unboundedly) until the
// process leaves or fails. An unbounded periodic call is only legal once
// the kernel has a configured stop condition (an "end" churn entry or
// save_and_stop); otherwise it returns ErrUnboundedPeriodic, since
// nothing would ever terminate the run.
func (p *Process) Periodic(op Operation, delta Time, count uint16) error {
	if !p.kernel.simulationStops && count == 0 {
		return ErrUnboundedPeriodic
	}
	ts := p.kernel.applyAsync(p.kernel.currentTs + delta)
	p.kernel.queue.addEvent(Event{
		Ts:         ts,
		Target:     p.id,
		Op:         op,
		Kind:       EventLocal,
		Generation: p.kernel.processes[p.id].Generation,
		Delta:      delta,
		Count:      count,
	})
	return nil
}

// GetTime returns the kernel's current virtual clock value.
func (p *Process) GetTime() Time { return p.kernel.currentTs }

// GetRandom returns a uniform draw in [0.0, 1.0) from the shared RNG.
func (p *Process) GetRandom() float64 { return p.kernel.rngSrc.Float64() }

// GetID is an alias for ID, matching the original's get_id naming for
// application authors porting logic across.
func (p *Process) GetID() ProcessID { return p.id }

// GetGlobalView returns handles for every process currently up.
func (p *Process) GetGlobalView() []*Process {
	view := make([]*Process, 0, len(p.kernel.processes))
	for id, state := range p.kernel.processes {
		if state.Up {
			view = append(view, p.kernel.processHandle(ProcessID(id)))
		}
	}
	return view
}

// IsProcessUp reports whether id is currently up.
func (p *Process) IsProcessUp(id ProcessID) bool {
	return p.kernel.isProcessUp(id)
}
