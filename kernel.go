package dsim

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/dsim-project/dsim/churn"
	"github.com/dsim-project/dsim/rng"
	"github.com/dsim-project/dsim/snapshot"
	"github.com/dsim-project/dsim/statusserver"
	"github.com/dsim-project/dsim/telemetry"

	"github.com/dsim-project/dsim/asynchrony"
	"github.com/dsim-project/dsim/network"
)

// ProcessState is the kernel's record of one process's membership: up
// and generation are exported so a Kernel snapshot can be gob-encoded
// directly.
type ProcessState struct {
	Up         bool
	Generation uint16
}

// Kernel owns every piece of mutable simulation state: the process
// table, event queue, virtual clock, and shared RNG. Process handles
// never own state themselves; they read and mutate through their
// kernel pointer, so a Kernel's internals are the single source of
// truth a snapshot needs to capture.
type Kernel struct {
	conf *Conf

	apps      []Application
	processes []ProcessState
	handles   []*Process

	queue     *eventQueue
	currentTs Time

	rngSrc *rng.Source

	network    network.Oracle
	asynchrony asynchrony.Oracle
	opDuration Time

	simulationStops bool
	eventsProcessed int64

	logger   Logger
	recorder *telemetry.Recorder

	statusMu sync.Mutex
	status   statusserver.Status
	statusSrv *statusServer
}

// Option configures optional Kernel behavior.
type Option func(*Kernel)

// WithLogger attaches a Logger. Without one, the kernel logs nothing.
func WithLogger(l Logger) Option {
	return func(k *Kernel) { k.logger = l }
}

// WithTelemetry attaches a telemetry.Recorder so lifecycle/churn/save
// events are emitted as CloudEvents through it.
func WithTelemetry(r *telemetry.Recorder) Option {
	return func(k *Kernel) { k.recorder = r }
}

// WithStatusServer starts a read-only HTTP debug endpoint at addr
// (e.g. "127.0.0.1:8090") serving GET /status and GET /healthz for the
// lifetime of the run. It is shut down when Run returns.
func WithStatusServer(addr string) Option {
	return func(k *Kernel) { k.statusSrv = &statusServer{addr: addr} }
}

// New builds a Kernel from conf and apps. If conf.Load is set, apps is
// ignored and the process/application state is restored from the
// snapshot file instead; any concrete Application/Operation type that
// may appear in the snapshot must already be registered with
// gob.Register by the caller before New is called.
func New(conf *Conf, apps []Application, opts ...Option) (*Kernel, error) {
	k := &Kernel{conf: conf, queue: newEventQueue()}
	for _, opt := range opts {
		opt(k)
	}

	if conf.Load != "" {
		if err := k.restore(conf); err != nil {
			return nil, err
		}
		if conf.NewSeed != nil {
			logInfo(k.logger, "after load, running with new seed", "seed", *conf.NewSeed)
		} else {
			logInfo(k.logger, "after load, running with same random number generator")
		}
	} else {
		if int(conf.N) != len(apps) {
			return nil, fmt.Errorf("%w: n=%d, got %d applications", ErrProcessCountMismatch, conf.N, len(apps))
		}

		k.rngSrc = rng.New(conf.Seed)

		if !isNoAsynchrony(conf.Asynchrony) && conf.OpDuration == nil {
			return nil, ErrOpDurationRequired
		}
		opDuration := Time(0)
		if !isNoAsynchrony(conf.Asynchrony) {
			opDuration = Time(*conf.OpDuration)
		}
		k.opDuration = opDuration

		netOracle, err := buildNetwork(conf.Network, k.rngSrc)
		if err != nil {
			return nil, err
		}
		k.network = netOracle
		k.asynchrony = buildAsynchrony(conf.Asynchrony, k.rngSrc)

		k.apps = make([]Application, conf.N)
		k.processes = make([]ProcessState, conf.N)
		k.handles = make([]*Process, conf.N)
		for i := ProcessID(0); i < ProcessID(conf.N); i++ {
			k.apps[i] = apps[i]
			k.handles[i] = &Process{id: i, kernel: k}
		}

		logInfo(k.logger, "running with seed", "seed", conf.Seed)
	}

	stops, err := k.configureChurnAndSave(conf)
	if err != nil {
		return nil, err
	}
	k.simulationStops = stops

	return k, nil
}

// Apps returns the kernel's application instances, in process-id
// order, for callers that need to gather end-of-run statistics.
func (k *Kernel) Apps() []Application { return k.apps }

func (k *Kernel) processHandle(id ProcessID) *Process { return k.handles[id] }

func (k *Kernel) idInUse(id ProcessID) bool { return int(id) < len(k.processes) }

func (k *Kernel) isProcessUp(id ProcessID) bool {
	if !k.idInUse(id) {
		return false
	}
	return k.processes[id].Up
}

func (k *Kernel) hasJoined(id ProcessID) bool {
	return k.idInUse(id) && k.processes[id].Generation > 0
}

func (k *Kernel) setUp(id ProcessID, up bool) {
	if k.idInUse(id) {
		k.processes[id].Up = up
	}
}

// applyAsync adds a clock-skew offset to ts. The offset is resampled
// from opDuration on every call, not derived from ts itself: ts is the
// delta-adjusted schedule time being perturbed, opDuration is the fixed
// base the skew factor scales against.
func (k *Kernel) applyAsync(ts Time) Time {
	return ts + Time(k.asynchrony.Skew(int32(k.opDuration)))
}

// configureChurnAndSave parses conf's churn file (if any) and schedules
// its entries, plus a save event if conf.Save is set. Without a churn
// file (and without a snapshot to load), every process joins at time 0
// before any event is dispatched. It reports whether the simulation now
// has a stop condition (an "end" churn entry, or save_and_stop).
func (k *Kernel) configureChurnAndSave(conf *Conf) (bool, error) {
	existsEnd := false
	if conf.ChurnFile == "" {
		if conf.Load == "" {
			// No end entry can exist here, so the stop condition the
			// apps' Init calls see is save_and_stop alone.
			k.simulationStops = conf.SaveAndStop
			for i := range k.processes {
				k.joinProcess(0, ProcessID(i))
			}
		}
	} else {
		entries, hasEnd, err := churn.Load(conf.ChurnFile, conf.N)
		if err != nil {
			return false, err
		}
		existsEnd = hasEnd
		for _, e := range entries {
			if idTargeted(e.Action) && e.ID >= conf.N {
				return false, fmt.Errorf("%w: %d (n=%d)", ErrUnknownProcess, e.ID, conf.N)
			}
			k.queue.addEvent(churnEntryToEvent(e))
		}
	}

	if conf.Save != nil {
		k.queue.addEvent(Event{Ts: Time(*conf.Save), Kind: EventSave})
	}

	return existsEnd || conf.SaveAndStop, nil
}

// idTargeted reports whether a is one of the id-targeted churn actions,
// whose param names a specific process rather than a count or fraction.
func idTargeted(a churn.Action) bool {
	return a == churn.ActionLeaveID || a == churn.ActionFailID || a == churn.ActionRecoverID
}

func churnEntryToEvent(e churn.Entry) Event {
	ev := Event{Ts: Time(e.Time), Kind: EventChurn}
	switch e.Action {
	case churn.ActionJoin:
		ev.ChurnAction, ev.NumProc = ChurnJoin, e.NumProc
	case churn.ActionLeave:
		ev.ChurnAction, ev.NumProc = ChurnLeave, e.NumProc
	case churn.ActionFail:
		ev.ChurnAction, ev.NumProc = ChurnFail, e.NumProc
	case churn.ActionRecover:
		ev.ChurnAction, ev.NumProc = ChurnRecover, e.NumProc
	case churn.ActionLeaveID:
		ev.ChurnAction, ev.ChurnID = ChurnLeaveID, ProcessID(e.ID)
	case churn.ActionFailID:
		ev.ChurnAction, ev.ChurnID = ChurnFailID, ProcessID(e.ID)
	case churn.ActionRecoverID:
		ev.ChurnAction, ev.ChurnID = ChurnRecoverID, ProcessID(e.ID)
	case churn.ActionEnd:
		ev.ChurnAction = ChurnEnd
	}
	return ev
}

// chooseFrom draws up to numProc distinct ids from candidates without
// replacement.
func (k *Kernel) chooseFrom(candidates []ProcessID, numProc uint32) []ProcessID {
	idx := k.rngSrc.ChooseK(len(candidates), int(numProc))
	chosen := make([]ProcessID, len(idx))
	for i, j := range idx {
		chosen[i] = candidates[j]
	}
	return chosen
}

func (k *Kernel) idsUp() []ProcessID {
	var v []ProcessID
	for id := range k.processes {
		if k.isProcessUp(ProcessID(id)) {
			v = append(v, ProcessID(id))
		}
	}
	return v
}

func (k *Kernel) idsDown() []ProcessID {
	var v []ProcessID
	for id := range k.processes {
		pid := ProcessID(id)
		if !k.isProcessUp(pid) && k.hasJoined(pid) {
			v = append(v, pid)
		}
	}
	return v
}

func (k *Kernel) idsNotJoined() []ProcessID {
	var v []ProcessID
	for id := range k.processes {
		pid := ProcessID(id)
		if !k.isProcessUp(pid) && !k.hasJoined(pid) {
			v = append(v, pid)
		}
	}
	return v
}

func (k *Kernel) joinProcess(ts Time, id ProcessID) {
	if !k.idInUse(id) {
		return
	}
	k.processes[id].Generation = 1
	k.currentTs = ts
	k.apps[id].Init(k.processHandle(id))
	k.setUp(id, true)
	k.emit(telemetry.EventProcessUp, id)
}

func (k *Kernel) leaveProcess(id ProcessID) {
	if !k.idInUse(id) {
		return
	}
	k.apps[id].Leave(k.processHandle(id))
	k.setUp(id, false)
	k.emit(telemetry.EventProcessDown, id)
}

func (k *Kernel) failProcess(id ProcessID) {
	k.setUp(id, false)
	k.emit(telemetry.EventProcessDown, id)
}

func (k *Kernel) recoverProcess(ts Time, id ProcessID) {
	if !k.idInUse(id) {
		return
	}
	k.processes[id].Generation++
	k.currentTs = ts
	k.apps[id].Recover(k.processHandle(id))
	k.setUp(id, true)
	k.emit(telemetry.EventProcessUp, id)
}

func (k *Kernel) emit(eventType string, id ProcessID) {
	if k.recorder == nil {
		return
	}
	k.recorder.Emit(context.Background(), eventType, map[string]interface{}{
		"process": id, "time": k.currentTs,
	})
}

func (k *Kernel) handleChurnEvent(e Event) {
	switch e.ChurnAction {
	case ChurnJoin:
		for _, id := range k.chooseFrom(k.idsNotJoined(), e.NumProc) {
			k.joinProcess(e.Ts, id)
		}
	case ChurnLeave:
		for _, id := range k.chooseFrom(k.idsUp(), e.NumProc) {
			k.leaveProcess(id)
		}
	case ChurnFail:
		for _, id := range k.chooseFrom(k.idsUp(), e.NumProc) {
			k.failProcess(id)
		}
	case ChurnRecover:
		for _, id := range k.chooseFrom(k.idsDown(), e.NumProc) {
			k.recoverProcess(e.Ts, id)
		}
	case ChurnLeaveID:
		k.leaveProcess(e.ChurnID)
	case ChurnFailID:
		k.failProcess(e.ChurnID)
	case ChurnRecoverID:
		k.recoverProcess(e.Ts, e.ChurnID)
	case ChurnEnd:
		// handled by the caller before dispatch is reached.
	}
	k.emit(telemetry.EventChurnApplied, 0)
}

func (k *Kernel) refreshStatus() {
	k.statusMu.Lock()
	k.status = statusserver.Status{
		Time:            int32(k.currentTs),
		EventsProcessed: k.eventsProcessed,
		EventsQueued:    k.queue.Len(),
		ProcessesUp:     len(k.idsUp()),
	}
	k.statusMu.Unlock()
}

func (k *Kernel) statusSnapshot() statusserver.Status {
	k.statusMu.Lock()
	defer k.statusMu.Unlock()
	return k.status
}

type statusServer struct {
	addr string
	srv  *http.Server
}

func (k *Kernel) startStatusServer() {
	if k.statusSrv == nil || k.statusSrv.addr == "" {
		return
	}
	k.statusSrv.srv = &http.Server{
		Addr:    k.statusSrv.addr,
		Handler: statusserver.New(k.statusSnapshot),
	}
	go func() {
		if err := k.statusSrv.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logError(k.logger, "status server stopped", "error", err)
		}
	}()
}

func (k *Kernel) stopStatusServer() {
	if k.statusSrv != nil && k.statusSrv.srv != nil {
		_ = k.statusSrv.srv.Shutdown(context.Background())
	}
}

// Run executes the main simulation loop until the event queue empties,
// an "end" churn event is reached, or a save event fires with
// save_and_stop set. It handles SIGINT and SIGTERM: the first such
// signal triggers a snapshot to saved_on_exit.bin, after which Run
// returns ErrInterrupted. The signal is only checked between events, and
// a second signal arriving while that snapshot is written does not cut
// the save short.
func (k *Kernel) Run(ctx context.Context) error {
	k.startStatusServer()
	defer k.stopStatusServer()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	interrupts := 0

loop:
	for {
		select {
		case <-sigCh:
			interrupts++
			if interrupts == 1 {
				logWarn(k.logger, "received interrupt, saving snapshot before exit", "file", "saved_on_exit.bin")
				if err := k.Save("saved_on_exit.bin"); err != nil {
					logError(k.logger, "failed to save snapshot on interrupt", "error", err)
				}
				return ErrInterrupted
			}
			logWarn(k.logger, "received second interrupt, exiting without saving")
			return ErrInterrupted
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, ok := k.queue.nextEvent()
		if !ok {
			break loop
		}
		k.currentTs = event.Ts

		if event.isEnd() {
			logInfo(k.logger, "reached end event", "time", int32(event.Ts))
			break loop
		}

		stop := false
		switch event.Kind {
		case EventChurn:
			k.handleChurnEvent(event)
		case EventSave:
			if err := k.Save(k.conf.SaveFilename); err != nil {
				logError(k.logger, "failed to save snapshot", "error", err)
			}
			k.emit(telemetry.EventSnapshotSaved, 0)
			stop = k.conf.SaveAndStop
		default:
			k.dispatch(event)
		}

		k.refreshStatus()
		k.eventsProcessed++

		if stop {
			break loop
		}
	}

	logInfo(k.logger, "run ended",
		"time", int32(k.currentTs),
		"eventsProcessed", k.eventsProcessed,
		"eventsQueued", k.queue.Len(),
	)
	k.emit(telemetry.EventRunEnded, 0)
	return nil
}

// dispatch runs a Local or Message event against its target, silently
// dropping it if the target is down or, for Local events, if the
// process's generation has moved on since the event was scheduled (the
// process left and rejoined, making the timer stale).
func (k *Kernel) dispatch(event Event) {
	target := event.Target
	if !k.isProcessUp(target) {
		return
	}
	if event.Kind == EventLocal && k.processes[target].Generation != event.Generation {
		return
	}

	process := k.processHandle(target)
	event.Op.Invoke(k.apps[target], process)

	if event.Kind == EventLocal {
		k.reschedulePeriodic(event)
	}
}

func (k *Kernel) reschedulePeriodic(event Event) {
	if event.Count == 1 {
		return
	}
	newCount := event.Count
	if newCount != 0 {
		newCount--
	}
	ts := k.applyAsync(k.currentTs + event.Delta)
	k.queue.addEvent(Event{
		Ts:         ts,
		Target:     event.Target,
		Op:         event.Op,
		Kind:       EventLocal,
		Generation: event.Generation,
		Delta:      event.Delta,
		Count:      newCount,
	})
}

// kernelState is the gob-serializable shape of a Kernel snapshot. The
// network and asynchrony oracles are deliberately not included: they
// are rebuilt fresh from Conf on restore, since they are pure,
// deterministic functions of configuration plus the shared RNG, which
// is snapshotted.
type kernelState struct {
	N               uint32
	CurrentTs       Time
	EventsProcessed int64
	RNGState0       uint64
	RNGState1       uint64
	Processes       []ProcessState
	Queue           []Event
	Apps            []Application
}

// Save gob-encodes the kernel's full state (apps, processes, queue,
// clock, RNG) to filename, for later resumption via a Conf with Load
// set to the same path.
func (k *Kernel) Save(filename string) error {
	s0, s1 := k.rngSrc.State()

	queue := make([]Event, len(k.queue.events))
	copy(queue, k.queue.events)
	sort.Slice(queue, func(i, j int) bool { return queue[i].seq < queue[j].seq })

	state := kernelState{
		N:               k.conf.N,
		CurrentTs:       k.currentTs,
		EventsProcessed: k.eventsProcessed,
		RNGState0:       s0,
		RNGState1:       s1,
		Processes:       k.processes,
		Queue:           queue,
		Apps:            k.apps,
	}
	return snapshot.Save(filename, &state)
}

// restore loads a snapshot named by conf.Load, rebuilding the network
// and asynchrony oracles from conf and replaying the saved queue so
// relative event ordering is preserved exactly.
func (k *Kernel) restore(conf *Conf) error {
	var state kernelState
	if err := snapshot.Load(conf.Load, &state); err != nil {
		return err
	}

	k.rngSrc = rng.New(0)
	if conf.NewSeed != nil {
		k.rngSrc.Reseed(*conf.NewSeed)
	} else {
		k.rngSrc.SetState(state.RNGState0, state.RNGState1)
	}

	if !isNoAsynchrony(conf.Asynchrony) && conf.OpDuration == nil {
		return ErrOpDurationRequired
	}
	if !isNoAsynchrony(conf.Asynchrony) {
		k.opDuration = Time(*conf.OpDuration)
	}

	netOracle, err := buildNetwork(conf.Network, k.rngSrc)
	if err != nil {
		return err
	}
	k.network = netOracle
	k.asynchrony = buildAsynchrony(conf.Asynchrony, k.rngSrc)

	k.currentTs = state.CurrentTs
	k.eventsProcessed = state.EventsProcessed
	k.processes = state.Processes
	k.apps = state.Apps
	k.handles = make([]*Process, len(k.apps))
	for i := range k.handles {
		k.handles[i] = &Process{id: ProcessID(i), kernel: k}
	}

	k.queue = newEventQueue()
	for _, e := range state.Queue {
		k.queue.addEvent(e)
	}

	for i, app := range k.apps {
		app.OnLoad(k.processHandle(ProcessID(i)), k.apps)
	}

	logInfo(k.logger, "loaded snapshot", "file", conf.Load, "time", int32(k.currentTs))
	k.emit(telemetry.EventSnapshotLoaded, 0)
	return nil
}
