package dsim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cucumber/godog"
)

// simulationBDDContext holds state threaded across one scenario's
// steps: the config under construction, the built kernel, its
// applications, and whatever counters the final assertions check.
type simulationBDDContext struct {
	conf      *Conf
	churnRows []string

	apps      []*echoAppStub
	singleApp *periodicAppStub
	kernel    *Kernel

	sawMessageBeforeStop bool
	eventsAtMessage      int64
}

// echoAppStub is a slimmed-down stand-in for the echo demo application,
// reimplemented locally so this package's feature tests don't take on
// a gob-registration dependency on examples/echo.
type echoAppStub struct {
	id            ProcessID
	n             ProcessID
	fanout        int
	cycles        uint16
	period        Time
	cycle         uint16
	echosSent     int
	echosReceived int
}

func (a *echoAppStub) Init(p *Process)                       { _ = p.Periodic(echoCycleOp{}, a.period, a.cycles) }
func (a *echoAppStub) Leave(p *Process)                      {}
func (a *echoAppStub) Recover(p *Process)                     {}
func (a *echoAppStub) OnLoad(p *Process, apps []Application) {}

type echoCycleOp struct{}

func (echoCycleOp) Invoke(app Application, process *Process) {
	a := app.(*echoAppStub)
	if a.cycle >= a.cycles {
		return
	}
	for i := 0; i < a.fanout; i++ {
		target := ProcessID(process.GetRandom() * float64(a.n))
		process.Send(echoMsgOp{sender: a.id}, target)
		a.echosSent++
	}
	a.cycle++
}

type echoMsgOp struct{ sender ProcessID }

func (e echoMsgOp) Invoke(app Application, process *Process) {
	a := app.(*echoAppStub)
	a.echosReceived++
	process.Send(echoReplyStubOp{}, e.sender)
}

type echoReplyStubOp struct{}

func (echoReplyStubOp) Invoke(app Application, process *Process) {}

// periodicAppStub schedules one unbounded periodic op and records every
// timestamp it fires at, for the stale-timer scenario.
type periodicAppStub struct {
	invocations []Time
}

func (p *periodicAppStub) Init(process *Process)  { _ = process.Periodic(periodicTickOp{}, 10, 0) }
func (p *periodicAppStub) Leave(process *Process) {}
func (p *periodicAppStub) Recover(process *Process) {
	_ = process.Periodic(periodicTickOp{}, 10, 0)
}
func (p *periodicAppStub) OnLoad(process *Process, apps []Application) {}

type periodicTickOp struct{}

func (periodicTickOp) Invoke(app Application, process *Process) {
	a := app.(*periodicAppStub)
	a.invocations = append(a.invocations, process.GetTime())
}

func (c *simulationBDDContext) writeChurnFile() error {
	content := "churn:\n"
	for _, row := range c.churnRows {
		content += row
	}
	dir, err := os.MkdirTemp("", "dsim-bdd")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "churn.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	c.conf.ChurnFile = path
	return nil
}

func (c *simulationBDDContext) aFreshSimulationKernel() error {
	return nil
}

func (c *simulationBDDContext) nIsWithAConstantNetworkOfLatencyAndNoAsynchrony(n, latency int) error {
	c.conf = &Conf{
		N:            uint32(n),
		Seed:         1,
		SaveFilename: "unused.bin",
		Network:      NetworkConfig{Type: "ConstantNetwork", Latency: int32(latency)},
		Asynchrony:   AsynchronyConfig{Type: "NoAsynchrony"},
	}
	return nil
}

func (c *simulationBDDContext) everyProcessRunsTheEchoApplicationWithFanoutCyclesPeriod(fanout, cycles, period int) error {
	c.apps = make([]*echoAppStub, c.conf.N)
	for i := range c.apps {
		c.apps[i] = &echoAppStub{
			id: ProcessID(i), n: ProcessID(c.conf.N),
			fanout: fanout, cycles: uint16(cycles), period: Time(period),
		}
	}
	return nil
}

func (c *simulationBDDContext) allProcessesJoinAtTime0() error {
	c.churnRows = append(c.churnRows, fmt.Sprintf("  - [0, join, %d]\n", c.conf.N))
	return c.writeChurnFile()
}

func (c *simulationBDDContext) theChurnScheduleIs(table *godog.Table) error {
	for _, row := range table.Rows[1:] {
		c.churnRows = append(c.churnRows, fmt.Sprintf("  - [%s, %s, %s]\n",
			row.Cells[0].Value, row.Cells[1].Value, row.Cells[2].Value))
	}
	return c.writeChurnFile()
}

func (c *simulationBDDContext) process0SchedulesAPeriodicOpEveryTicksUnboundedly(delta int) error {
	c.singleApp = &periodicAppStub{}
	c.churnRows = append(c.churnRows, fmt.Sprintf("  - [0, join, %d]\n", c.conf.N))
	// An unbounded periodic call requires a configured stop condition;
	// this end event just bounds the run, well past the window the
	// scenario's Then-steps inspect.
	c.churnRows = append(c.churnRows, "  - [1000, end, 0]\n")
	return c.writeChurnFile()
}

func (c *simulationBDDContext) process0FailsAtTime(ts int) error {
	c.churnRows = append(c.churnRows, fmt.Sprintf("  - [%d, fail-id, 0]\n", ts))
	return c.writeChurnFile()
}

func (c *simulationBDDContext) process0RecoversAtTime(ts int) error {
	c.churnRows = append(c.churnRows, fmt.Sprintf("  - [%d, recover-id, 0]\n", ts))
	return c.writeChurnFile()
}

func (c *simulationBDDContext) aMessageEventAndAnEndEventAreBothScheduledAtTime(ts int) error {
	c.churnRows = append(c.churnRows, fmt.Sprintf("  - [0, join, %d]\n", c.conf.N))
	c.churnRows = append(c.churnRows, fmt.Sprintf("  - [%d, end, 0]\n", ts))
	if err := c.writeChurnFile(); err != nil {
		return err
	}

	apps := make([]Application, c.conf.N)
	for i := range apps {
		apps[i] = &periodicAppStub{}
	}
	k, err := New(c.conf, apps)
	if err != nil {
		return err
	}
	c.kernel = k

	// Scheduled after the churn file's End event is enqueued, so it
	// sorts later in insertion order at the same timestamp and still
	// must dispatch first under the End-last tie-break.
	c.kernel.queue.addEvent(Event{Ts: Time(ts), Target: 0, Op: messageMarkerOp{ctx: c}, Kind: EventMessage})
	return nil
}

type messageMarkerOp struct{ ctx *simulationBDDContext }

func (m messageMarkerOp) Invoke(app Application, process *Process) {
	m.ctx.sawMessageBeforeStop = true
	m.ctx.eventsAtMessage = m.ctx.kernel.eventsProcessed
}

func (c *simulationBDDContext) theSimulationRunsToCompletion() error {
	if c.kernel == nil {
		var apps []Application
		switch {
		case c.apps != nil:
			apps = make([]Application, len(c.apps))
			for i, a := range c.apps {
				apps[i] = a
			}
		case c.singleApp != nil:
			apps = []Application{c.singleApp}
		default:
			apps = make([]Application, c.conf.N)
			for i := range apps {
				apps[i] = &periodicAppStub{}
			}
		}
		k, err := New(c.conf, apps)
		if err != nil {
			return err
		}
		c.kernel = k
	}
	return c.kernel.Run(context.Background())
}

func (c *simulationBDDContext) theTotalEchoesSentAcrossAllProcessesIs(want int) error {
	total := 0
	for _, a := range c.apps {
		total += a.echosSent
	}
	if total != want {
		return fmt.Errorf("echoes sent: got %d, want %d", total, want)
	}
	return nil
}

func (c *simulationBDDContext) theTotalEchoesReceivedAcrossAllProcessesIs(want int) error {
	total := 0
	for _, a := range c.apps {
		total += a.echosReceived
	}
	if total != want {
		return fmt.Errorf("echoes received: got %d, want %d", total, want)
	}
	return nil
}

func (c *simulationBDDContext) theFinalClockIs(want int) error {
	if int(c.kernel.currentTs) != want {
		return fmt.Errorf("clock: got %d, want %d", c.kernel.currentTs, want)
	}
	return nil
}

func (c *simulationBDDContext) theFinalUpCountIs(want int) error {
	if got := len(c.kernel.idsUp()); got != want {
		return fmt.Errorf("up count: got %d, want %d", got, want)
	}
	return nil
}

func (c *simulationBDDContext) theOpIsNotInvokedBetweenTimeAndTime(from, to int) error {
	for _, ts := range c.singleApp.invocations {
		if int(ts) > from && int(ts) < to {
			return fmt.Errorf("op invoked at %d, within forbidden window (%d, %d)", ts, from, to)
		}
	}
	return nil
}

func (c *simulationBDDContext) theOpIsInvokedExactlyOnceEveryTicksFromTimeOnwardUnderTheNewGeneration(period, from int) error {
	var after []Time
	for _, ts := range c.singleApp.invocations {
		if int(ts) >= from {
			after = append(after, ts)
		}
	}
	if len(after) == 0 {
		return fmt.Errorf("no invocations at or after %d", from)
	}
	for i := 1; i < len(after); i++ {
		if int(after[i]-after[i-1]) != period {
			return fmt.Errorf("gap between invocations %d and %d is not %d ticks", after[i-1], after[i], period)
		}
	}
	return nil
}

func (c *simulationBDDContext) theMessageEventIsDispatchedBeforeTheRunStops() error {
	if !c.sawMessageBeforeStop {
		return fmt.Errorf("message event was never dispatched")
	}
	return nil
}

func (c *simulationBDDContext) eventsProcessedCountsTheMessage() error {
	// eventsAtMessage is the counter's value while the message ran; Run
	// increments it right after dispatching that event.
	if c.kernel.eventsProcessed < c.eventsAtMessage+1 {
		return fmt.Errorf("events_processed was never incremented for the message event")
	}
	return nil
}

func InitializeSimulationScenario(sc *godog.ScenarioContext) {
	c := &simulationBDDContext{}

	sc.Step(`^a fresh simulation kernel$`, c.aFreshSimulationKernel)
	sc.Step(`^n is (\d+) with a constant network of latency (\d+) and no asynchrony$`, c.nIsWithAConstantNetworkOfLatencyAndNoAsynchrony)
	sc.Step(`^every process runs the echo application with fanout (\d+), cycles (\d+), period (\d+)$`, c.everyProcessRunsTheEchoApplicationWithFanoutCyclesPeriod)
	sc.Step(`^all processes join at time 0$`, c.allProcessesJoinAtTime0)
	sc.Step(`^the churn schedule is:$`, c.theChurnScheduleIs)
	sc.Step(`^the simulation runs to completion$`, c.theSimulationRunsToCompletion)
	sc.Step(`^the total echoes sent across all processes is (\d+)$`, c.theTotalEchoesSentAcrossAllProcessesIs)
	sc.Step(`^the total echoes received across all processes is (\d+)$`, c.theTotalEchoesReceivedAcrossAllProcessesIs)
	sc.Step(`^the final clock is (\d+)$`, c.theFinalClockIs)
	sc.Step(`^the final up count is (\d+)$`, c.theFinalUpCountIs)
	sc.Step(`^process 0 schedules a periodic op every (\d+) ticks unboundedly$`, c.process0SchedulesAPeriodicOpEveryTicksUnboundedly)
	sc.Step(`^process 0 fails at time (\d+)$`, c.process0FailsAtTime)
	sc.Step(`^process 0 recovers at time (\d+)$`, c.process0RecoversAtTime)
	sc.Step(`^the op is not invoked between time (\d+) and time (\d+)$`, c.theOpIsNotInvokedBetweenTimeAndTime)
	sc.Step(`^the op is invoked exactly once every (\d+) ticks from time (\d+) onward under the new generation$`, c.theOpIsInvokedExactlyOnceEveryTicksFromTimeOnwardUnderTheNewGeneration)
	sc.Step(`^a message event and an End event are both scheduled at time (\d+)$`, c.aMessageEventAndAnEndEventAreBothScheduledAtTime)
	sc.Step(`^the message event is dispatched before the run stops$`, c.theMessageEventIsDispatchedBeforeTheRunStops)
	sc.Step(`^events processed counts the message$`, c.eventsProcessedCountsTheMessage)
}

func TestSimulationFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeSimulationScenario,
		Options: &godog.Options{
			Format: "pretty",
			Paths:  []string{"features"},
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
