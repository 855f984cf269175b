package dsim

import "errors"

// Fatal configuration and usage errors, returned (never panicked) from
// Kernel construction, Run, and Process.Periodic. The CLI entrypoint is the only place
// that should translate one of these into os.Exit(-1).
var (
	// ErrProcessCountMismatch is returned when the number of
	// applications passed to New does not match Conf.N.
	ErrProcessCountMismatch = errors.New("dsim: number of applications does not match configured process count n")

	// ErrOpDurationRequired is returned when the asynchrony oracle is
	// anything other than NoAsynchrony and Conf.OpDuration is unset.
	ErrOpDurationRequired = errors.New("dsim: op_duration is required in configuration when asynchrony is enabled")

	// ErrUnboundedPeriodic is returned when a process schedules a
	// periodic local call with count 0 (repeat forever) without the
	// simulation having a stop condition (an "end" churn entry or
	// save_and_stop).
	ErrUnboundedPeriodic = errors.New("dsim: scheduled an infinite periodic local call with no end event or save_and_stop configured")

	// ErrUnknownProcess is returned when a churn entry names a process
	// id outside [0, n).
	ErrUnknownProcess = errors.New("dsim: unknown process id")

	// ErrInterrupted is returned by Run when a SIGINT or SIGTERM stops
	// the run, after the saved_on_exit.bin snapshot has been attempted.
	ErrInterrupted = errors.New("dsim: interrupted")
)
