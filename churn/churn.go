// Package churn parses the declarative churn schedule file and resolves
// each entry's process-count-or-fraction / id payload into concrete
// values the kernel can schedule as events.
package churn

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// ErrUnknownAction is returned when a schedule entry names an action
// other than join/leave/fail/recover/leave-id/fail-id/recover-id/end.
var ErrUnknownAction = errors.New("churn: unknown action")

// Action is one churn schedule verb.
type Action string

const (
	ActionJoin       Action = "join"
	ActionLeave      Action = "leave"
	ActionFail       Action = "fail"
	ActionRecover    Action = "recover"
	ActionLeaveID    Action = "leave-id"
	ActionFailID     Action = "fail-id"
	ActionRecoverID  Action = "recover-id"
	ActionEnd        Action = "end"
)

// numProcActions take a count-or-fraction third field.
var numProcActions = map[Action]bool{
	ActionJoin: true, ActionLeave: true, ActionFail: true, ActionRecover: true,
}

// idActions take a bare process id third field.
var idActions = map[Action]bool{
	ActionLeaveID: true, ActionFailID: true, ActionRecoverID: true,
}

// Entry is one resolved churn schedule row. For a num-proc action,
// NumProc holds the resolved process count; for an id action, ID holds
// the target process id; for ActionEnd neither is set.
type Entry struct {
	Time    int32
	Action  Action
	NumProc uint32
	ID      uint32
}

type rawFile struct {
	Churn [][]interface{} `yaml:"churn"`
}

// Load parses a churn schedule file, resolving fractional process counts
// against n (round(fraction*n)), and reports whether the schedule
// contains an "end" entry. A file that cannot be read is an error; a
// file with an empty schedule yields no entries. Every row, "end"
// included, must have exactly three fields.
func Load(filename string, n uint32) (entries []Entry, hasEnd bool, err error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, false, fmt.Errorf("churn: reading %s: %w", filename, err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("churn: parsing %s: %w", filename, err)
	}

	for idx, row := range raw.Churn {
		if len(row) != 3 {
			return nil, false, fmt.Errorf("churn: entry %d: expected [time, action, param], got %d fields", idx, len(row))
		}
		ts, err := cast.ToInt32(row[0])
		if err != nil {
			return nil, false, fmt.Errorf("churn: entry %d: time must be an integer: %w", idx, err)
		}
		actionStr, err := cast.ToString(row[1])
		if err != nil {
			return nil, false, fmt.Errorf("churn: entry %d: action must be a string: %w", idx, err)
		}
		action := Action(actionStr)

		switch {
		case action == ActionEnd:
			entries = append(entries, Entry{Time: ts, Action: action})
			hasEnd = true
		case numProcActions[action]:
			num, err := resolveNumProc(row[2], n)
			if err != nil {
				return nil, false, fmt.Errorf("churn: entry %d: %w", idx, err)
			}
			entries = append(entries, Entry{Time: ts, Action: action, NumProc: num})
		case idActions[action]:
			id, err := cast.ToUint32(row[2])
			if err != nil {
				return nil, false, fmt.Errorf("churn: entry %d: id must be an integer: %w", idx, err)
			}
			entries = append(entries, Entry{Time: ts, Action: action, ID: id})
		default:
			return nil, false, fmt.Errorf("churn: entry %d: %w %q, expected join/leave/fail/recover/leave-id/fail-id/recover-id/end", idx, ErrUnknownAction, actionStr)
		}
	}
	return entries, hasEnd, nil
}

// resolveNumProc accepts either a bare integer process count or a float
// in (0, 1] interpreted as a fraction of n, rounded to the nearest
// integer, mirroring handle_churn_num_proc in the original. The
// distinction is made on how yaml.v3 decoded the scalar (Go int vs Go
// float64), not by attempting a lossy numeric coercion first: an
// integer-valued fraction like 1.0 must still be treated as a
// fraction, and a generic "coerce to uint32" cast would truncate it
// into an integer count instead.
func resolveNumProc(v interface{}, n uint32) (uint32, error) {
	switch t := v.(type) {
	case int:
		return uint32(t), nil
	case int64:
		return uint32(t), nil
	case uint64:
		return uint32(t), nil
	}
	frac, err := cast.ToFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("process count must be an integer or a fraction: %w", err)
	}
	return uint32(math.Round(frac * float64(n))), nil
}
