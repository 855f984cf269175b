// Package snapshot persists and restores kernel state to support
// save/resume: a run can be stopped and later continued from the exact
// event queue, clock, and RNG state it left off at.
package snapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
)

// Save gob-encodes state and writes it to filename, overwriting any
// existing file. state is typically a pointer to the kernel's exported
// snapshot struct; any Application/Operation implementation it
// transitively references must already be registered with gob.Register
// by the caller before Save or Load is used.
func Save(filename string, state interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return fmt.Errorf("snapshot: encoding state: %w", err)
	}
	if err := os.WriteFile(filename, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("snapshot: writing %s: %w", filename, err)
	}
	return nil
}

// Load reads filename and gob-decodes it into state, which must be a
// pointer.
func Load(filename string, state interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("snapshot: reading %s: %w", filename, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(state); err != nil {
		return fmt.Errorf("snapshot: decoding %s: %w", filename, err)
	}
	return nil
}
