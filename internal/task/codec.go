package task

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// ErrMalformed is returned when a persisted record cannot be decoded:
// the content is not valid TOML, a required field is absent, or an
// enumeration value is unrecognized.
var ErrMalformed = errors.New("malformed task record")

// requiredKeys are the TOML keys every persisted record must carry.
// priority and updated_at are backfilled when absent so records written
// by older versions keep decoding.
var requiredKeys = []string{"id", "description", "status", "created_at"}

// Encode serializes a task to its TOML file representation.
//
// The output is line-oriented with one key per line so the version-control
// layer produces meaningful textual diffs and merges.
func Encode(t Task) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(t); err != nil {
		return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a TOML file representation back into a task.
//
// Unknown keys are ignored and dropped on the next write; this store is
// not a network protocol, so forward compatibility is ignore-and-drop.
func Decode(data []byte) (Task, error) {
	var t Task
	md, err := toml.Decode(string(data), &t)
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, key := range requiredKeys {
		if !md.IsDefined(key) {
			return Task{}, fmt.Errorf("%w: missing required field %q", ErrMalformed, key)
		}
	}

	// Backfill optional-with-default fields.
	if !md.IsDefined("priority") {
		t.Priority = PriorityNormal
	}
	if !md.IsDefined("updated_at") {
		t.UpdatedAt = t.CreatedAt
	}

	if err := t.Validate(); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return t, nil
}
