package task

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	started := testNow.Add(time.Minute)
	original := Task{
		ID:          "7c9a2b9e-1111-4222-8333-444455556666",
		Description: "migrate the billing tables",
		Priority:    PriorityUrgent,
		Scope:       "billing",
		Type:        "feat",
		Status:      StatusActive,
		CreatedAt:   testNow,
		UpdatedAt:   started,
		StartedAt:   &started,
		TimeSpent:   95,
	}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, Equal(original, decoded))
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := Encode(Task{ID: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecodeBackfillsDefaults(t *testing.T) {
	// priority and updated_at are optional with defaults so older
	// records keep decoding.
	data := []byte(`
id = "abc"
description = "old record"
status = "pending"
created_at = 2026-08-20T09:00:00Z
`)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, got.Priority)
	assert.True(t, got.UpdatedAt.Equal(got.CreatedAt))
}

func TestDecodeMissingRequiredField(t *testing.T) {
	for _, missing := range []string{"id", "description", "status", "created_at"} {
		t.Run(missing, func(t *testing.T) {
			full := map[string]string{
				"id":          `id = "abc"`,
				"description": `description = "x"`,
				"status":      `status = "pending"`,
				"created_at":  `created_at = 2026-08-20T09:00:00Z`,
			}
			delete(full, missing)
			var b strings.Builder
			for _, line := range full {
				b.WriteString(line + "\n")
			}

			_, err := Decode([]byte(b.String()))
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not toml", "{not toml at all"},
		{"unknown status", "id = \"a\"\ndescription = \"x\"\nstatus = \"paused\"\ncreated_at = 2026-08-20T09:00:00Z\n"},
		{"unknown priority", "id = \"a\"\ndescription = \"x\"\nstatus = \"pending\"\npriority = \"asap\"\ncreated_at = 2026-08-20T09:00:00Z\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeIgnoresUnknownKeys(t *testing.T) {
	data := []byte(`
id = "abc"
description = "record from the future"
status = "pending"
priority = "high"
created_at = 2026-08-20T09:00:00Z
updated_at = 2026-08-20T09:00:00Z
shiny_new_field = "whatever"
`)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)

	// The unknown key is dropped on re-encode.
	out, err := Encode(got)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "shiny_new_field")
}
