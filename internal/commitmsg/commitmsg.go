// Package commitmsg derives conventional-commit style messages from task
// mutations. Messages are part of the on-disk contract: other tools may
// parse the history, so the format is deterministic and carries no
// timestamps or randomness beyond the task identifier itself.
package commitmsg

import (
	"fmt"
	"strings"
)

// Action identifies the kind of mutation a commit records.
type Action string

const (
	ActionCreate Action = "create"
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionFinish Action = "finish"
	ActionCancel Action = "cancel"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// DefaultType is used as the conventional-commit type when the task
// carries no type label of its own.
const DefaultType = "chore"

// idTrailer is the trailer key carrying the task identifier in the
// commit body.
const idTrailer = "Task-Id"

// phrases maps each action to its human-readable subject phrase.
var phrases = map[Action]string{
	ActionCreate: "create task",
	ActionStart:  "start task",
	ActionStop:   "stop task",
	ActionFinish: "mark task as done",
	ActionCancel: "abort task",
	ActionUpdate: "update task",
	ActionDelete: "delete task",
}

// Message builds the commit message for a task mutation.
//
// The first line follows conventional-commit grammar, "type(scope): phrase",
// with the scope segment omitted when the task has no scope. The body is a
// single Task-Id trailer so history stays machine-parseable:
//
//	feat(billing): create task
//
//	Task-Id: 2f1f9e0a-...
func Message(action Action, scope, taskType, id string) string {
	phrase, ok := phrases[action]
	if !ok {
		phrase = string(action) + " task"
	}
	if taskType == "" {
		taskType = DefaultType
	}

	var b strings.Builder
	b.WriteString(taskType)
	if scope != "" {
		fmt.Fprintf(&b, "(%s)", scope)
	}
	fmt.Fprintf(&b, ": %s\n\n%s: %s\n", phrase, idTrailer, id)
	return b.String()
}

// CleanMessage builds the message for a bulk purge of finished tasks.
// Every removed task keeps its own trailer so history stays traceable
// per record.
func CleanMessage(ids []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: remove %d finished task", DefaultType, len(ids))
	if len(ids) != 1 {
		b.WriteByte('s')
	}
	b.WriteString("\n\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "%s: %s\n", idTrailer, id)
	}
	return b.String()
}

// MergeMessage builds the message for a sync merge commit.
func MergeMessage(remote, branch string) string {
	return fmt.Sprintf("merge: reconcile %s/%s into %s\n", remote, branch, branch)
}

// ParseID extracts the task identifier from a commit message produced by
// Message. Returns an empty string when the message carries no trailer.
func ParseID(message string) string {
	for _, line := range strings.Split(message, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), idTrailer+":")
		if ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
