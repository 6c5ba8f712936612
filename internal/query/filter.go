// Package query evaluates filters, ordering, and aggregate statistics
// over an in-memory collection of task records.
//
// Filters AND across categories: a record matches when it satisfies every
// populated category. Within one category, membership is an OR over the
// listed values.
package query

import (
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/mbarlow/taskit/internal/task"
)

// DateRange bounds a timestamp with inclusive endpoints. A nil side is
// open-ended.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// IsZero returns true when neither bound is set.
func (r DateRange) IsZero() bool {
	return r.From == nil && r.To == nil
}

// Contains reports whether t satisfies from <= t <= to.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// Filter selects records from a collection. Zero-valued categories are
// not applied.
type Filter struct {
	// Statuses, Priorities, Scopes, and Types are set-membership
	// filters; empty slices match everything.
	Statuses   []task.Status
	Priorities []task.Priority
	Scopes     []string
	Types      []string

	// Created, Updated, and Completed constrain the corresponding
	// timestamps. Completed only ever matches records that have a
	// completion timestamp.
	Created   DateRange
	Updated   DateRange
	Completed DateRange

	// Fuzzy is a case-insensitive fuzzy pattern over descriptions.
	// FuzzyThreshold is the minimum similarity score to accept; the
	// zero value accepts any match with a non-negative score.
	Fuzzy          string
	FuzzyThreshold int
}

// Matches reports whether the record satisfies every populated category.
func (f Filter) Matches(t task.Task) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Scopes) > 0 && !containsString(f.Scopes, t.Scope) {
		return false
	}
	if len(f.Types) > 0 && !containsString(f.Types, t.Type) {
		return false
	}
	if !f.Created.IsZero() && !f.Created.Contains(t.CreatedAt) {
		return false
	}
	if !f.Updated.IsZero() && !f.Updated.Contains(t.UpdatedAt) {
		return false
	}
	if !f.Completed.IsZero() {
		if t.CompletedAt == nil || !f.Completed.Contains(*t.CompletedAt) {
			return false
		}
	}
	if f.Fuzzy != "" && !f.fuzzyMatches(t.Description) {
		return false
	}
	return true
}

// Apply returns the records matching the filter, preserving input order.
func Apply(tasks []task.Task, f Filter) []task.Task {
	var out []task.Task
	for _, t := range tasks {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

func (f Filter) fuzzyMatches(description string) bool {
	matches := fuzzy.Find(strings.ToLower(f.Fuzzy), []string{strings.ToLower(description)})
	if len(matches) == 0 {
		return false
	}
	return matches[0].Score >= f.FuzzyThreshold
}

func containsStatus(set []task.Status, s task.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(set []task.Priority, p task.Priority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
