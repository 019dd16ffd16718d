package model

import (
	"strings"
	"time"
)

// Filter holds the optional list criteria. Zero values mean "no constraint":
// an empty Search, Priority or AssignedTo and nil Completed or Deadline.
type Filter struct {
	Search     string
	Priority   Priority
	Completed  *bool
	Deadline   *time.Time // inclusive upper bound
	AssignedTo string
}

func (f Filter) IsEmpty() bool {
	return f.Search == "" && f.Priority == "" && f.Completed == nil &&
		f.Deadline == nil && f.AssignedTo == ""
}

// Matches applies the criteria to a single todo. It does not look at the
// owner; owner scoping belongs to query.Query.
func (f Filter) Matches(t Todo) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Completed != nil && t.IsCompleted != *f.Completed {
		return false
	}
	if f.Deadline != nil {
		if t.Deadline == nil || t.Deadline.After(*f.Deadline) {
			return false
		}
	}
	if f.AssignedTo != "" && !t.HasAssignee(f.AssignedTo) {
		return false
	}
	return true
}
