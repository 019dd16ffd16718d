package model

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Rank orders priorities low < medium < high. Unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	default:
		return 0
	}
}

type Todo struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IsCompleted bool       `json:"isCompleted"`
	Priority    Priority   `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	AssignedTo  []string   `json:"assignedTo"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate slices and the deadline
// without touching the original.
func (t Todo) Clone() Todo {
	c := t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.AssignedTo != nil {
		c.AssignedTo = append([]string{}, t.AssignedTo...)
	}
	if t.Tags != nil {
		c.Tags = append([]string{}, t.Tags...)
	}
	return c
}

// HasAssignee reports whether user is in AssignedTo.
func (t Todo) HasAssignee(user string) bool {
	for _, a := range t.AssignedTo {
		if a == user {
			return true
		}
	}
	return false
}
