package reconcile

import (
	"cmp"
	"strings"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

type SortKey string

const (
	SortCreatedAt SortKey = "createdAt"
	SortTitle     SortKey = "title"
	SortPriority  SortKey = "priority"
	SortDeadline  SortKey = "deadline"
)

func (k SortKey) IsValid() bool {
	switch k {
	case SortCreatedAt, SortTitle, SortPriority, SortDeadline:
		return true
	}
	return false
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type SortConfig struct {
	Key       SortKey
	Direction Direction
}

// DefaultSort shows the newest todos first.
func DefaultSort() SortConfig {
	return SortConfig{Key: SortCreatedAt, Direction: Desc}
}

// Toggle flips the direction when key is already the sort key, otherwise
// sorts ascending by key.
func (s SortConfig) Toggle(key SortKey) SortConfig {
	if s.Key == key {
		if s.Direction == Asc {
			return SortConfig{Key: key, Direction: Desc}
		}
		return SortConfig{Key: key, Direction: Asc}
	}
	return SortConfig{Key: key, Direction: Asc}
}

func (s SortConfig) compare(a, b model.Todo) int {
	var c int
	switch s.Key {
	case SortTitle:
		c = cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortPriority:
		c = cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
	case SortDeadline:
		c = compareDeadline(a, b)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if s.Direction == Desc {
		return -c
	}
	return c
}

// compareDeadline orders todos without a deadline before any dated one.
func compareDeadline(a, b model.Todo) int {
	switch {
	case a.Deadline == nil && b.Deadline == nil:
		return 0
	case a.Deadline == nil:
		return -1
	case b.Deadline == nil:
		return 1
	}
	return a.Deadline.Compare(*b.Deadline)
}
