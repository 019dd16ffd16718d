package query

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

var ErrInvalidFilter = errors.New("invalid filter")

const (
	ParamSearch     = "search"
	ParamPriority   = "priority"
	ParamCompleted  = "completed"
	ParamDeadline   = "deadline"
	ParamAssignedTo = "assignedTo"
)

const dateOnly = "2006-01-02"

// ParseFilter reads filter criteria from URL query values. Empty values mean
// no constraint. A date-only deadline covers the whole UTC day.
func ParseFilter(v url.Values) (model.Filter, error) {
	var f model.Filter

	f.Search = strings.TrimSpace(v.Get(ParamSearch))
	f.AssignedTo = strings.TrimSpace(v.Get(ParamAssignedTo))

	if p := strings.TrimSpace(v.Get(ParamPriority)); p != "" {
		pr := model.Priority(strings.ToLower(p))
		if !pr.IsValid() {
			return model.Filter{}, fmt.Errorf("%w: priority must be one of low, medium, high", ErrInvalidFilter)
		}
		f.Priority = pr
	}

	if c := strings.TrimSpace(v.Get(ParamCompleted)); c != "" {
		var b bool
		switch strings.ToLower(c) {
		case "true":
			b = true
		case "false":
			b = false
		default:
			return model.Filter{}, fmt.Errorf("%w: completed must be true or false", ErrInvalidFilter)
		}
		f.Completed = &b
	}

	if d := strings.TrimSpace(v.Get(ParamDeadline)); d != "" {
		t, err := parseDeadline(d)
		if err != nil {
			return model.Filter{}, err
		}
		f.Deadline = &t
	}

	return f, nil
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t.Add(24*time.Hour - time.Nanosecond), nil
	}
	return time.Time{}, fmt.Errorf("%w: deadline must be RFC3339 or YYYY-MM-DD", ErrInvalidFilter)
}

// Encode is the inverse of ParseFilter. Unset criteria are omitted so the
// result is stable for bookmarking.
func Encode(f model.Filter) url.Values {
	v := url.Values{}
	if f.Search != "" {
		v.Set(ParamSearch, f.Search)
	}
	if f.Priority != "" {
		v.Set(ParamPriority, string(f.Priority))
	}
	if f.Completed != nil {
		if *f.Completed {
			v.Set(ParamCompleted, "true")
		} else {
			v.Set(ParamCompleted, "false")
		}
	}
	if f.Deadline != nil {
		v.Set(ParamDeadline, f.Deadline.UTC().Format(time.RFC3339Nano))
	}
	if f.AssignedTo != "" {
		v.Set(ParamAssignedTo, f.AssignedTo)
	}
	return v
}
