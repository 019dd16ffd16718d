package service

import (
	"errors"

	"github.com/jaekwang-park/todo-sync/internal/query"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrInvalidFilter    = query.ErrInvalidFilter
	ErrStoreUnavailable = errors.New("store unavailable")
)
