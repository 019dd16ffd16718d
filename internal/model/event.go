package model

type ChangeType string

const (
	ChangeInserted ChangeType = "inserted"
	ChangeUpdated  ChangeType = "updated"
	ChangeDeleted  ChangeType = "deleted"
)

// ChangeEvent is one of Inserted(Todo), Updated(Todo) or Deleted(ID).
// OwnerID is always set so the feed can scope delivery.
type ChangeEvent struct {
	Type    ChangeType `json:"type"`
	Todo    *Todo      `json:"todo,omitempty"`
	ID      string     `json:"id"`
	OwnerID string     `json:"ownerId"`
}

func Inserted(t Todo) ChangeEvent {
	return ChangeEvent{Type: ChangeInserted, Todo: &t, ID: t.ID, OwnerID: t.OwnerID}
}

func Updated(t Todo) ChangeEvent {
	return ChangeEvent{Type: ChangeUpdated, Todo: &t, ID: t.ID, OwnerID: t.OwnerID}
}

func Deleted(id, ownerID string) ChangeEvent {
	return ChangeEvent{Type: ChangeDeleted, ID: id, OwnerID: ownerID}
}

// Valid reports whether the event is well-formed: a known type, and a todo
// payload for inserts and updates.
func (e ChangeEvent) Valid() bool {
	switch e.Type {
	case ChangeInserted, ChangeUpdated:
		return e.Todo != nil && e.Todo.ID != ""
	case ChangeDeleted:
		return e.ID != ""
	default:
		return false
	}
}
