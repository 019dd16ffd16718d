// Package query turns filter criteria into an owner-scoped store query.
//
// The same Query renders to PostgreSQL and matches in memory, so the server
// store, the in-memory store and client-side filtering agree on semantics.
package query

import (
	"fmt"
	"strings"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

// Query is an owner-scoped filter. Build it with ForOwner.
type Query struct {
	ownerID string
	filter  model.Filter
}

// ForOwner scopes f to ownerID. The owner condition is always applied first;
// an empty ownerID yields a query that matches nothing.
func ForOwner(ownerID string, f model.Filter) Query {
	return Query{ownerID: ownerID, filter: f}
}

func (q Query) OwnerID() string      { return q.ownerID }
func (q Query) Filter() model.Filter { return q.filter }

// Match reports whether t satisfies the query.
func (q Query) Match(t model.Todo) bool {
	if q.ownerID == "" || t.OwnerID != q.ownerID {
		return false
	}
	return q.filter.Matches(t)
}

// SQL renders the query against the todos table. selectClause is everything
// up to and including FROM, e.g. "SELECT id, title FROM todos".
func (q Query) SQL(selectClause string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.ownerID == "" {
		conds = append(conds, "FALSE")
	} else {
		conds = append(conds, "owner_id = "+arg(q.ownerID))
	}

	f := q.filter
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		conds = append(conds, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", p, p))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = "+arg(string(f.Priority)))
	}
	if f.Completed != nil {
		conds = append(conds, "is_completed = "+arg(*f.Completed))
	}
	if f.Deadline != nil {
		conds = append(conds, "deadline IS NOT NULL AND deadline <= "+arg(*f.Deadline))
	}
	if f.AssignedTo != "" {
		conds = append(conds, arg(f.AssignedTo)+" = ANY(assigned_to)")
	}

	var b strings.Builder
	b.WriteString(selectClause)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(" ORDER BY created_at DESC, id")
	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
