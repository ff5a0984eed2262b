// Package sequence issues unique, monotonically increasing integer ids
// per entity namespace. Each call is a single atomic row mutation
// against the counter table; concurrent callers serialize on that row
// alone, so no in-process lock is needed and correctness is shared by
// any number of service instances.
package sequence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mbolis/quick-forms/apperr"
)

// Namespaces seeded at migration time. A NextID call against any
// other namespace is a configuration error.
const (
	NamespaceForm       = "form"
	NamespaceQuestion   = "question"
	NamespaceSubmission = "submission"
)

type Allocator struct {
	db *sql.DB
}

func NewAllocator(db *sql.DB) *Allocator {
	return &Allocator{db}
}

// NextID returns a value strictly greater than every value previously
// returned for entityType. It always runs in its own implicit
// transaction, never the caller's: a returned value is permanently
// consumed even if the caller's enclosing operation aborts. Gaps are
// fine, duplicates are not.
func (a *Allocator) NextID(ctx context.Context, entityType string) (int, error) {
	var id int
	err := a.db.QueryRowContext(ctx, `
		UPDATE counter
		SET current_value = current_value + 1
		WHERE entity_type = ?
		RETURNING current_value`,
		entityType,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// the namespace row must be seeded at initialization
		return 0, apperr.Fatal(err, fmt.Sprintf("counter namespace %q is not seeded", entityType))
	}
	if err != nil {
		return 0, apperr.Fatal(err, "sequence.next_id")
	}
	return id, nil
}

// PublicID renders the human-readable form of an allocated id.
// The allocator itself is prefix-agnostic.
func PublicID(prefix string, id int) string {
	return fmt.Sprintf("%s-%d", strings.ToUpper(prefix), id)
}
