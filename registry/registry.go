// Package registry owns the (key, label) pairs attached to a
// question. Keys are minted once from initial labels and are
// immutable for the life of the question; the label is the only
// mutable field, and every label mutation goes through the ledger.
package registry

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/events"
	"github.com/mbolis/quick-forms/ledger"
	"github.com/mbolis/quick-forms/model"
)

// Options is a question's loaded option list. Lookups are pure reads
// against the current labels: an old label stops resolving the moment
// it is renamed.
type Options []model.Option

// Resolve maps a current label to its key.
func (opts Options) Resolve(label string) (key string, ok bool) {
	for _, opt := range opts {
		if opt.Label == label {
			return opt.Key, true
		}
	}
	return "", false
}

// LabelFor maps a key to its current label.
func (opts Options) LabelFor(key string) (label string, ok bool) {
	for _, opt := range opts {
		if opt.Key == key {
			return opt.Label, true
		}
	}
	return "", false
}

type Registry struct {
	db  *sql.DB
	bus *events.Bus
}

func New(db *sql.DB, bus *events.Bus) *Registry {
	return &Registry{db, bus}
}

// CreateOptions mints keys for the given labels and inserts the
// option rows inside the caller's transaction. If a concurrent writer
// commits a colliding key first, the unique constraint fires at our
// commit and the whole batch fails with a Conflict.
func (r *Registry) CreateOptions(ctx context.Context, tx *sql.Tx, questionID int, labels []string) ([]model.Option, error) {
	keys, err := MintKeys(labels)
	if err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question_option (question_id, key, label, position)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, apperr.Fatal(err, "registry.create_options.prepare")
	}
	defer stmt.Close()

	opts := make([]model.Option, len(labels))
	for i, label := range labels {
		opts[i] = model.Option{Key: keys[i], Label: label}
		_, err = stmt.ExecContext(ctx, questionID, keys[i], label, i)
		if err != nil {
			return nil, classifyUnique(err, "registry.create_options", keys[i])
		}
	}
	return opts, nil
}

// LoadOptions returns the question's options in display order.
func (r *Registry) LoadOptions(ctx context.Context, questionID int) (Options, error) {
	return loadOptions(ctx, r.db, questionID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOptions(ctx context.Context, q querier, questionID int) (Options, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT key, label
		FROM question_option
		WHERE question_id = ?
		ORDER BY position`,
		questionID,
	)
	if err != nil {
		return nil, apperr.Fatal(err, "registry.load_options")
	}
	defer rows.Close()

	opts := Options{}
	for rows.Next() {
		opt := model.Option{}
		if err = rows.Scan(&opt.Key, &opt.Label); err != nil {
			return nil, apperr.Fatal(err, "registry.load_options.scan")
		}
		opts = append(opts, opt)
	}
	if err = rows.Err(); err != nil {
		return nil, apperr.Fatal(err, "registry.load_options.rows")
	}
	return opts, nil
}

// RenameOption updates the label of one option and appends the change
// to the ledger in the same transaction. The returned option carries
// the exact key that was passed in: a rename never touches the key,
// nor any stored submission referencing it.
func (r *Registry) RenameOption(ctx context.Context, questionID int, key, newLabel, actor, reason string) (opt model.Option, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return opt, apperr.Fatal(err, "registry.rename.begin_tx")
	}
	defer tx.Rollback()

	var oldLabel string
	err = tx.QueryRowContext(ctx, `
		SELECT label FROM question_option
		WHERE question_id = ?
			AND key = ?`,
		questionID,
		key,
	).Scan(&oldLabel)
	if errors.Is(err, sql.ErrNoRows) {
		return opt, apperr.NotFound("option", key)
	}
	if err != nil {
		return opt, apperr.Fatal(err, "registry.rename.lookup")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE question_option
		SET label = ?
		WHERE question_id = ?
			AND key = ?`,
		newLabel,
		questionID,
		key,
	)
	if err != nil {
		return opt, apperr.Fatal(err, "registry.rename.update")
	}

	err = ledger.Record(ctx, tx, model.LabelChange{
		QuestionID: questionID,
		OptionKey:  key,
		OldLabel:   oldLabel,
		NewLabel:   newLabel,
		ChangedAt:  time.Now().UTC(),
		ChangedBy:  actor,
		Reason:     reason,
	})
	if err != nil {
		return opt, err
	}

	if err = tx.Commit(); err != nil {
		return opt, apperr.Fatal(err, "registry.rename.commit")
	}

	if r.bus != nil {
		r.bus.Publish(events.TypeOptionRenamed, events.OptionRenamed{
			QuestionID: questionID,
			OptionKey:  key,
			OldLabel:   oldLabel,
			NewLabel:   newLabel,
			Actor:      actor,
		})
	}

	return model.Option{Key: key, Label: newLabel}, nil
}

// Resolve maps a current label to its key, straight from storage.
// When renames have converged two labels, the first key in display
// order wins, same as Options.Resolve.
func (r *Registry) Resolve(ctx context.Context, questionID int, label string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `
		SELECT key FROM question_option
		WHERE question_id = ?
			AND label = ?
		ORDER BY position
		LIMIT 1`,
		questionID,
		label,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("option label", label)
	}
	if err != nil {
		return "", apperr.Fatal(err, "registry.resolve")
	}
	return key, nil
}

// CurrentLabel maps a key to its latest label, straight from storage.
func (r *Registry) CurrentLabel(ctx context.Context, questionID int, key string) (string, error) {
	var label string
	err := r.db.QueryRowContext(ctx, `
		SELECT label FROM question_option
		WHERE question_id = ?
			AND key = ?`,
		questionID,
		key,
	).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFound("option", key)
	}
	if err != nil {
		return "", apperr.Fatal(err, "registry.current_label")
	}
	return label, nil
}

func classifyUnique(err error, op, key string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return apperr.Conflict("option key %q already exists on this question", key)
	}
	return apperr.Fatal(err, op)
}
