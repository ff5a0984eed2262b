// Package ledger is the append-only record of label changes. It
// exposes no update or delete operation: rows can only be added (by
// the registry, inside its rename transaction) and read back in
// order, so the audit trail cannot be tampered with through this API.
package ledger

import (
	"context"
	"database/sql"

	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/model"
)

// Record appends one change row inside the caller's transaction so
// the registry's label update and its ledger entry commit or roll
// back together.
func Record(ctx context.Context, tx *sql.Tx, rec model.LabelChange) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO option_label_change
			(question_id, option_key, old_label, new_label, changed_at, changed_by, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.QuestionID,
		rec.OptionKey,
		rec.OldLabel,
		rec.NewLabel,
		rec.ChangedAt,
		rec.ChangedBy,
		rec.Reason,
	)
	if err != nil {
		return apperr.Fatal(err, "ledger.record")
	}
	return nil
}

// History returns the label changes for one (question, key) pair,
// oldest to newest. limit <= 0 means no limit.
func History(ctx context.Context, db *sql.DB, questionID int, key string, limit, offset int) ([]model.LabelChange, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, question_id, option_key, old_label, new_label, changed_at, changed_by, reason
		FROM option_label_change
		WHERE question_id = ?
			AND option_key = ?
		ORDER BY changed_at, id
		LIMIT ? OFFSET ?`,
		questionID,
		key,
		limit,
		offset,
	)
	if err != nil {
		return nil, apperr.Fatal(err, "ledger.history")
	}
	defer rows.Close()

	changes := []model.LabelChange{}
	for rows.Next() {
		c := model.LabelChange{}
		err = rows.Scan(
			&c.ID, &c.QuestionID, &c.OptionKey,
			&c.OldLabel, &c.NewLabel,
			&c.ChangedAt, &c.ChangedBy, &c.Reason,
		)
		if err != nil {
			return nil, apperr.Fatal(err, "ledger.history.scan")
		}
		changes = append(changes, c)
	}
	if err = rows.Err(); err != nil {
		return nil, apperr.Fatal(err, "ledger.history.rows")
	}
	return changes, nil
}
