// Package testutil bootstraps a fresh migrated database and a wired
// application for tests, plus request helpers for exercising the
// HTTP surface.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/codec"
	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/registry"
	"github.com/mbolis/quick-forms/sequence"
)

func Config() config.Config {
	return config.Config{
		Addr:        "localhost:0",
		MaxPageSize: 100,
	}
}

// OpenDB creates a migrated sqlite database in a per-test temp dir.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "qforms_test.sqlite")
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	require.NoError(t, err, "open test database")

	// sqlite allows one writer at a time; a single pooled connection
	// keeps concurrent test writers queued instead of hitting BUSY
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err, "enable foreign keys")

	require.NoError(t, database.MigrateDB(db), "run migrations")

	t.Cleanup(func() { db.Close() })
	return db
}

// NewApp wires a full application over a fresh test database.
func NewApp(t *testing.T) app.App {
	t.Helper()

	a := app.New(OpenDB(t), Config())
	t.Cleanup(a.Bus.Close)
	return a
}

// SeedQuestion inserts a question the way the create handler does,
// minting its id and option keys.
func SeedQuestion(t *testing.T, a app.App, text, qtype string, labels ...string) model.Question {
	t.Helper()
	ctx := context.Background()

	id, err := a.Sequence.NextID(ctx, sequence.NamespaceQuestion)
	require.NoError(t, err)

	tx, err := a.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO question (id, text, type, metadata, active)
		VALUES (?, ?, ?, '', 1)`,
		id, text, qtype,
	)
	require.NoError(t, err)

	question := model.Question{ID: id, Text: text, Type: qtype, Active: true}
	if len(labels) > 0 {
		question.Options, err = a.Registry.CreateOptions(ctx, tx, id, labels)
		require.NoError(t, err)
	}

	require.NoError(t, tx.Commit())
	return question
}

// SeedForm inserts a form linking the given questions in order.
func SeedForm(t *testing.T, a app.App, title string, questionIDs ...int) int {
	t.Helper()
	ctx := context.Background()

	id, err := a.Sequence.NextID(ctx, sequence.NamespaceForm)
	require.NoError(t, err)

	tx, err := a.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO form (id, version, title, description)
		VALUES (?, 1, ?, '')`,
		id, title,
	)
	require.NoError(t, err)

	for i, qid := range questionIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO form_question (form_id, question_id, position)
			VALUES (?, ?, ?)`,
			id, qid, i,
		)
		require.NoError(t, err)
	}

	require.NoError(t, tx.Commit())
	return id
}

// SeedSubmission encodes label-based answers and persists the
// submission, returning its id.
func SeedSubmission(t *testing.T, a app.App, formID int, answers map[int]any) int {
	t.Helper()
	ctx := context.Background()

	id, err := a.Sequence.NextID(ctx, sequence.NamespaceSubmission)
	require.NoError(t, err)

	// load options through the pooled DB before opening the tx: with
	// SetMaxOpenConns(1) the tx holds the pool's only connection, so a
	// pooled query inside it would deadlock
	options := make(map[int]registry.Options, len(answers))
	for qid := range answers {
		opts, err := a.Registry.LoadOptions(ctx, qid)
		require.NoError(t, err)
		options[qid] = opts
	}

	tx, err := a.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submission (id, form_id, time, metadata)
		VALUES (?, ?, ?, '')`,
		id, formID, time.Now().UTC(),
	)
	require.NoError(t, err)

	for qid, raw := range answers {
		var qtype string
		err = tx.QueryRowContext(ctx, `SELECT type FROM question WHERE id = ?`, qid).Scan(&qtype)
		require.NoError(t, err)

		value, err := codec.Encode(model.Question{ID: qid, Type: qtype}, options[qid], raw)
		require.NoError(t, err)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO submission_answer (submission_id, question_id, value)
			VALUES (?, ?, ?)`,
			id, qid, string(value),
		)
		require.NoError(t, err)
	}

	require.NoError(t, tx.Commit())
	return id
}

// StoredAnswer returns the raw key-encoded value persisted for one
// (submission, question) pair.
func StoredAnswer(t *testing.T, a app.App, submissionID, questionID int) string {
	t.Helper()

	var value string
	err := a.QueryRowContext(context.Background(), `
		SELECT value FROM submission_answer
		WHERE submission_id = ?
			AND question_id = ?`,
		submissionID, questionID,
	).Scan(&value)
	require.NoError(t, err)
	return value
}

// DoJSON performs a request against the handler with an optional JSON body.
func DoJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON parses the recorded response body.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "response body: %s", rec.Body.String())
}

// Options loads a question's current options.
func Options(t *testing.T, a app.App, questionID int) registry.Options {
	t.Helper()

	opts, err := a.Registry.LoadOptions(context.Background(), questionID)
	require.NoError(t, err)
	return opts
}
