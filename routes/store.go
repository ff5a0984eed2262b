package routes

import (
	"context"
	"database/sql"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/sequence"
)

// query helpers shared by the admin and public controllers

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func fetchQuestion(ctx context.Context, q querier, id int) (model.Question, error) {
	question := model.Question{ID: id}

	var metadata string
	err := q.QueryRowContext(ctx, `
		SELECT text, type, metadata, active
		FROM question
		WHERE id = ?`,
		id,
	).Scan(&question.Text, &question.Type, &metadata, &question.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return question, apperr.NotFound("question", id)
	}
	if err != nil {
		return question, apperr.Fatal(err, "db.get_question")
	}

	if metadata != "" {
		err = json.Unmarshal([]byte(metadata), &question.Metadata)
		if err != nil {
			return question, apperr.Fatal(err, "db.get_question.parse_metadata")
		}
	}
	question.PublicID = sequence.PublicID("QST", id)

	question.Options, err = fetchOptions(ctx, q, id)
	return question, err
}

func fetchOptions(ctx context.Context, q querier, questionID int) ([]model.Option, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT key, label
		FROM question_option
		WHERE question_id = ?
		ORDER BY position`,
		questionID,
	)
	if err != nil {
		return nil, apperr.Fatal(err, "db.get_options")
	}
	defer rows.Close()

	var opts []model.Option
	for rows.Next() {
		opt := model.Option{}
		if err = rows.Scan(&opt.Key, &opt.Label); err != nil {
			return nil, apperr.Fatal(err, "db.get_options.scan")
		}
		opts = append(opts, opt)
	}
	if err = rows.Err(); err != nil {
		return nil, apperr.Fatal(err, "db.get_options.rows")
	}
	return opts, nil
}

func fetchForm(ctx context.Context, q querier, id int) (model.Form, error) {
	form := model.Form{ID: id}

	err := q.QueryRowContext(ctx, `
		SELECT version, title, description
		FROM form
		WHERE id = ?`,
		id,
	).Scan(&form.Version, &form.Title, &form.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return form, apperr.NotFound("form", id)
	}
	if err != nil {
		return form, apperr.Fatal(err, "db.get_form")
	}
	form.PublicID = sequence.PublicID("FRM", id)

	rows, err := q.QueryContext(ctx, `
		SELECT question_id
		FROM form_question
		WHERE form_id = ?
		ORDER BY position`,
		id,
	)
	if err != nil {
		return form, apperr.Fatal(err, "db.get_form.questions")
	}
	defer rows.Close()

	for rows.Next() {
		var qid int
		if err = rows.Scan(&qid); err != nil {
			return form, apperr.Fatal(err, "db.get_form.questions.scan")
		}
		form.QuestionIDs = append(form.QuestionIDs, qid)
	}
	if err = rows.Err(); err != nil {
		return form, apperr.Fatal(err, "db.get_form.questions.rows")
	}
	return form, nil
}

func fetchFormQuestions(ctx context.Context, q querier, formID int) ([]model.Question, error) {
	form, err := fetchForm(ctx, q, formID)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(form.QuestionIDs))
	for _, qid := range form.QuestionIDs {
		question, err := fetchQuestion(ctx, q, qid)
		if err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", apperr.Fatal(err, "db.marshal_metadata")
	}
	return string(b), nil
}
