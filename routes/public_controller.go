package routes

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/codec"
	"github.com/mbolis/quick-forms/events"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/registry"
	"github.com/mbolis/quick-forms/sequence"
	"github.com/mbolis/quick-forms/stats"
)

func PublicGetFormById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		form, err := fetchForm(r.Context(), app.DB, formId)
		if err != nil {
			httpx.RenderError(w, r, "get_form", err)
			return
		}

		questions, err := fetchFormQuestions(r.Context(), app.DB, formId)
		if err != nil {
			httpx.RenderError(w, r, "get_form.questions", err)
			return
		}

		// public render only shows answerable questions
		form.Questions = make([]model.Question, 0, len(questions))
		for _, q := range questions {
			if q.Active {
				form.Questions = append(form.Questions, q)
			}
		}
		form.QuestionIDs = nil

		render.JSON(w, r, form)
	}
}

type submitRequest struct {
	Answers  map[string]any `json:"answers"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SubmitForm encodes a label-based submission payload into key-based
// rows inside one transaction. Any unresolvable label or invalid value
// aborts the whole submission: nothing partial is ever persisted.
func SubmitForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		req := submitRequest{}
		err = render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if len(req.Answers) == 0 {
			httpx.RenderError(w, r, "submit_form", apperr.Validation("answers are required"))
			return
		}

		metadata, err := marshalMetadata(req.Metadata)
		if err != nil {
			httpx.RenderError(w, r, "submit_form.metadata", err)
			return
		}

		submissionId, err := app.Sequence.NextID(r.Context(), sequence.NamespaceSubmission)
		if err != nil {
			httpx.RenderError(w, r, "submit_form.next_id", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		questions, err := fetchFormQuestions(r.Context(), tx, formId)
		if err != nil {
			httpx.RenderError(w, r, "submit_form.form", err)
			return
		}
		byId := map[int]model.Question{}
		for _, q := range questions {
			byId[q.ID] = q
		}

		type encodedAnswer struct {
			questionId int
			value      []byte
		}
		encoded := make([]encodedAnswer, 0, len(req.Answers))
		for qidStr, raw := range req.Answers {
			qid, err := strconv.Atoi(qidStr)
			if err != nil {
				httpx.RenderError(w, r, "submit_form.answers", apperr.Validation("invalid question id %q", qidStr))
				return
			}
			q, ok := byId[qid]
			if !ok {
				httpx.RenderError(w, r, "submit_form.answers", apperr.NotFound("question in form", qid))
				return
			}
			if !q.Active {
				httpx.RenderError(w, r, "submit_form.answers", apperr.Validation("question %d is not active", qid))
				return
			}

			value, err := codec.Encode(q, registry.Options(q.Options), raw)
			if err != nil {
				httpx.RenderError(w, r, "submit_form.encode", err)
				return
			}
			encoded = append(encoded, encodedAnswer{qid, value})
		}

		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO submission (id, form_id, time, metadata)
			VALUES (?, ?, ?, ?)`,
			submissionId,
			formId,
			time.Now().UTC(),
			metadata,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO submission_answer (submission_id, question_id, value)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission.answers.prepare", err)
			return
		}
		defer stmt.Close()

		for _, a := range encoded {
			_, err = stmt.ExecContext(r.Context(), submissionId, a.questionId, string(a.value))
			if err != nil {
				httpx.LogInternalError(w, "db.insert_submission.answers.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission.commit", err)
			return
		}

		app.Bus.Publish(events.TypeSubmissionCreated, events.SubmissionCreated{
			SubmissionID: submissionId,
			FormID:       formId,
		})

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":        submissionId,
			"public_id": sequence.PublicID("SUB", submissionId),
		})
	}
}

func GetSubmissionById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		submission, err := fetchSubmission(r.Context(), app, submissionId)
		if err != nil {
			httpx.RenderError(w, r, "get_submission", err)
			return
		}

		render.JSON(w, r, submission)
	}
}

func GetFormSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		if _, err = fetchForm(r.Context(), app.DB, formId); err != nil {
			httpx.RenderError(w, r, "get_submissions.form", err)
			return
		}

		p := parsePage(r, app.MaxPageSize)
		rows, err := app.QueryContext(r.Context(), `
			SELECT id
			FROM submission
			WHERE form_id = ?
			ORDER BY id
			LIMIT ? OFFSET ?`,
			formId,
			p.limit,
			p.offset,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}
		defer rows.Close()

		ids := []int{}
		for rows.Next() {
			var id int
			if err = rows.Scan(&id); err != nil {
				httpx.LogInternalError(w, "db.get_submissions.scan", err)
				return
			}
			ids = append(ids, id)
		}
		if err = rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.get_submissions.rows", err)
			return
		}

		submissions := []model.Submission{}
		for _, id := range ids {
			submission, err := fetchSubmission(r.Context(), app, id)
			if err != nil {
				httpx.RenderError(w, r, "db.get_submissions.fetch", err)
				return
			}
			submissions = append(submissions, submission)
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}

// fetchSubmission returns the decoded, label-based view of a stored
// submission. Stored keys are projected through the current labels at
// read time; the stored rows themselves are never rewritten.
func fetchSubmission(ctx context.Context, app app.App, id int) (model.Submission, error) {
	submission := model.Submission{
		ID:       id,
		PublicID: sequence.PublicID("SUB", id),
		Answers:  map[int]any{},
	}

	var metadata string
	err := app.QueryRowContext(ctx, `
		SELECT form_id, time, metadata
		FROM submission
		WHERE id = ?`,
		id,
	).Scan(&submission.FormID, &submission.Time, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return submission, apperr.NotFound("submission", id)
	}
	if err != nil {
		return submission, apperr.Fatal(err, "db.get_submission")
	}

	if metadata != "" {
		err = json.Unmarshal([]byte(metadata), &submission.Metadata)
		if err != nil {
			return submission, apperr.Fatal(err, "db.get_submission.parse_metadata")
		}
	}

	rows, err := app.QueryContext(ctx, `
		SELECT question_id, value
		FROM submission_answer
		WHERE submission_id = ?
		ORDER BY question_id`,
		id,
	)
	if err != nil {
		return submission, apperr.Fatal(err, "db.get_submission.answers")
	}
	defer rows.Close()

	type storedAnswer struct {
		questionId int
		value      []byte
	}
	var stored []storedAnswer
	for rows.Next() {
		a := storedAnswer{}
		if err = rows.Scan(&a.questionId, &a.value); err != nil {
			return submission, apperr.Fatal(err, "db.get_submission.answers.scan")
		}
		stored = append(stored, a)
	}
	if err = rows.Err(); err != nil {
		return submission, apperr.Fatal(err, "db.get_submission.answers.rows")
	}

	for _, a := range stored {
		question, err := fetchQuestion(ctx, app.DB, a.questionId)
		if err != nil {
			return submission, err
		}

		value, err := codec.Decode(question, registry.Options(question.Options), a.value)
		if err != nil {
			return submission, err
		}
		submission.Answers[a.questionId] = value
	}

	return submission, nil
}

func GetStatistics(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		questionId, err := strconv.Atoi(chi.URLParam(r, "qid"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.qid")
			return
		}

		stat, err := stats.Aggregate(r.Context(), app.DB, app.Registry, formId, questionId)
		if err != nil {
			httpx.RenderError(w, r, "get_statistics", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"form_id":       stat.FormID,
			"question_id":   stat.QuestionID,
			"total_answers": stat.TotalAnswers,
			"distribution":  stat.Distribution,
			"buckets":       stat.Buckets(),
		})
	}
}
