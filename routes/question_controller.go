package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/ledger"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/sequence"
)

type questionRequest struct {
	Text         string         `json:"text"`
	Type         string         `json:"type"`
	OptionLabels []string       `json:"option_labels,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Active       *bool          `json:"active,omitempty"`
}

func CreateQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := questionRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if req.Text == "" {
			httpx.RenderError(w, r, "create_question", apperr.Validation("text is required"))
			return
		}
		if !model.ValidQuestionType(req.Type) {
			httpx.RenderError(w, r, "create_question", apperr.Validation("unknown question type %q", req.Type))
			return
		}
		if model.IsChoiceType(req.Type) && len(req.OptionLabels) == 0 {
			httpx.RenderError(w, r, "create_question", apperr.Validation("%s questions need at least one option", req.Type))
			return
		}
		if !model.IsChoiceType(req.Type) && len(req.OptionLabels) > 0 {
			httpx.RenderError(w, r, "create_question", apperr.Validation("%s questions cannot have options", req.Type))
			return
		}

		metadata, err := marshalMetadata(req.Metadata)
		if err != nil {
			httpx.RenderError(w, r, "create_question.metadata", err)
			return
		}

		// ids are consumed even if the insert below aborts
		questionId, err := app.Sequence.NextID(r.Context(), sequence.NamespaceQuestion)
		if err != nil {
			httpx.RenderError(w, r, "create_question.next_id", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO question (id, text, type, metadata, active)
			VALUES (?, ?, ?, ?, ?)`,
			questionId,
			req.Text,
			req.Type,
			metadata,
			true,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_question", err)
			return
		}

		question := model.Question{
			ID:       questionId,
			PublicID: sequence.PublicID("QST", questionId),
			Text:     req.Text,
			Type:     req.Type,
			Metadata: req.Metadata,
			Active:   true,
		}

		if model.IsChoiceType(req.Type) {
			question.Options, err = app.Registry.CreateOptions(r.Context(), tx, questionId, req.OptionLabels)
			if err != nil {
				httpx.RenderError(w, r, "create_question.options", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_question.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, question)
	}
}

func ListQuestions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := parsePage(r, app.MaxPageSize)

		query := `
			SELECT id FROM question`
		args := []any{}
		if active := r.URL.Query().Get("active"); active != "" {
			query += ` WHERE active = ?`
			args = append(args, active == "true")
		}
		query += `
			ORDER BY id
			LIMIT ? OFFSET ?`
		args = append(args, p.limit, p.offset)

		rows, err := app.QueryContext(r.Context(), query, args...)
		if err != nil {
			httpx.LogInternalError(w, "db.get_questions", err)
			return
		}
		defer rows.Close()

		ids := []int{}
		for rows.Next() {
			var id int
			if err = rows.Scan(&id); err != nil {
				httpx.LogInternalError(w, "db.get_questions.scan", err)
				return
			}
			ids = append(ids, id)
		}
		if err = rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.get_questions.rows", err)
			return
		}

		questions := []model.Question{}
		for _, id := range ids {
			question, err := fetchQuestion(r.Context(), app.DB, id)
			if err != nil {
				httpx.RenderError(w, r, "db.get_questions.fetch", err)
				return
			}
			questions = append(questions, question)
		}

		render.JSON(w, r, map[string]any{
			"questions": questions,
		})
	}
}

func GetQuestionById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		question, err := fetchQuestion(r.Context(), app.DB, questionId)
		if err != nil {
			httpx.RenderError(w, r, "get_question", err)
			return
		}

		render.JSON(w, r, question)
	}
}

// UpdateQuestion touches text, metadata and the active flag only.
// The type and the option keys are immutable; labels change through
// the rename endpoint so every edit leaves a ledger trace.
func UpdateQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		req := questionRequest{}
		err = render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if req.Text == "" {
			httpx.RenderError(w, r, "update_question", apperr.Validation("text is required"))
			return
		}
		if len(req.OptionLabels) > 0 {
			httpx.RenderError(w, r, "update_question", apperr.Validation("options cannot be replaced; rename labels individually"))
			return
		}

		metadata, err := marshalMetadata(req.Metadata)
		if err != nil {
			httpx.RenderError(w, r, "update_question.metadata", err)
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE question
			SET
				text = ?,
				metadata = ?,
				active = ?
			WHERE id = ?`,
			req.Text,
			metadata,
			active,
			questionId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_question", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_question.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_question", questionId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM question WHERE id = ?`,
			questionId,
		)
		if err != nil {
			// answered or form-linked questions are protected by FKs
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
				httpx.RenderError(w, r, "db.delete_question",
					apperr.Conflict("question %d is still referenced", questionId))
				return
			}
			httpx.LogInternalError(w, "db.delete_question", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_question.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_question", questionId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type renameOptionRequest struct {
	NewLabel string `json:"new_label"`
	Actor    string `json:"actor"`
	Reason   string `json:"reason,omitempty"`
}

func RenameOption(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		key := chi.URLParam(r, "key")

		req := renameOptionRequest{}
		err = render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if req.NewLabel == "" {
			httpx.RenderError(w, r, "rename_option", apperr.Validation("new_label is required"))
			return
		}
		if req.Actor == "" {
			httpx.RenderError(w, r, "rename_option", apperr.Validation("actor is required"))
			return
		}

		opt, err := app.Registry.RenameOption(r.Context(), questionId, key, req.NewLabel, req.Actor, req.Reason)
		if err != nil {
			httpx.RenderError(w, r, "rename_option", err)
			return
		}

		render.JSON(w, r, opt)
	}
}

func GetOptionHistory(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		key := chi.URLParam(r, "key")

		// the option must exist, its history may still be empty
		_, err = app.Registry.CurrentLabel(r.Context(), questionId, key)
		if err != nil {
			httpx.RenderError(w, r, "get_option_history", err)
			return
		}

		p := parsePage(r, app.MaxPageSize)
		changes, err := ledger.History(r.Context(), app.DB, questionId, key, p.limit, p.offset)
		if err != nil {
			httpx.RenderError(w, r, "get_option_history.ledger", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"history": changes,
		})
	}
}
