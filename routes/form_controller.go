package routes

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/sequence"
)

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := model.Form{}
		err := render.DecodeJSON(r.Body, &form)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if form.Title == "" {
			httpx.RenderError(w, r, "create_form", apperr.Validation("title is required"))
			return
		}

		formId, err := app.Sequence.NextID(r.Context(), sequence.NamespaceForm)
		if err != nil {
			httpx.RenderError(w, r, "create_form.next_id", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// forms reference questions by id, never embed them
		for _, qid := range form.QuestionIDs {
			var exists bool
			err = tx.QueryRowContext(r.Context(),
				`SELECT 1 FROM question WHERE id = ?`, qid,
			).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				httpx.RenderError(w, r, "create_form.questions", apperr.NotFound("question", qid))
				return
			}
			if err != nil {
				httpx.LogInternalError(w, "db.create_form.questions", err)
				return
			}
		}

		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO form (id, version, title, description)
			VALUES (?, 1, ?, ?)`,
			formId,
			form.Title,
			form.Description,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO form_question (form_id, question_id, position)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.questions.prepare", err)
			return
		}
		defer stmt.Close()

		for i, qid := range form.QuestionIDs {
			_, err = stmt.ExecContext(r.Context(), formId, qid, i)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_form.questions.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":        formId,
			"public_id": sequence.PublicID("FRM", formId),
		})
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := parsePage(r, app.MaxPageSize)

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, version, title, description
			FROM form
			ORDER BY id
			LIMIT ? OFFSET ?`,
			p.limit,
			p.offset,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}
		defer rows.Close()

		forms := []model.Form{}
		for rows.Next() {
			f := model.Form{}
			err = rows.Scan(&f.ID, &f.Version, &f.Title, &f.Description)
			if err != nil {
				httpx.LogInternalError(w, "db.get_forms.scan", err)
				return
			}
			f.PublicID = sequence.PublicID("FRM", f.ID)

			forms = append(forms, f)
		}
		if err = rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.get_forms.rows", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

func GetFormById(app app.App) http.HandlerFunc {
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

		render.JSON(w, r, form)
	}
}

func UpdateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		form := model.Form{}
		err = render.DecodeJSON(r.Body, &form)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if form.Title == "" {
			httpx.RenderError(w, r, "update_form", apperr.Validation("title is required"))
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		for _, qid := range form.QuestionIDs {
			var exists bool
			err = tx.QueryRowContext(r.Context(),
				`SELECT 1 FROM question WHERE id = ?`, qid,
			).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				httpx.RenderError(w, r, "update_form.questions", apperr.NotFound("question", qid))
				return
			}
			if err != nil {
				httpx.LogInternalError(w, "db.update_form.questions", err)
				return
			}
		}

		// relink questions
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM form_question
			WHERE form_id = ?`,
			formId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.delete_questions", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO form_question (form_id, question_id, position)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.questions.prepare", err)
			return
		}
		defer stmt.Close()

		for i, qid := range form.QuestionIDs {
			_, err = stmt.ExecContext(r.Context(), formId, qid, i)
			if err != nil {
				httpx.LogInternalError(w, "db.update_form.questions.insert", err)
				return
			}
		}

		res, err := tx.ExecContext(r.Context(), `
			UPDATE form
			SET
				title = ?,
				description = ?,
				version = version+1
			WHERE	id = ?
				AND version = ?`,
			form.Title,
			form.Description,
			formId,
			form.Version,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_form", err)
			return
		}
		// optimistic lock
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.verify", err)
			return
		}
		if n < 1 {
			httpx.RenderError(w, r, "db.update_form.verify",
				apperr.Conflict("form %d was modified concurrently", formId))
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_form.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM form WHERE id = ?`,
			formId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_form", formId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
