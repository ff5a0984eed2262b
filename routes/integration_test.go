package routes_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/events"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/routes"
	"github.com/mbolis/quick-forms/testutil"
)

func newServer(t *testing.T) (app.App, http.Handler) {
	t.Helper()
	a := testutil.NewApp(t)
	return a, routes.Wire(a)
}

func TestCreateQuestionMintsOptionKeys(t *testing.T) {
	_, h := newServer(t)

	rec := testutil.DoJSON(t, h, "POST", "/api/admin/questions", map[string]any{
		"text":          "How severe is it?",
		"type":          "select",
		"option_labels": []string{"High", "Low", "High"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var q model.Question
	testutil.DecodeJSON(t, rec, &q)
	assert.Equal(t, "QST-1", q.PublicID)
	assert.Equal(t, []model.Option{
		{Key: "high", Label: "High"},
		{Key: "low", Label: "Low"},
		{Key: "high__1", Label: "High"},
	}, q.Options)
}

func TestCreateQuestionValidation(t *testing.T) {
	_, h := newServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing text", map[string]any{"type": "text"}},
		{"unknown type", map[string]any{"text": "?", "type": "essay"}},
		{"choice without options", map[string]any{"text": "?", "type": "select"}},
		{"options on non-choice", map[string]any{"text": "?", "type": "text", "option_labels": []string{"A"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.DoJSON(t, h, "POST", "/api/admin/questions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// The full rename lifecycle: historical submissions keep their stored
// keys while every read-side surface follows the current label.
func TestRenameLifecycle(t *testing.T) {
	a, h := newServer(t)

	q := testutil.SeedQuestion(t, a, "How severe is it?", model.TypeSelect, "High", "Low")
	formId := testutil.SeedForm(t, a, "Incident report", q.ID)

	submit := func(label string) int {
		rec := testutil.DoJSON(t, h, "POST", fmt.Sprintf("/api/forms/%d/submissions", formId), map[string]any{
			"answers": map[string]any{fmt.Sprint(q.ID): label},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp struct {
			ID int `json:"id"`
		}
		testutil.DecodeJSON(t, rec, &resp)
		return resp.ID
	}

	first := submit("High")
	submit("High")
	submit("Low")

	rec := testutil.DoJSON(t, h, "POST",
		fmt.Sprintf("/api/admin/questions/%d/options/high/rename", q.ID),
		map[string]any{"new_label": "Critical", "actor": "alice", "reason": "clearer wording"},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var opt model.Option
	testutil.DecodeJSON(t, rec, &opt)
	assert.Equal(t, "high", opt.Key)
	assert.Equal(t, "Critical", opt.Label)

	submit("Critical")

	// statistics merge all history of the key under the current label
	rec = testutil.DoJSON(t, h, "GET",
		fmt.Sprintf("/api/forms/%d/questions/%d/statistics", formId, q.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stat struct {
		TotalAnswers int            `json:"total_answers"`
		Distribution map[string]int `json:"distribution"`
	}
	testutil.DecodeJSON(t, rec, &stat)
	assert.Equal(t, 4, stat.TotalAnswers)
	assert.Equal(t, map[string]int{"Critical": 3, "Low": 1}, stat.Distribution)

	// the earliest submission now reads back with the new label...
	rec = testutil.DoJSON(t, h, "GET", fmt.Sprintf("/api/submissions/%d", first), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sub struct {
		Answers map[string]any `json:"answers"`
	}
	testutil.DecodeJSON(t, rec, &sub)
	assert.Equal(t, "Critical", sub.Answers[fmt.Sprint(q.ID)])

	// ...while its stored value still carries the original key
	assert.JSONEq(t, `"high"`, testutil.StoredAnswer(t, a, first, q.ID))

	// and the rename left exactly one ledger entry
	rec = testutil.DoJSON(t, h, "GET",
		fmt.Sprintf("/api/admin/questions/%d/options/high/history", q.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var hist struct {
		History []model.LabelChange `json:"history"`
	}
	testutil.DecodeJSON(t, rec, &hist)
	require.Len(t, hist.History, 1)
	assert.Equal(t, "High", hist.History[0].OldLabel)
	assert.Equal(t, "Critical", hist.History[0].NewLabel)
	assert.Equal(t, "alice", hist.History[0].ChangedBy)
}

func TestSubmitPublishesCreatedEvent(t *testing.T) {
	a, h := newServer(t)

	q := testutil.SeedQuestion(t, a, "How severe is it?", model.TypeSelect, "High")
	formId := testutil.SeedForm(t, a, "Incident report", q.ID)

	received := make(chan events.Event, 1)
	a.Bus.Subscribe(func(evt events.Event) {
		if evt.Type == events.TypeSubmissionCreated {
			received <- evt
		}
	})

	rec := testutil.DoJSON(t, h, "POST", fmt.Sprintf("/api/forms/%d/submissions", formId), map[string]any{
		"answers": map[string]any{fmt.Sprint(q.ID): "High"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID int `json:"id"`
	}
	testutil.DecodeJSON(t, rec, &resp)

	evt := <-received
	payload, ok := evt.Payload.(events.SubmissionCreated)
	require.True(t, ok)
	assert.Equal(t, resp.ID, payload.SubmissionID)
	assert.Equal(t, formId, payload.FormID)
}

func TestSubmitUnknownLabelPersistsNothing(t *testing.T) {
	a, h := newServer(t)

	q := testutil.SeedQuestion(t, a, "How severe is it?", model.TypeSelect, "High", "Low")
	text := testutil.SeedQuestion(t, a, "Anything to add?", model.TypeText)
	formId := testutil.SeedForm(t, a, "Incident report", q.ID, text.ID)

	rec := testutil.DoJSON(t, h, "POST", fmt.Sprintf("/api/forms/%d/submissions", formId), map[string]any{
		"answers": map[string]any{
			fmt.Sprint(text.ID): "valid text answer",
			fmt.Sprint(q.ID):    "Medium", // not a current label
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Medium")

	var count int
	err := a.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM submission WHERE form_id = ?`, formId,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "no partial write may survive an encode failure")
}

func TestSubmitToUnknownForm(t *testing.T) {
	_, h := newServer(t)

	rec := testutil.DoJSON(t, h, "POST", "/api/forms/999/submissions", map[string]any{
		"answers": map[string]any{"1": "A"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitToQuestionOutsideForm(t *testing.T) {
	a, h := newServer(t)

	q := testutil.SeedQuestion(t, a, "How severe is it?", model.TypeSelect, "High")
	other := testutil.SeedQuestion(t, a, "Unrelated?", model.TypeText)
	formId := testutil.SeedForm(t, a, "Incident report", q.ID)

	rec := testutil.DoJSON(t, h, "POST", fmt.Sprintf("/api/forms/%d/submissions", formId), map[string]any{
		"answers": map[string]any{fmt.Sprint(other.ID): "hello"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFormVersionConflict(t *testing.T) {
	a, h := newServer(t)
	formId := testutil.SeedForm(t, a, "Incident report")

	update := map[string]any{"title": "Renamed", "version": 1}
	rec := testutil.DoJSON(t, h, "PUT", fmt.Sprintf("/api/admin/forms/%d", formId), update)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// same stale version again
	rec = testutil.DoJSON(t, h, "PUT", fmt.Sprintf("/api/admin/forms/%d", formId), update)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteAnsweredQuestionConflicts(t *testing.T) {
	a, h := newServer(t)

	q := testutil.SeedQuestion(t, a, "How severe is it?", model.TypeSelect, "High")
	formId := testutil.SeedForm(t, a, "Incident report", q.ID)
	testutil.SeedSubmission(t, a, formId, map[int]any{q.ID: "High"})

	rec := testutil.DoJSON(t, h, "DELETE", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQuestionCRUD(t *testing.T) {
	a, h := newServer(t)

	q := testutil.SeedQuestion(t, a, "Your email?", model.TypeEmail)

	rec := testutil.DoJSON(t, h, "GET", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Question
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, "Your email?", got.Text)
	assert.True(t, got.Active)

	active := false
	rec = testutil.DoJSON(t, h, "PUT", fmt.Sprintf("/api/admin/questions/%d", q.ID), map[string]any{
		"text":   "Your work email?",
		"active": &active,
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = testutil.DoJSON(t, h, "GET", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, "Your work email?", got.Text)
	assert.False(t, got.Active)

	rec = testutil.DoJSON(t, h, "DELETE", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = testutil.DoJSON(t, h, "GET", fmt.Sprintf("/api/admin/questions/%d", q.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListQuestionsPaging(t *testing.T) {
	a, h := newServer(t)

	for i := 0; i < 5; i++ {
		testutil.SeedQuestion(t, a, fmt.Sprintf("Q%d", i), model.TypeText)
	}

	rec := testutil.DoJSON(t, h, "GET", "/api/admin/questions?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Questions []model.Question `json:"questions"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	require.Len(t, resp.Questions, 2)
	assert.Equal(t, "Q2", resp.Questions[0].Text)
	assert.Equal(t, "Q3", resp.Questions[1].Text)
}

func TestPublicFormHidesInactiveQuestions(t *testing.T) {
	a, h := newServer(t)

	q1 := testutil.SeedQuestion(t, a, "Visible?", model.TypeText)
	q2 := testutil.SeedQuestion(t, a, "Hidden?", model.TypeText)
	formId := testutil.SeedForm(t, a, "Survey", q1.ID, q2.ID)

	_, err := a.ExecContext(context.Background(),
		`UPDATE question SET active = 0 WHERE id = ?`, q2.ID)
	require.NoError(t, err)

	rec := testutil.DoJSON(t, h, "GET", fmt.Sprintf("/api/forms/%d", formId), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var form model.Form
	testutil.DecodeJSON(t, rec, &form)
	require.Len(t, form.Questions, 1)
	assert.Equal(t, "Visible?", form.Questions[0].Text)
}

func TestListFormSubmissionsDecoded(t *testing.T) {
	a, h := newServer(t)

	q := testutil.SeedQuestion(t, a, "Platforms?", model.TypeMultiselect, "Linux", "macOS")
	formId := testutil.SeedForm(t, a, "Platform survey", q.ID)
	testutil.SeedSubmission(t, a, formId, map[int]any{q.ID: []any{"Linux", "macOS"}})

	rec := testutil.DoJSON(t, h, "GET", fmt.Sprintf("/api/admin/forms/%d/submissions", formId), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Submissions []struct {
			Answers map[string]any `json:"answers"`
		} `json:"submissions"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	require.Len(t, resp.Submissions, 1)
	assert.Equal(t, []any{"Linux", "macOS"}, resp.Submissions[0].Answers[fmt.Sprint(q.ID)])
}
