// Package stats computes answer-frequency distributions. Tallying is
// done over raw stored keys; current labels are applied only at the
// projection step, so counts recorded under any number of historical
// labels of one key always land in a single bucket, and two distinct
// keys whose labels have converged onto the same text add up instead
// of overwriting each other.
package stats

import (
	"context"
	"database/sql"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/registry"
)

type Statistics struct {
	FormID       int            `json:"form_id"`
	QuestionID   int            `json:"question_id"`
	TotalAnswers int            `json:"total_answers"`
	Distribution map[string]int `json:"distribution"`
}

// Aggregate scans every stored answer for the question within the
// form and reports frequencies against current labels. It is a pure
// function of the submission set and the registry state: re-running
// it with no intervening writes yields identical output.
func Aggregate(ctx context.Context, db *sql.DB, reg *registry.Registry, formID, questionID int) (Statistics, error) {
	stat := Statistics{
		FormID:       formID,
		QuestionID:   questionID,
		Distribution: map[string]int{},
	}

	var questionType string
	err := db.QueryRowContext(ctx, `
		SELECT q.type
		FROM question q
		INNER JOIN form_question fq ON (fq.question_id = q.id)
		WHERE q.id = ?
			AND fq.form_id = ?`,
		questionID,
		formID,
	).Scan(&questionType)
	if errors.Is(err, sql.ErrNoRows) {
		return stat, apperr.NotFound("question in form", questionID)
	}
	if err != nil {
		return stat, apperr.Fatal(err, "stats.aggregate.question")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT a.value
		FROM submission_answer a
		INNER JOIN submission s ON (s.id = a.submission_id)
		WHERE s.form_id = ?
			AND a.question_id = ?`,
		formID,
		questionID,
	)
	if err != nil {
		return stat, apperr.Fatal(err, "stats.aggregate.answers")
	}
	defer rows.Close()

	// tally by raw key first; labels come in only at projection time
	byKey := map[string]int{}
	for rows.Next() {
		var value []byte
		if err = rows.Scan(&value); err != nil {
			return stat, apperr.Fatal(err, "stats.aggregate.scan")
		}

		keys, err := storedKeys(questionType, value)
		if err != nil {
			return stat, err
		}
		for _, key := range keys {
			byKey[key]++
		}
		stat.TotalAnswers++
	}
	if err = rows.Err(); err != nil {
		return stat, apperr.Fatal(err, "stats.aggregate.rows")
	}

	opts, err := reg.LoadOptions(ctx, questionID)
	if err != nil {
		return stat, err
	}

	for key, count := range byKey {
		label, ok := opts.LabelFor(key)
		if !ok {
			label = key // option deleted from the question, keep the raw key bucket
		}
		// += not =: two keys may share one current label
		stat.Distribution[label] += count
	}

	return stat, nil
}

func storedKeys(questionType string, value []byte) ([]string, error) {
	if model.IsMultiType(questionType) {
		var keys []string
		if err := json.Unmarshal(value, &keys); err != nil {
			return nil, apperr.Fatal(err, "stats.aggregate.parse_keys")
		}
		return keys, nil
	}

	if model.IsChoiceType(questionType) {
		var key string
		if err := json.Unmarshal(value, &key); err != nil {
			return nil, apperr.Fatal(err, "stats.aggregate.parse_key")
		}
		return []string{key}, nil
	}

	// non-choice answers bucket by their literal value
	var raw any
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, apperr.Fatal(err, "stats.aggregate.parse_value")
	}
	return []string{stringify(raw)}, nil
}

func stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	s := string(b)
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}

// Buckets returns the distribution as a deterministic, count-descending
// list for display.
func (s Statistics) Buckets() []Bucket {
	buckets := make([]Bucket, 0, len(s.Distribution))
	for label, count := range s.Distribution {
		buckets = append(buckets, Bucket{label, count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Label < buckets[j].Label
	})
	return buckets
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
