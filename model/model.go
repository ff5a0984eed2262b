package model

import "time"

// Question types. Choice types store answers by option key,
// everything else stores the raw typed value.
const (
	TypeText        = "text"
	TypeNumber      = "number"
	TypeEmail       = "email"
	TypeDate        = "date"
	TypeBoolean     = "boolean"
	TypeRating      = "rating"
	TypeSelect      = "select"
	TypeMultiselect = "multiselect"
	TypeRadio       = "radio"
	TypeCheckbox    = "checkbox"
)

var questionTypes = map[string]bool{
	TypeText:        true,
	TypeNumber:      true,
	TypeEmail:       true,
	TypeDate:        true,
	TypeBoolean:     true,
	TypeRating:      true,
	TypeSelect:      true,
	TypeMultiselect: true,
	TypeRadio:       true,
	TypeCheckbox:    true,
}

func ValidQuestionType(t string) bool {
	return questionTypes[t]
}

// IsChoiceType reports whether answers for this question type are
// stored against option keys.
func IsChoiceType(t string) bool {
	switch t {
	case TypeSelect, TypeMultiselect, TypeRadio, TypeCheckbox:
		return true
	}
	return false
}

// IsMultiType reports whether a question type accepts multiple selections.
func IsMultiType(t string) bool {
	return t == TypeMultiselect || t == TypeCheckbox
}

type Question struct {
	ID       int            `json:"id,omitempty"`
	PublicID string         `json:"public_id,omitempty"`
	Text     string         `json:"text"`
	Type     string         `json:"type"`
	Options  []Option       `json:"options,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Active   bool           `json:"active"`
}

// Option attaches a mutable display label to an immutable key.
// The key is minted once from the initial label and never changes.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// LabelChange is one append-only ledger row recording a label edit.
type LabelChange struct {
	ID         int       `json:"id"`
	QuestionID int       `json:"question_id"`
	OptionKey  string    `json:"option_key"`
	OldLabel   string    `json:"old_label"`
	NewLabel   string    `json:"new_label"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  string    `json:"changed_by"`
	Reason     string    `json:"reason,omitempty"`
}

type Form struct {
	ID          int        `json:"id,omitempty"`
	PublicID    string     `json:"public_id,omitempty"`
	Version     int        `json:"version,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	QuestionIDs []int      `json:"question_ids,omitempty"`
	Questions   []Question `json:"questions,omitempty"`
}

// Submission as seen by callers: answers are label-based. The stored
// record is key-based; translation happens in the codec on every read.
type Submission struct {
	ID       int            `json:"id,omitempty"`
	PublicID string         `json:"public_id,omitempty"`
	FormID   int            `json:"form_id"`
	Time     time.Time      `json:"time"`
	Answers  map[int]any    `json:"answers"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Counter struct {
	EntityType   string `json:"entity_type"`
	CurrentValue int    `json:"current_value"`
}
