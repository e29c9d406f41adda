package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// QuestionType classifies a question by the shape of its choices.
type QuestionType string

const (
	QuestionTypeMCQ       QuestionType = "MCQ"
	QuestionTypeTrueFalse QuestionType = "True/False"
	QuestionTypeEssay     QuestionType = "Essay"
)

// Question is one normalized quiz item. It carries either Options (with an
// optional Correct index) or Answer, never both.
type Question struct {
	Q           string   `json:"q"`
	Image       string   `json:"image,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Options     []string `json:"options,omitempty"`
	Correct     *int     `json:"correct,omitempty"`
	Answer      *string  `json:"answer,omitempty"`
}

// Type reports the question's classification.
func (q Question) Type() QuestionType {
	switch len(q.Options) {
	case 0:
		return QuestionTypeEssay
	case 2:
		return QuestionTypeTrueFalse
	default:
		return QuestionTypeMCQ
	}
}

// QuizMeta describes a quiz. ID and CreatedAt never change once set; Path is derived from the file location.
type QuizMeta struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Source      string `json:"source,omitempty"`
	Path        string `json:"path,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// QuizStats is derived from the question list on every build.
type QuizStats struct {
	QuestionCount int            `json:"questionCount"`
	QuestionTypes []QuestionType `json:"questionTypes"`
}

// QuizRecord is the canonical on-disk quiz document.
type QuizRecord struct {
	Meta      QuizMeta   `json:"meta"`
	Stats     QuizStats  `json:"stats"`
	Questions []Question `json:"questions"`
}

// QuizPayload is a raw quiz document persisted as JSONB.
type QuizPayload json.RawMessage

// Value implements driver.Valuer.
func (p QuizPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(p) {
		return nil, fmt.Errorf("quiz payload is not valid json")
	}
	return []byte(p), nil
}

// Scan implements sql.Scanner.
func (p *QuizPayload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append(QuizPayload(nil), v...)
	case string:
		*p = QuizPayload(v)
	default:
		return fmt.Errorf("unsupported type %T for QuizPayload", value)
	}
	return nil
}

// MarshalJSON emits the payload verbatim.
func (p QuizPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of the raw document.
func (p *QuizPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}
