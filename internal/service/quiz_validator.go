package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/quizid"
)

const (
	// MaxQuizPayloadBytes caps the compacted size of an uploaded quiz document.
	MaxQuizPayloadBytes = 50_000
	maxPathSegment      = 100
)

var (
	sourcePattern      = regexp.MustCompile(`^https?://.{3,}`)
	pathSegmentPattern = regexp.MustCompile(`^[\x{0600}-\x{06FF}\w\s\-/.]+$`)
)

// quizDocument mirrors the accepted upload shape. Unknown keys at any level are rejected.
type quizDocument struct {
	Meta      *quizDocumentMeta      `json:"meta" validate:"required"`
	Stats     *quizDocumentStats     `json:"stats" validate:"required"`
	Questions []quizDocumentQuestion `json:"questions" validate:"required,min=1,max=500,dive"`
}

type quizDocumentMeta struct {
	ID          string  `json:"id" validate:"quiz_id"`
	Title       string  `json:"title" validate:"required,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Source      *string `json:"source,omitempty" validate:"omitempty,quiz_source"`
	Path        *string `json:"path,omitempty"`
	Author      *string `json:"author,omitempty" validate:"omitempty,max=100"`
	CreatedAt   *string `json:"createdAt,omitempty"`
}

type quizDocumentStats struct {
	QuestionCount int      `json:"questionCount"`
	QuestionTypes []string `json:"questionTypes"`
}

type quizDocumentQuestion struct {
	Q           string `json:"q" validate:"required"`
	Image       any    `json:"image,omitempty"`
	Options     []any  `json:"options,omitempty"`
	Correct     any    `json:"correct,omitempty"`
	Explanation any    `json:"explanation,omitempty"`
	Answer      any    `json:"answer,omitempty"`
}

// QuizValidator checks uploaded quiz documents and their target location.
type QuizValidator struct {
	validator *validator.Validate
}

// NewQuizValidator registers the quiz specific tags on validate (or a fresh validator).
func NewQuizValidator(validate *validator.Validate) *QuizValidator {
	if validate == nil {
		validate = validator.New()
	}
	_ = validate.RegisterValidation("quiz_id", func(fl validator.FieldLevel) bool {
		return quizid.Valid(fl.Field().String())
	})
	_ = validate.RegisterValidation("quiz_source", func(fl validator.FieldLevel) bool {
		return sourcePattern.MatchString(fl.Field().String())
	})
	return &QuizValidator{validator: validate}
}

// ValidatePayload checks raw against the whitelist and returns the sanitized document.
func (v *QuizValidator) ValidatePayload(raw []byte) ([]byte, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, invalidPayload("INVALID_PAYLOAD: must be a JSON object", err)
	}
	if compact.Len() > MaxQuizPayloadBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("quiz exceeds %d bytes", MaxQuizPayloadBytes))
	}

	dec := json.NewDecoder(bytes.NewReader(compact.Bytes()))
	dec.DisallowUnknownFields()
	var doc quizDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, invalidPayload("INVALID_PAYLOAD: "+err.Error(), err)
	}

	if doc.Meta != nil {
		doc.Meta.Title = strings.TrimSpace(doc.Meta.Title)
	}
	for i := range doc.Questions {
		doc.Questions[i].Q = strings.TrimSpace(doc.Questions[i].Q)
	}

	if err := v.validator.Struct(doc); err != nil {
		return nil, invalidPayload(describeValidation(err), err)
	}

	for i, q := range doc.Questions {
		if q.Options != nil && len(q.Options) == 0 {
			return nil, invalidPayload(fmt.Sprintf("INVALID_QUESTION[%d]: options array must not be empty if present", i), nil)
		}
	}

	if err := checkStats(doc); err != nil {
		return nil, err
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode quiz")
	}
	return out, nil
}

// ValidatePath checks the category, subject and optional subfolder of an upload.
func (v *QuizValidator) ValidatePath(category, subject, subfolder string) error {
	if strings.TrimSpace(category) == "" {
		return invalidPayload("MISSING_PATH: college/category is required", nil)
	}
	if strings.TrimSpace(subject) == "" {
		return invalidPayload("MISSING_PATH: subject is required", nil)
	}
	for _, part := range []string{category, subject, subfolder} {
		if part == "" {
			continue
		}
		if !pathSegmentPattern.MatchString(part) {
			return invalidPayload(fmt.Sprintf("INVALID_PATH: %q contains disallowed characters", part), nil)
		}
		if strings.Contains(part, "..") || strings.Contains(part, "//") {
			return invalidPayload("INVALID_PATH: traversal pattern detected", nil)
		}
		if utf8.RuneCountInString(strings.TrimSpace(part)) > maxPathSegment {
			return invalidPayload("INVALID_PATH: segment too long (max 100 chars)", nil)
		}
	}
	return nil
}

func checkStats(doc quizDocument) error {
	questions := make([]models.Question, len(doc.Questions))
	for i, q := range doc.Questions {
		questions[i].Options = make([]string, len(q.Options))
	}
	want := ComputeStats(questions)

	if doc.Stats.QuestionCount != want.QuestionCount {
		return invalidPayload(fmt.Sprintf("STATS_MISMATCH: questionCount %d != actual %d", doc.Stats.QuestionCount, want.QuestionCount), nil)
	}

	got := append([]string(nil), doc.Stats.QuestionTypes...)
	sort.Strings(got)
	expected := make([]string, len(want.QuestionTypes))
	for i, t := range want.QuestionTypes {
		expected[i] = string(t)
	}
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		return invalidPayload(fmt.Sprintf("STATS_MISMATCH: questionTypes [%s] != actual [%s]", strings.Join(got, ","), strings.Join(expected, ",")), nil)
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "INVALID_PAYLOAD: " + err.Error()
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "quizDocument.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("MISSING_FIELD: %s is required", field)
	case "quiz_id":
		return "INVALID_META: id must be an 8-character uppercase base32 string (A-Z, 2-7)"
	case "quiz_source":
		return "INVALID_META_FIELD: source must be a valid http/https URL"
	case "max":
		return fmt.Sprintf("INVALID_FIELD: %s exceeds %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("MISSING_FIELD: %s must not be empty", field)
	default:
		return fmt.Sprintf("INVALID_FIELD: %s failed %s", field, fe.Tag())
	}
}

func invalidPayload(message string, err error) error {
	if err == nil {
		return appErrors.Clone(appErrors.ErrValidation, message)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
