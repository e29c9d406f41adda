package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/pkg/jsmodule"
	"github.com/noah-isme/basmagi-quiz/pkg/quizid"
)

const (
	untitled        = "Untitled"
	createdAtLayout = "2006-01-02 - 15:04"
)

// ErrUnsupportedShape is returned for documents that are neither a quiz object nor a question array.
var ErrUnsupportedShape = errors.New("unsupported quiz document shape")

// QuizMigrator upgrades any historical quiz shape into a models.QuizRecord.
type QuizMigrator struct {
	now func() time.Time
}

// NewQuizMigrator constructs a migrator using the wall clock for createdAt backfill.
func NewQuizMigrator() *QuizMigrator {
	return &QuizMigrator{now: time.Now}
}

// EnrichInput carries the location-derived values applied by Enrich.
type EnrichInput struct {
	// CanonicalPath is relative to the data directory, slash separated, ending in .json.
	CanonicalPath string
	// BaseName is the file name without extension, used for the title fallback.
	BaseName string
}

// Decode parses JSON quiz bytes and migrates them.
func (m *QuizMigrator) Decode(data []byte) (*models.QuizRecord, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse quiz json: %w", err)
	}
	return m.Migrate(raw)
}

// DecodeSource accepts JSON for either extension and falls back to the legacy
// module syntax for .js files.
func (m *QuizMigrator) DecodeSource(source []byte, ext string) (*models.QuizRecord, error) {
	rec, err := m.Decode(source)
	if err == nil || ext != ".js" {
		return rec, err
	}
	doc, jsErr := jsmodule.Decode(source)
	if jsErr != nil {
		return nil, errors.Join(err, jsErr)
	}
	return m.Migrate(doc)
}

// Migrate converts a decoded document. Identity fields are preserved verbatim and
// questions are always normalized, so migrating a canonical record is a no-op.
func (m *QuizMigrator) Migrate(raw any) (*models.QuizRecord, error) {
	var doc map[string]any
	switch v := raw.(type) {
	case map[string]any:
		doc = v
	case []any:
		doc = map[string]any{"questions": v}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedShape, raw)
	}

	questions, err := normalizeQuestions(doc["questions"])
	if err != nil {
		return nil, err
	}

	var meta models.QuizMeta
	if isCanonical(doc) {
		meta = canonicalMeta(asMap(doc["meta"]))
	} else {
		meta = legacyMeta(doc)
	}

	return &models.QuizRecord{
		Meta:      meta,
		Stats:     ComputeStats(questions),
		Questions: questions,
	}, nil
}

// Enrich backfills id, createdAt and title, overwrites path and recomputes stats.
func (m *QuizMigrator) Enrich(rec *models.QuizRecord, in EnrichInput) {
	if rec.Meta.ID == "" {
		rec.Meta.ID = quizid.Generate(in.CanonicalPath)
	}
	if rec.Meta.CreatedAt == "" {
		rec.Meta.CreatedAt = m.now().UTC().Format(createdAtLayout)
	}
	if rec.Meta.Title == "" || rec.Meta.Title == untitled {
		rec.Meta.Title = TitleCase(in.BaseName)
	}
	rec.Meta.Path = in.CanonicalPath
	rec.Stats = ComputeStats(rec.Questions)
}

func isCanonical(doc map[string]any) bool {
	_, hasMeta := doc["meta"].(map[string]any)
	_, hasQuestions := doc["questions"]
	return hasMeta && hasQuestions && !truthy(doc["title"]) && !truthy(doc["metadata"])
}

// truthy treats missing, null, false, zero and empty strings as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	default:
		return true
	}
}

func canonicalMeta(raw map[string]any) models.QuizMeta {
	return models.QuizMeta{
		ID:          stringField(raw, "id"),
		Title:       stringField(raw, "title"),
		Description: trimmedField(raw, "description"),
		Author:      trimmedField(raw, "author"),
		Source:      trimmedField(raw, "source"),
		Path:        stringField(raw, "path"),
		CreatedAt:   stringField(raw, "createdAt"),
	}
}

func legacyMeta(doc map[string]any) models.QuizMeta {
	old := asMap(doc["meta"])
	if old == nil {
		old = asMap(doc["metadata"])
	}

	meta := models.QuizMeta{
		Title:     firstNonEmpty(trimmedField(doc, "title"), trimmedField(old, "title"), untitled),
		ID:        stringField(old, "id"),
		CreatedAt: stringField(old, "createdAt"),
	}
	meta.Description = firstNonEmpty(trimmedField(old, "description"), trimmedField(doc, "description"))
	meta.Source = firstNonEmpty(trimmedField(doc, "source"), trimmedField(old, "source"))
	meta.Author = firstNonEmpty(trimmedField(old, "author"), trimmedField(doc, "author"))
	return meta
}

func normalizeQuestions(raw any) ([]models.Question, error) {
	if raw == nil {
		return []models.Question{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: questions is %T", ErrUnsupportedShape, raw)
	}
	out := make([]models.Question, 0, len(items))
	for i, item := range items {
		q, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: question %d is %T", ErrUnsupportedShape, i+1, item)
		}
		out = append(out, normalizeQuestion(q))
	}
	return out, nil
}

// normalizeQuestion rewrites the single-option essay encoding to answer and drops blank image/explanation.
func normalizeQuestion(raw map[string]any) models.Question {
	q := models.Question{Q: stringField(raw, "q")}
	if image := stringField(raw, "image"); strings.TrimSpace(image) != "" {
		q.Image = image
	}
	if explanation := stringField(raw, "explanation"); strings.TrimSpace(explanation) != "" {
		q.Explanation = explanation
	}

	options, hasOptions := raw["options"].([]any)
	switch {
	case hasOptions && len(options) == 1:
		answer := firstNonEmpty(scalarString(options[0]), stringField(raw, "answer"))
		q.Answer = &answer
	case hasOptions && len(options) > 1:
		q.Options = make([]string, len(options))
		for i, opt := range options {
			q.Options[i] = scalarString(opt)
		}
		if correct, ok := intValue(raw["correct"]); ok {
			q.Correct = &correct
		}
	default:
		if answer, ok := raw["answer"]; ok && answer != nil {
			text := scalarString(answer)
			q.Answer = &text
		}
	}
	return q
}

// TitleCase turns a file base name into a display title: dashes and underscores
// become spaces and every ASCII word start is upper-cased.
func TitleCase(name string) string {
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	out := []byte(name)
	for i := range out {
		if isASCIIWord(out[i]) && (i == 0 || !isASCIIWord(out[i-1])) && out[i] >= 'a' && out[i] <= 'z' {
			out[i] -= 'a' - 'A'
		}
	}
	return string(out)
}

func isASCIIWord(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func trimmedField(m map[string]any, key string) string {
	return strings.TrimSpace(stringField(m, key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}
