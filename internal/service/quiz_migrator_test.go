package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

func decodeRaw(t *testing.T, src string) any {
	t.Helper()
	var raw any
	require.NoError(t, json.Unmarshal([]byte(src), &raw))
	return raw
}

func TestComputeStats(t *testing.T) {
	questions := []models.Question{
		{Q: "mcq", Options: []string{"a", "b", "c", "d"}},
		{Q: "tf", Options: []string{"True", "False"}},
		{Q: "essay", Answer: strPtr("x")},
		{Q: "mcq again", Options: []string{"a", "b", "c"}},
	}
	stats := ComputeStats(questions)
	assert.Equal(t, 4, stats.QuestionCount)
	assert.Equal(t, []models.QuestionType{models.QuestionTypeEssay, models.QuestionTypeMCQ, models.QuestionTypeTrueFalse}, stats.QuestionTypes)

	empty := ComputeStats(nil)
	assert.Equal(t, 0, empty.QuestionCount)
	assert.NotNil(t, empty.QuestionTypes)
}

func TestMigrateLegacyEssayForm(t *testing.T) {
	m := NewQuizMigrator()
	rec, err := m.Migrate(decodeRaw(t, `{"questions":[{"q":"Define X","options":["X is..."],"correct":0}]}`))
	require.NoError(t, err)

	require.Len(t, rec.Questions, 1)
	q := rec.Questions[0]
	assert.Equal(t, "Define X", q.Q)
	assert.Empty(t, q.Options)
	assert.Nil(t, q.Correct)
	require.NotNil(t, q.Answer)
	assert.Equal(t, "X is...", *q.Answer)
	assert.Equal(t, models.QuestionTypeEssay, q.Type())

	encoded, err := json.Marshal(rec)
	require.NoError(t, err)
	again, err := m.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, rec, again, "migrating a canonical record must be a no-op")
}

func TestMigrateLegacyMetadataSources(t *testing.T) {
	rec, err := NewQuizMigrator().Migrate(decodeRaw(t, `{
		"title": "  Networks Midterm ",
		"description": "top level",
		"author": "  ",
		"metadata": {"description": " from metadata ", "author": "Dr. Sara", "source": "https://example.com", "id": "ABCDEFGH", "createdAt": "2024-01-01 - 10:00"},
		"questions": [
			{"q": "Pick", "options": ["a","b","c"], "correct": 2, "image": " ", "explanation": ""}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Networks Midterm", rec.Meta.Title)
	assert.Equal(t, "from metadata", rec.Meta.Description)
	assert.Equal(t, "Dr. Sara", rec.Meta.Author)
	assert.Equal(t, "https://example.com", rec.Meta.Source)
	assert.Equal(t, "ABCDEFGH", rec.Meta.ID)
	assert.Equal(t, "2024-01-01 - 10:00", rec.Meta.CreatedAt)

	q := rec.Questions[0]
	assert.Empty(t, q.Image)
	assert.Empty(t, q.Explanation)
	require.NotNil(t, q.Correct)
	assert.Equal(t, 2, *q.Correct)
	assert.Equal(t, 1, rec.Stats.QuestionCount)
}

func TestMigrateTitleFallbacks(t *testing.T) {
	m := NewQuizMigrator()
	rec, err := m.Migrate(decodeRaw(t, `{"meta":{"title":"From Meta"},"title":"","questions":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "From Meta", rec.Meta.Title)

	rec, err = m.Migrate(decodeRaw(t, `[{"q":"bare array","answer":"yes"}]`))
	require.NoError(t, err)
	assert.Equal(t, "Untitled", rec.Meta.Title)
	require.Len(t, rec.Questions, 1)
}

func TestMigrateCanonicalDropsAmbiguity(t *testing.T) {
	rec, err := NewQuizMigrator().Migrate(decodeRaw(t, `{
		"meta": {"id":"QQQQQQQQ","title":"T","createdAt":"2023-05-05 - 05:05","path":"old/path.json"},
		"stats": {"questionCount": 99, "questionTypes": ["MCQ"]},
		"questions": [
			{"q":"both","options":["a","b"],"correct":1,"answer":"b"},
			{"q":"numeric options","options":[1,2,3.5],"correct":"1"}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "QQQQQQQQ", rec.Meta.ID)
	assert.Equal(t, "old/path.json", rec.Meta.Path)
	assert.Equal(t, 2, rec.Stats.QuestionCount)
	assert.Nil(t, rec.Questions[0].Answer)
	assert.Equal(t, []string{"1", "2", "3.5"}, rec.Questions[1].Options)
	assert.Equal(t, 1, *rec.Questions[1].Correct)
}

func TestMigrateRejectsUnsupportedShapes(t *testing.T) {
	m := NewQuizMigrator()
	_, err := m.Migrate("just a string")
	assert.True(t, errors.Is(err, ErrUnsupportedShape))

	_, err = m.Migrate(decodeRaw(t, `{"questions":{"q":"not a list"}}`))
	assert.True(t, errors.Is(err, ErrUnsupportedShape))

	_, err = m.Migrate(decodeRaw(t, `{"questions":["not an object"]}`))
	assert.True(t, errors.Is(err, ErrUnsupportedShape))

	_, err = m.Decode([]byte(`{broken`))
	assert.Error(t, err)
}

func TestEnrichBackfillsAndPreservesIdentity(t *testing.T) {
	m := &QuizMigrator{now: func() time.Time { return time.Date(2025, 1, 2, 13, 45, 59, 0, time.UTC) }}

	fresh := &models.QuizRecord{Meta: models.QuizMeta{Title: "Untitled"}, Questions: []models.Question{{Q: "a", Answer: strPtr("b")}}}
	m.Enrich(fresh, EnrichInput{CanonicalPath: "quizzes/Engineering/2/1/Networks/quiz-a.json", BaseName: "quiz-a"})
	assert.Equal(t, "IUP4ACT2", fresh.Meta.ID)
	assert.Equal(t, "2025-01-02 - 13:45", fresh.Meta.CreatedAt)
	assert.Equal(t, "Quiz A", fresh.Meta.Title)
	assert.Equal(t, "quizzes/Engineering/2/1/Networks/quiz-a.json", fresh.Meta.Path)
	assert.Equal(t, 1, fresh.Stats.QuestionCount)

	kept := &models.QuizRecord{Meta: models.QuizMeta{ID: "KEEPKEEP", CreatedAt: "2020-01-01 - 00:00", Title: "Mine", Path: "stale.json"}}
	m.Enrich(kept, EnrichInput{CanonicalPath: "quizzes/x.json", BaseName: "x"})
	assert.Equal(t, "KEEPKEEP", kept.Meta.ID)
	assert.Equal(t, "2020-01-01 - 00:00", kept.Meta.CreatedAt)
	assert.Equal(t, "Mine", kept.Meta.Title)
	assert.Equal(t, "quizzes/x.json", kept.Meta.Path)
}

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"quiz-a":             "Quiz A",
		"lecture_1_mcqs":     "Lecture 1 Mcqs",
		"Final 2020-2021":    "Final 2020 2021",
		"already Title-case": "Already Title Case",
		"محاضرة-one":         "محاضرة One",
	}
	for in, want := range cases {
		assert.Equal(t, want, TitleCase(in), in)
	}
}

func strPtr(s string) *string { return &s }
