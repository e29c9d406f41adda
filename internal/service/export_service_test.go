package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basmagi-quiz/internal/dto"
	"github.com/noah-isme/basmagi-quiz/internal/models"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/storage"
)

func newExportFixture(t *testing.T) (*ExportService, string) {
	t.Helper()
	dataDir := t.TempDir()
	data, err := storage.NewLocalStorage(dataDir)
	require.NoError(t, err)
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	quizDir := filepath.Join(dataDir, "quizzes", "Engineering", "2", "1", "Networks")
	require.NoError(t, os.MkdirAll(quizDir, 0o755))
	legacy := `{"title":"Networks Basics","questions":[
		{"q":"Layer of IP?","options":["Network","Transport"],"correct":0},
		{"q":"Define latency","answer":"delay"}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(quizDir, "quiz-a.json"), []byte(legacy), 0o644))
	module := "export const questions = [\n  { q: 'Old style?', options: ['yes', 'no', 'maybe'], correct: 2 },\n];\n"
	require.NoError(t, os.WriteFile(filepath.Join(quizDir, "old-quiz.js"), []byte(module), 0o644))

	signer := storage.NewSignedURLSigner("secret", time.Hour)
	return NewExportService(data, files, signer, nil, nil, ExportConfig{APIPrefix: "/api/v1"}, nil), dataDir
}

func intPtr(v int) *int { return &v }

func TestExportServiceRendersEveryFormat(t *testing.T) {
	svc, _ := newExportFixture(t)

	for _, format := range []string{"csv", "pdf", "xlsx"} {
		res, err := svc.Export(context.Background(), dto.ExportRequest{
			QuizPath: "quizzes/Engineering/2/1/Networks/quiz-a.json",
			Format:   format,
			Answers:  []*int{intPtr(1)},
		})
		require.NoError(t, err, format)
		assert.True(t, strings.HasPrefix(res.URL, "/api/v1/exports/"), res.URL)

		token := strings.TrimPrefix(res.URL, "/api/v1/exports/")
		file, err := svc.Open(token)
		require.NoError(t, err)
		body, err := io.ReadAll(file.File)
		file.File.Close()
		require.NoError(t, err)
		assert.NotEmpty(t, body)
		assert.True(t, strings.HasSuffix(file.Name, "."+format))
		assert.True(t, strings.HasPrefix(file.Name, "Networks_Basics_"), file.Name)
		if format == "csv" {
			assert.Contains(t, string(body), "Layer of IP?")
			assert.Contains(t, string(body), "wrong")
			assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
		}
	}
}

func TestExportServiceLegacyModule(t *testing.T) {
	svc, _ := newExportFixture(t)
	res, err := svc.Export(context.Background(), dto.ExportRequest{QuizPath: "/quizzes/Engineering/2/1/Networks/old-quiz.js", Format: "csv"})
	require.NoError(t, err)

	file, err := svc.Open(strings.TrimPrefix(res.URL, "/api/v1/exports/"))
	require.NoError(t, err)
	defer file.File.Close()
	body, _ := io.ReadAll(file.File)
	assert.Contains(t, string(body), "Old style?")
	assert.Contains(t, string(body), "# Old Quiz")
}

func TestExportServiceRejections(t *testing.T) {
	svc, _ := newExportFixture(t)
	ctx := context.Background()

	cases := []struct {
		req  dto.ExportRequest
		want *appErrors.Error
	}{
		{dto.ExportRequest{QuizPath: "quizzes/a.json", Format: "docx"}, appErrors.ErrValidation},
		{dto.ExportRequest{QuizPath: "manifest.json", Format: "csv"}, appErrors.ErrValidation},
		{dto.ExportRequest{QuizPath: "quizzes/../../secret.json", Format: "csv"}, appErrors.ErrValidation},
		{dto.ExportRequest{QuizPath: "quizzes/Engineering/missing.json", Format: "csv"}, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		_, err := svc.Export(ctx, tc.req)
		require.Error(t, err, tc.req.QuizPath)
		assert.True(t, errors.Is(err, tc.want), "%s: %v", tc.req.QuizPath, err)
	}

	_, err := svc.Open("not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestQuizDatasetNormalizedRows(t *testing.T) {
	answer := "delay"
	rec := &models.QuizRecord{Questions: []models.Question{
		{Q: "Pick", Options: []string{"a", "b", "c"}, Correct: intPtr(2)},
		{Q: "Explain", Answer: &answer, Explanation: "see notes"},
		{Q: "True?", Options: []string{"yes", "no"}, Correct: intPtr(0)},
	}}

	data := QuizDataset(rec, []*int{intPtr(2), nil})
	require.Len(t, data.Rows, 3)
	assert.Equal(t, "A) a\nB) b\nC) c", data.Rows[0]["Options"])
	assert.Equal(t, "C) c", data.Rows[0]["Correct"])
	assert.Equal(t, "correct", data.Rows[0]["Result"])
	assert.Equal(t, "Essay", data.Rows[1]["Type"])
	assert.Equal(t, "delay", data.Rows[1]["Correct"])
	assert.Empty(t, data.Rows[1]["Options"])
	assert.Equal(t, "unanswered", data.Rows[2]["Result"])
	assert.Equal(t, "True/False", data.Rows[2]["Type"])
}
