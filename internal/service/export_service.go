package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/dto"
	"github.com/noah-isme/basmagi-quiz/internal/models"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/export"
	"github.com/noah-isme/basmagi-quiz/pkg/storage"
)

// Export dataset columns.
const (
	colNumber      = "#"
	colQuestion    = "Question"
	colType        = "Type"
	colOptions     = "Options"
	colCorrect     = "Correct"
	colSelected    = "Selected"
	colResult      = "Result"
	colExplanation = "Explanation"
)

type quizSource interface {
	ReadFile(rel string) ([]byte, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportFile is an opened export ready for streaming.
type ExportFile struct {
	File        *os.File
	Name        string
	ContentType string
}

// ExportService renders normalized quiz records through the export collaborators.
type ExportService struct {
	quizzes   quizSource
	storage   fileStorage
	migrator  *QuizMigrator
	renderers map[string]Renderer
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with the CSV, PDF and XLSX renderers.
func NewExportService(quizzes quizSource, files fileStorage, signer *storage.SignedURLSigner, migrator *QuizMigrator, validate *validator.Validate, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if migrator == nil {
		migrator = NewQuizMigrator()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		quizzes:  quizzes,
		storage:  files,
		migrator: migrator,
		renderers: map[string]Renderer{
			"csv":  export.NewCSVExporter(),
			"pdf":  export.NewPDFExporter(),
			"xlsx": export.NewXLSXExporter(),
		},
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Export loads the quiz at req.QuizPath, migrates it to the normalized form and
// stores the rendered document behind a signed download URL.
func (s *ExportService) Export(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	renderer, ok := s.renderers[req.Format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", req.Format))
	}

	rec, err := s.loadQuiz(req.QuizPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := renderer.Render(QuizDataset(rec, req.Answers), rec.Meta.Title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	relPath, err := s.storage.Save(s.buildFilename(rec, id, renderer.Extension()), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("quiz exported",
		zap.String("quiz", req.QuizPath),
		zap.String("format", req.Format),
		zap.Int("questions", len(rec.Questions)),
		zap.String("file", relPath),
	)
	return &dto.ExportResponse{
		ID:        id,
		Format:    req.Format,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Open validates a download token and opens the stored export.
func (s *ExportService) Open(token string) (*ExportFile, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "download link expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.storage.Open(claims.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	contentType := "application/octet-stream"
	ext := strings.TrimPrefix(path.Ext(claims.Path), ".")
	if r, ok := s.renderers[ext]; ok {
		contentType = r.ContentType()
	}
	return &ExportFile{File: file, Name: path.Base(claims.Path), ContentType: contentType}, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) loadQuiz(quizPath string) (*models.QuizRecord, error) {
	rel := strings.TrimLeft(strings.ReplaceAll(quizPath, `\`, "/"), "/")
	ext := path.Ext(rel)
	if !strings.HasPrefix(rel, "quizzes/") || (ext != ".json" && ext != ".js") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "quizPath must point to a quiz file under quizzes/")
	}
	raw, err := s.quizzes.ReadFile(rel)
	if err != nil {
		if errors.Is(err, storage.ErrOutsideBase) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz path")
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read quiz")
	}
	rec, err := s.migrator.DecodeSource(raw, ext)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "quiz could not be parsed")
	}
	if rec.Meta.Title == "" || rec.Meta.Title == untitled {
		rec.Meta.Title = TitleCase(strings.TrimSuffix(path.Base(rel), ext))
	}
	return rec, nil
}

func (s *ExportService) buildFilename(rec *models.QuizRecord, id, ext string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", sanitizeFilename(rec.Meta.Title), timestamp, id[:8], ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "quiz"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if runes := []rune(result); len(runes) > 60 {
		return string(runes[:60])
	}
	return result
}

// QuizDataset flattens normalized questions and the parallel selected answers
// into export rows. answers may be shorter than the question list.
func QuizDataset(rec *models.QuizRecord, answers []*int) export.Dataset {
	data := export.Dataset{
		Headers: []string{colNumber, colQuestion, colType, colOptions, colCorrect, colSelected, colResult, colExplanation},
	}
	for i, q := range rec.Questions {
		var selected *int
		if i < len(answers) {
			selected = answers[i]
		}
		row := map[string]string{
			colNumber:      strconv.Itoa(i + 1),
			colQuestion:    q.Q,
			colType:        string(q.Type()),
			colExplanation: q.Explanation,
		}
		if len(q.Options) > 0 {
			lines := make([]string, len(q.Options))
			for j, opt := range q.Options {
				lines[j] = fmt.Sprintf("%c) %s", 'A'+j, opt)
			}
			row[colOptions] = strings.Join(lines, "\n")
			row[colCorrect] = optionLabel(q.Options, q.Correct)
			row[colSelected] = optionLabel(q.Options, selected)
			row[colResult] = answerResult(q.Correct, selected)
		} else if q.Answer != nil {
			row[colCorrect] = *q.Answer
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

func optionLabel(options []string, idx *int) string {
	if idx == nil || *idx < 0 || *idx >= len(options) {
		return ""
	}
	return fmt.Sprintf("%c) %s", 'A'+*idx, options[*idx])
}

func answerResult(correct, selected *int) string {
	switch {
	case correct == nil:
		return ""
	case selected == nil:
		return "unanswered"
	case *selected == *correct:
		return "correct"
	default:
		return "wrong"
	}
}
