package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/dto"
	"github.com/noah-isme/basmagi-quiz/internal/models"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/quizid"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\x{0600}-\x{06FF}\w\s\-]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

type pendingQuizStore interface {
	Create(ctx context.Context, quiz *models.PendingQuiz) error
	Exists(ctx context.Context, path, filename string) (bool, error)
	FindByLocation(ctx context.Context, path, filename string) (*models.PendingQuiz, error)
	ListPaths(ctx context.Context) (models.QuizPathTree, error)
	ListHosted(ctx context.Context) ([]models.PendingQuiz, error)
}

// UploadService stages admin uploads in the database for the sync tool.
type UploadService struct {
	repo      pendingQuizStore
	quizzes   *QuizValidator
	migrator  *QuizMigrator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUploadService constructs an UploadService instance.
func NewUploadService(repo pendingQuizStore, quizzes *QuizValidator, validate *validator.Validate, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if quizzes == nil {
		quizzes = NewQuizValidator(validate)
	}
	return &UploadService{repo: repo, quizzes: quizzes, migrator: NewQuizMigrator(), validator: validate, logger: logger}
}

// Upload validates the target path and quiz document, then stores the sanitized
// quiz as a pending row.
func (s *UploadService) Upload(ctx context.Context, req dto.UploadQuizRequest) (*dto.UploadQuizResponse, error) {
	if err := s.quizzes.ValidatePath(req.Category, req.Subject, req.Subfolder); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}

	clean, err := s.quizzes.ValidatePayload(req.Quiz)
	if err != nil {
		return nil, err
	}

	fullPath := UploadPath(req.Category, req.Subject, req.Subfolder)
	filename := UploadFilename(titleOf(clean))

	exists, err := s.repo.Exists(ctx, fullPath, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing quiz")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a quiz with the same name already exists at %s/%s", fullPath, filename))
	}

	quiz := &models.PendingQuiz{Path: fullPath, Filename: filename, Data: models.QuizPayload(clean)}
	if err := s.repo.Create(ctx, quiz); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store quiz")
	}

	s.logger.Info("quiz uploaded", zap.String("id", quiz.ID), zap.String("path", fullPath), zap.String("filename", filename))
	return &dto.UploadQuizResponse{ID: quiz.ID, Path: fullPath, Filename: filename}, nil
}

// ListPaths returns the category, subject and subfolder tree of uploaded quizzes.
func (s *UploadService) ListPaths(ctx context.Context) (models.QuizPathTree, error) {
	tree, err := s.repo.ListPaths(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quiz paths")
	}
	return tree, nil
}

// QuizData serves an uploaded quiz by its data-relative path
// "quizzes/<path>/<filename>.json".
func (s *UploadService) QuizData(ctx context.Context, rawPath string) (models.QuizPayload, error) {
	dbPath, filename, err := SplitQuizDataPath(rawPath)
	if err != nil {
		return nil, err
	}
	quiz, err := s.repo.FindByLocation(ctx, dbPath, filename)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	return quiz.Data, nil
}

// HostedManifest lists every uploaded quiz in the manifest shape. Quiz paths
// point at quizDataURL and IDs match the ones the builder assigns once the
// quiz is synced into the tree. Rows whose path has no
// Faculty/Year/Term/Course prefix are skipped.
func (s *UploadService) HostedManifest(ctx context.Context, quizDataURL string) (*models.Manifest, error) {
	rows, err := s.repo.ListHosted(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list hosted quizzes")
	}

	manifest := &models.Manifest{DataRoot: defaultDataRoot, Subjects: []models.Subject{}}
	courses := map[string]int{}
	var newest time.Time
	for _, row := range rows {
		parts := strings.Split(strings.Trim(row.Path, "/"), "/")
		if len(parts) < 4 {
			s.logger.Warn("hosted quiz outside a course, skipping", zap.String("path", row.Path), zap.String("filename", row.Filename))
			continue
		}
		canonical := "quizzes/" + strings.Join(parts, "/") + "/" + row.Filename
		rec, err := s.migrator.Decode(row.Data)
		if err != nil {
			s.logger.Warn("hosted quiz unreadable, skipping", zap.String("path", canonical), zap.Error(err))
			continue
		}
		s.migrator.Enrich(rec, EnrichInput{CanonicalPath: canonical, BaseName: strings.TrimSuffix(row.Filename, ".json")})

		course := strings.Join(parts[:4], "/")
		idx, ok := courses[course]
		if !ok {
			year, _ := leadingNumber(parts[1])
			term, _ := leadingNumber(parts[2])
			manifest.Subjects = append(manifest.Subjects, models.Subject{
				ID:      quizid.Generate("quizzes/" + course),
				Name:    parts[3],
				Faculty: parts[0],
				Year:    year,
				Term:    term,
				Quizzes: []models.QuizEntry{},
			})
			idx = len(manifest.Subjects) - 1
			courses[course] = idx
		}

		subject := &manifest.Subjects[idx]
		subject.Quizzes = append(subject.Quizzes, models.QuizEntry{
			ID:            rec.Meta.ID,
			Title:         rec.Meta.Title,
			Path:          quizDataURL + "?path=" + url.QueryEscape(canonical),
			QuestionCount: rec.Stats.QuestionCount,
			QuestionTypes: rec.Stats.QuestionTypes,
			Description:   rec.Meta.Description,
			Author:        rec.Meta.Author,
			Source:        rec.Meta.Source,
		})
		if row.CreatedAt.After(newest) {
			newest = row.CreatedAt
		}
	}
	if !newest.IsZero() {
		manifest.GeneratedAt = newest.UTC().Format(manifestTimeLayout)
	}
	return manifest, nil
}

// UploadPath joins the trimmed category, subject and optional subfolder.
func UploadPath(category, subject, subfolder string) string {
	parts := []string{strings.TrimSpace(category), strings.TrimSpace(subject)}
	if sub := strings.TrimSpace(subfolder); sub != "" {
		parts = append(parts, sub)
	}
	return strings.Join(parts, "/")
}

// UploadFilename keeps Arabic, Latin, digits, hyphens and underscores of title
// and joins words with underscores. An empty result falls back to quiz.json.
func UploadFilename(title string) string {
	safe := unsafeFilenameChars.ReplaceAllString(title, "")
	safe = whitespaceRun.ReplaceAllString(strings.TrimSpace(safe), "_")
	if safe == "" {
		safe = "quiz"
	}
	return safe + ".json"
}

// SplitQuizDataPath normalises a "quizzes/.../file.json" path into the stored
// path and filename.
func SplitQuizDataPath(rawPath string) (string, string, error) {
	if rawPath == "" {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "path parameter is required")
	}
	normalised := strings.ReplaceAll(rawPath, `\`, "/")
	for strings.Contains(normalised, "..") {
		normalised = strings.ReplaceAll(normalised, "..", "")
	}
	for strings.Contains(normalised, "//") {
		normalised = strings.ReplaceAll(normalised, "//", "/")
	}
	normalised = strings.TrimLeft(normalised, "/")
	if !strings.HasPrefix(normalised, "quizzes/") || !strings.HasSuffix(normalised, ".json") {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "invalid quiz path")
	}
	rest := strings.TrimPrefix(normalised, "quizzes/")
	idx := strings.LastIndex(rest, "/")
	if idx <= 0 {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "invalid quiz path")
	}
	return rest[:idx], rest[idx+1:], nil
}

func titleOf(doc []byte) string {
	var head struct {
		Meta struct {
			Title string `json:"title"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return ""
	}
	return head.Meta.Title
}
