package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

// PendingQuizSchema creates the staging table used by uploads and the sync tool.
const PendingQuizSchema = `CREATE TABLE IF NOT EXISTS pending_quizzes (
	id UUID PRIMARY KEY,
	path TEXT NOT NULL,
	filename TEXT NOT NULL,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	synced_at TIMESTAMPTZ,
	UNIQUE (path, filename)
)`

const pendingQuizColumns = `id, path, filename, data, created_at, synced_at`

// PendingQuizRepository provides database access for uploaded quizzes awaiting sync.
type PendingQuizRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPendingQuizRepository creates a new instance of PendingQuizRepository.
func NewPendingQuizRepository(db *sqlx.DB) *PendingQuizRepository {
	return &PendingQuizRepository{db: db, now: time.Now}
}

// EnsureSchema creates the staging table when missing.
func (r *PendingQuizRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, PendingQuizSchema); err != nil {
		return fmt.Errorf("ensure pending quiz schema: %w", err)
	}
	return nil
}

// Create inserts a pending quiz, assigning ID and CreatedAt when empty.
func (r *PendingQuizRepository) Create(ctx context.Context, quiz *models.PendingQuiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = r.now().UTC()
	}
	const query = `INSERT INTO pending_quizzes (id, path, filename, data, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, quiz.ID, quiz.Path, quiz.Filename, quiz.Data, quiz.CreatedAt); err != nil {
		return fmt.Errorf("insert pending quiz: %w", err)
	}
	return nil
}

// Exists reports whether a quiz with the same path and filename was already uploaded.
func (r *PendingQuizRepository) Exists(ctx context.Context, path, filename string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM pending_quizzes WHERE path = $1 AND filename = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, path, filename); err != nil {
		return false, fmt.Errorf("check pending quiz: %w", err)
	}
	return exists, nil
}

// FindByID returns a pending quiz or sql.ErrNoRows.
func (r *PendingQuizRepository) FindByID(ctx context.Context, id string) (*models.PendingQuiz, error) {
	query := `SELECT ` + pendingQuizColumns + ` FROM pending_quizzes WHERE id = $1 LIMIT 1`
	var quiz models.PendingQuiz
	if err := r.db.GetContext(ctx, &quiz, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find pending quiz: %w", err)
	}
	return &quiz, nil
}

// FindByLocation returns the quiz uploaded at path with filename or sql.ErrNoRows.
func (r *PendingQuizRepository) FindByLocation(ctx context.Context, path, filename string) (*models.PendingQuiz, error) {
	query := `SELECT ` + pendingQuizColumns + ` FROM pending_quizzes WHERE path = $1 AND filename = $2 LIMIT 1`
	var quiz models.PendingQuiz
	if err := r.db.GetContext(ctx, &quiz, query, path, filename); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find pending quiz by location: %w", err)
	}
	return &quiz, nil
}

// ListUnsynced returns quizzes not yet written to the tree, oldest first.
// When all is set synced rows are returned too.
func (r *PendingQuizRepository) ListUnsynced(ctx context.Context, all bool) ([]models.PendingQuiz, error) {
	query := `SELECT ` + pendingQuizColumns + ` FROM pending_quizzes`
	if !all {
		query += ` WHERE synced_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	var quizzes []models.PendingQuiz
	if err := r.db.SelectContext(ctx, &quizzes, query); err != nil {
		return nil, fmt.Errorf("list pending quizzes: %w", err)
	}
	return quizzes, nil
}

// ListHosted returns every uploaded quiz ordered by path and filename.
func (r *PendingQuizRepository) ListHosted(ctx context.Context) ([]models.PendingQuiz, error) {
	query := `SELECT ` + pendingQuizColumns + ` FROM pending_quizzes ORDER BY path ASC, filename ASC`
	var quizzes []models.PendingQuiz
	if err := r.db.SelectContext(ctx, &quizzes, query); err != nil {
		return nil, fmt.Errorf("list hosted quizzes: %w", err)
	}
	return quizzes, nil
}

// MarkSynced stamps synced_at on the given rows.
func (r *PendingQuizRepository) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE pending_quizzes SET synced_at = $1 WHERE id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, r.now().UTC(), pq.Array(ids)); err != nil {
		return fmt.Errorf("mark pending quizzes synced: %w", err)
	}
	return nil
}

// DeleteSynced removes every synced row and returns how many were deleted.
func (r *PendingQuizRepository) DeleteSynced(ctx context.Context) (int64, error) {
	const query = `DELETE FROM pending_quizzes WHERE synced_at IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete synced quizzes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete synced quizzes: %w", err)
	}
	return n, nil
}

// Counts summarises the staging table.
func (r *PendingQuizRepository) Counts(ctx context.Context) (models.PendingQuizCounts, error) {
	const query = `SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE synced_at IS NULL) AS pending,
		COUNT(*) FILTER (WHERE synced_at IS NOT NULL) AS synced
		FROM pending_quizzes`
	var counts models.PendingQuizCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return models.PendingQuizCounts{}, fmt.Errorf("count pending quizzes: %w", err)
	}
	return counts, nil
}

// ListPaths groups every distinct uploaded path into category, subject and subfolders.
func (r *PendingQuizRepository) ListPaths(ctx context.Context) (models.QuizPathTree, error) {
	const query = `SELECT DISTINCT path FROM pending_quizzes ORDER BY path`
	var paths []string
	if err := r.db.SelectContext(ctx, &paths, query); err != nil {
		return nil, fmt.Errorf("list quiz paths: %w", err)
	}
	return BuildPathTree(paths), nil
}

// BuildPathTree splits category/subject[/subfolder...] paths into a tree.
// Paths with fewer than two segments are ignored.
func BuildPathTree(paths []string) models.QuizPathTree {
	tree := models.QuizPathTree{}
	for _, p := range paths {
		parts := strings.Split(strings.Trim(p, "/"), "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		category, subject := parts[0], parts[1]
		if tree[category] == nil {
			tree[category] = map[string][]string{}
		}
		folders := tree[category][subject]
		if folders == nil {
			folders = []string{}
		}
		if len(parts) > 2 {
			sub := strings.Join(parts[2:], "/")
			if !containsString(folders, sub) {
				folders = append(folders, sub)
			}
		}
		sort.Strings(folders)
		tree[category][subject] = folders
	}
	return tree
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
