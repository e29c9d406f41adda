package service

import (
	"context"
	"errors"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/pkg/storage"
)

type syncStore interface {
	ListUnsynced(ctx context.Context, all bool) ([]models.PendingQuiz, error)
	MarkSynced(ctx context.Context, ids []string) error
	DeleteSynced(ctx context.Context) (int64, error)
	Counts(ctx context.Context) (models.PendingQuizCounts, error)
}

type manifestRebuilder interface {
	Build(ctx context.Context) (*BuildReport, error)
}

// SyncOptions mirrors the quiz-sync command line flags.
type SyncOptions struct {
	DryRun       bool
	All          bool
	DeleteSynced bool
}

// SyncReport summarises one sync run.
type SyncReport struct {
	Rows     int
	Written  int
	Skipped  int
	Marked   int
	Deleted  int64
	Manifest *BuildReport
}

// SyncService writes uploaded quizzes into the quiz tree and rebuilds the manifest.
type SyncService struct {
	repo    syncStore
	quizzes *storage.LocalStorage
	builder manifestRebuilder
	logger  *zap.Logger
}

// NewSyncService constructs a SyncService writing under quizzes.
func NewSyncService(repo syncStore, quizzes *storage.LocalStorage, builder manifestRebuilder, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{repo: repo, quizzes: quizzes, builder: builder, logger: logger}
}

// Status returns the staging table counts.
func (s *SyncService) Status(ctx context.Context) (models.PendingQuizCounts, error) {
	return s.repo.Counts(ctx)
}

// Sync writes pending rows to <path>/<filename> under the quizzes directory.
// Rows whose file already exists are skipped but still marked synced unless
// opts.All forces a rewrite. Dry runs stop before any write or database update.
// A manifest rebuild failure is logged and does not fail the run.
func (s *SyncService) Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	rows, err := s.repo.ListUnsynced(ctx, opts.All)
	if err != nil {
		return nil, err
	}
	report := &SyncReport{Rows: len(rows)}
	if len(rows) == 0 {
		s.logger.Info("nothing to sync")
		return report, nil
	}
	s.logger.Info("quizzes to sync", zap.Int("rows", len(rows)), zap.Bool("dry_run", opts.DryRun))

	var synced []string
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rel := path.Join(strings.Trim(row.Path, "/"), row.Filename)
		if _, err := s.quizzes.Resolve(rel); err != nil || row.Filename == "" || strings.Contains(row.Filename, "/") {
			s.logger.Warn("skipped quiz outside quizzes directory", zap.String("path", row.Path), zap.String("filename", row.Filename))
			report.Skipped++
			continue
		}

		exists, err := s.quizzes.Exists(rel)
		if err != nil {
			s.logger.Warn("failed to stat quiz file", zap.String("file", rel), zap.Error(err))
			report.Skipped++
			continue
		}
		if exists && !opts.All {
			s.logger.Info("quiz file exists", zap.String("file", rel))
			synced = append(synced, row.ID)
			report.Skipped++
			continue
		}

		if opts.DryRun {
			s.logger.Info("would write quiz", zap.String("file", rel))
			report.Written++
			continue
		}

		data, err := marshalIndented(row.Data)
		if err != nil {
			s.logger.Warn("failed to encode quiz", zap.String("id", row.ID), zap.Error(err))
			report.Skipped++
			continue
		}
		if err := s.quizzes.WriteAtomic(rel, data); err != nil {
			if errors.Is(err, storage.ErrOutsideBase) {
				s.logger.Warn("skipped quiz outside quizzes directory", zap.String("file", rel))
			} else {
				s.logger.Error("failed to write quiz", zap.String("file", rel), zap.Error(err))
			}
			report.Skipped++
			continue
		}
		s.logger.Info("quiz written", zap.String("file", rel))
		synced = append(synced, row.ID)
		report.Written++
	}
	s.logger.Info("sync pass finished", zap.Int("written", report.Written), zap.Int("skipped", report.Skipped))

	if opts.DryRun {
		return report, nil
	}

	if err := s.repo.MarkSynced(ctx, synced); err != nil {
		s.logger.Warn("could not mark quizzes synced", zap.Error(err))
	} else {
		report.Marked = len(synced)
	}

	if s.builder != nil {
		build, err := s.builder.Build(ctx)
		if err != nil {
			s.logger.Error("manifest rebuild failed", zap.Error(err))
		} else {
			report.Manifest = build
		}
	}

	if opts.DeleteSynced {
		n, err := s.repo.DeleteSynced(ctx)
		if err != nil {
			s.logger.Error("failed to delete synced rows", zap.Error(err))
		} else {
			report.Deleted = n
			s.logger.Info("synced rows deleted", zap.Int64("rows", n))
		}
	}
	return report, nil
}
