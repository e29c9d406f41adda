package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
	"github.com/noah-isme/basmagi-quiz/pkg/quizid"
	"github.com/noah-isme/basmagi-quiz/pkg/storage"
)

// Hierarchy depths below the quizzes root.
const (
	depthFaculty = iota
	depthYear
	depthTerm
	depthCourse
	depthSubfolder
)

const (
	defaultDataRoot    = "data/quizzes"
	manifestTimeLayout = "2006-01-02T15:04:05.000Z"
)

// PendingWrite is one deferred filesystem change produced by Scan.
// Paths are slash separated and relative to the data directory.
type PendingWrite struct {
	Rel    string
	Data   []byte
	Remove []string
}

// ScanResult is the outcome of the read-only pass over the quiz tree.
type ScanResult struct {
	Subjects []models.Subject
	Writes   []PendingWrite
	Skipped  int
}

// BuildReport summarises a full manifest build.
type BuildReport struct {
	Subjects        int
	Quizzes         int
	FilesWritten    int
	FilesRemoved    int
	Skipped         int
	ManifestWritten bool
	Faculties       []string
	Years           []int
	Terms           []int
}

// ManifestBuilder walks Faculty/Year/Term/Course/Subfolder directories, enriches
// quiz files and produces the manifest.
type ManifestBuilder struct {
	cfg      config.ManifestConfig
	migrator *QuizMigrator
	data     *storage.LocalStorage
	output   *storage.LocalStorage
	logger   *zap.Logger
	now      func() time.Time
}

// NewManifestBuilder validates the layout and constructs a builder.
func NewManifestBuilder(cfg config.ManifestConfig, migrator *QuizMigrator, logger *zap.Logger) (*ManifestBuilder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if migrator == nil {
		migrator = NewQuizMigrator()
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = defaultDataRoot
	}
	cfg.URLPrefix = "/" + strings.Trim(cfg.URLPrefix, "/")

	data, err := storage.NewLocalStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	quizzes, err := filepath.Abs(cfg.QuizzesDir)
	if err != nil {
		return nil, fmt.Errorf("resolve quizzes directory: %w", err)
	}
	if rel, err := filepath.Rel(data.Base(), quizzes); err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("quizzes directory %s must be inside data directory %s", cfg.QuizzesDir, cfg.DataDir)
	}
	cfg.QuizzesDir = quizzes

	output, err := storage.NewLocalStorage(filepath.Dir(cfg.OutputPath))
	if err != nil {
		return nil, err
	}

	return &ManifestBuilder{
		cfg:      cfg,
		migrator: migrator,
		data:     data,
		output:   output,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Build scans the tree, rejects duplicate IDs, applies the pending writes and
// writes the manifest. Nothing is written when validation fails.
func (b *ManifestBuilder) Build(ctx context.Context) (*BuildReport, error) {
	b.logger.Info("scanning quiz tree", zap.String("dir", b.cfg.QuizzesDir))
	scan, err := b.Scan(ctx)
	if err != nil {
		return nil, err
	}

	if err := ValidateUniqueIDs(scan.Subjects); err != nil {
		var dup *DuplicateIDError
		if errors.As(err, &dup) {
			for _, c := range dup.Quizzes {
				b.logger.Error("duplicate quiz id", zap.String("id", c.ID), zap.Int("count", c.Count))
			}
			for _, c := range dup.Subjects {
				b.logger.Error("duplicate subject id", zap.String("id", c.ID), zap.Int("count", c.Count))
			}
		}
		return nil, err
	}

	written, removed, err := b.Apply(ctx, scan.Writes)
	if err != nil {
		return nil, err
	}

	changed, err := b.writeManifest(scan.Subjects)
	if err != nil {
		return nil, err
	}

	report := summarize(scan)
	report.FilesWritten = written
	report.FilesRemoved = removed
	report.ManifestWritten = changed

	b.logger.Info("manifest build complete",
		zap.Int("subjects", report.Subjects),
		zap.Int("quizzes", report.Quizzes),
		zap.Int("files_written", written),
		zap.Int("files_removed", removed),
		zap.Int("skipped", report.Skipped),
		zap.Bool("manifest_written", changed),
		zap.Strings("faculties", report.Faculties),
		zap.Ints("years", report.Years),
		zap.Ints("terms", report.Terms),
	)
	return report, nil
}

// Scan walks the tree without touching the filesystem and returns the subject list
// plus every write the enrichment requires.
func (b *ManifestBuilder) Scan(ctx context.Context) (*ScanResult, error) {
	if _, err := os.Stat(b.cfg.QuizzesDir); err != nil {
		return nil, fmt.Errorf("quizzes directory: %w", err)
	}
	w := &walker{builder: b, ctx: ctx, result: &ScanResult{Subjects: []models.Subject{}}}
	if err := w.dir(b.cfg.QuizzesDir, depthFaculty, walkContext{}); err != nil {
		return nil, err
	}
	return w.result, nil
}

// Apply performs the writes produced by Scan. Every file is written atomically; a
// failure leaves the original untouched and is returned after the remaining writes run.
func (b *ManifestBuilder) Apply(ctx context.Context, writes []PendingWrite) (written, removed int, err error) {
	var errs []error
	for _, w := range writes {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return written, removed, ctxErr
		}
		if w.Data != nil {
			if writeErr := b.data.WriteAtomic(w.Rel, w.Data); writeErr != nil {
				errs = append(errs, writeErr)
				b.logger.Error("enrich write failed", zap.String("file", w.Rel), zap.Error(writeErr))
				continue
			}
			written++
			b.logger.Info("enriched quiz file", zap.String("file", w.Rel))
		}
		for _, rel := range w.Remove {
			if rmErr := b.data.Delete(rel); rmErr != nil {
				errs = append(errs, rmErr)
				continue
			}
			removed++
			b.logger.Info("removed legacy quiz module", zap.String("file", rel))
		}
	}
	return written, removed, errors.Join(errs...)
}

// writeManifest keeps the existing file, including its generatedAt, when the subject list is unchanged.
func (b *ManifestBuilder) writeManifest(subjects []models.Subject) (bool, error) {
	name := filepath.Base(b.cfg.OutputPath)
	subjectBytes, err := marshalIndented(subjects)
	if err != nil {
		return false, fmt.Errorf("encode subjects: %w", err)
	}

	if existing, readErr := b.output.ReadFile(name); readErr == nil {
		var previous struct {
			DataRoot string          `json:"dataRoot"`
			Subjects json.RawMessage `json:"subjects"`
		}
		if json.Unmarshal(existing, &previous) == nil && previous.DataRoot == b.cfg.DataRoot {
			var prevSubjects []models.Subject
			if json.Unmarshal(previous.Subjects, &prevSubjects) == nil && prevSubjects != nil {
				prevBytes, _ := marshalIndented(prevSubjects)
				if bytes.Equal(prevBytes, subjectBytes) {
					b.logger.Info("manifest unchanged", zap.String("file", b.cfg.OutputPath))
					return false, nil
				}
			}
		}
	}

	manifest := models.Manifest{
		GeneratedAt: b.now().UTC().Format(manifestTimeLayout),
		DataRoot:    b.cfg.DataRoot,
		Subjects:    subjects,
	}
	data, err := marshalIndented(manifest)
	if err != nil {
		return false, fmt.Errorf("encode manifest: %w", err)
	}
	if err := b.output.WriteAtomic(name, data); err != nil {
		return false, err
	}
	b.logger.Info("manifest written", zap.String("file", b.cfg.OutputPath))
	return true, nil
}

type walkContext struct {
	faculty   string
	year      string
	term      string
	courseIdx int
	inCourse  bool
	subfolder string
}

type walker struct {
	builder *ManifestBuilder
	ctx     context.Context
	result  *ScanResult
}

func (w *walker) dir(dir string, depth int, wc walkContext) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	log := w.builder.logger

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("cannot read directory, skipping", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		names[e.Name()] = struct{}{}
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)

		if entry.IsDir() {
			next := wc
			switch depth {
			case depthFaculty:
				log.Debug("faculty", zap.String("name", name))
				next = walkContext{faculty: name}
			case depthYear:
				log.Debug("year", zap.String("name", name))
				next.year = name
			case depthTerm:
				log.Debug("term", zap.String("name", name))
				next.term = name
			case depthCourse:
				next.courseIdx = w.addSubject(full, name, wc)
				next.inCourse = true
				next.subfolder = ""
			default:
				next.subfolder = path.Join(wc.subfolder, name)
				log.Debug("subfolder", zap.String("path", next.subfolder))
			}
			if err := w.dir(full, depth+1, next); err != nil {
				return err
			}
			continue
		}

		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".js" {
			continue
		}
		if depth < depthSubfolder || !wc.inCourse {
			log.Warn("quiz file outside a course, skipping", zap.String("file", full), zap.Int("depth", depth))
			w.result.Skipped++
			continue
		}

		base := strings.TrimSuffix(name, filepath.Ext(name))
		if ext == ".js" {
			if _, ok := names[base+".json"]; ok {
				continue
			}
		}
		if err := w.quiz(full, base, ext, names, wc); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) addSubject(full, name string, wc walkContext) int {
	b := w.builder
	rel, _ := filepath.Rel(b.data.Base(), full)
	id := quizid.Generate(filepath.ToSlash(rel))

	subject := models.Subject{
		ID:      id,
		Name:    name,
		Faculty: wc.faculty,
		Year:    b.parseLevel("year", wc.year),
		Term:    b.parseLevel("term", wc.term),
		Quizzes: []models.QuizEntry{},
	}
	b.logger.Info("course", zap.String("name", name), zap.String("id", id))
	w.result.Subjects = append(w.result.Subjects, subject)
	return len(w.result.Subjects) - 1
}

func (w *walker) quiz(full, base, ext string, siblings map[string]struct{}, wc walkContext) error {
	b := w.builder
	log := b.logger

	rel, err := filepath.Rel(b.data.Base(), full)
	if err != nil {
		return fmt.Errorf("relative path for %s: %w", full, err)
	}
	rel = filepath.ToSlash(rel)
	canonical := strings.TrimSuffix(rel, path.Ext(rel)) + ".json"

	source, err := os.ReadFile(full)
	if err != nil {
		log.Warn("cannot read quiz file, skipping", zap.String("file", full), zap.Error(err))
		w.result.Skipped++
		return nil
	}
	rec, err := b.migrator.DecodeSource(source, ext)
	if err != nil {
		log.Warn("cannot parse quiz file, skipping", zap.String("file", full), zap.Error(err))
		w.result.Skipped++
		return nil
	}

	b.migrator.Enrich(rec, EnrichInput{CanonicalPath: canonical, BaseName: base})

	enriched, err := marshalIndented(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}

	// A .js module is only removed after its .json replacement is written.
	pending := PendingWrite{Rel: canonical}
	if ext == ".js" || !bytes.Equal(source, enriched) {
		pending.Data = enriched
	}
	if ext == ".js" {
		pending.Remove = append(pending.Remove, rel)
	} else if _, ok := siblings[base+".js"]; ok {
		pending.Remove = append(pending.Remove, path.Join(path.Dir(rel), base+".js"))
	}
	if pending.Data != nil || len(pending.Remove) > 0 {
		w.result.Writes = append(w.result.Writes, pending)
	}

	entry := models.QuizEntry{
		ID:            rec.Meta.ID,
		Title:         rec.Meta.Title,
		Path:          b.cfg.URLPrefix + "/" + canonical,
		QuestionCount: rec.Stats.QuestionCount,
		QuestionTypes: rec.Stats.QuestionTypes,
		Description:   rec.Meta.Description,
		Author:        rec.Meta.Author,
		Source:        rec.Meta.Source,
	}
	log.Debug("quiz", zap.String("title", entry.Title), zap.String("id", entry.ID), zap.String("subfolder", wc.subfolder))

	subject := &w.result.Subjects[wc.courseIdx]
	subject.Quizzes = append(subject.Quizzes, entry)
	return nil
}

// parseLevel reads the leading digits of a year or term directory name; names without digits yield 0.
func (b *ManifestBuilder) parseLevel(kind, name string) int {
	n, ok := leadingNumber(name)
	if !ok {
		b.logger.Warn("non-numeric "+kind+" directory", zap.String("name", name))
	}
	return n
}

func leadingNumber(name string) (int, bool) {
	digits := strings.TrimSpace(name)
	if end := strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) || r > unicode.MaxASCII }); end >= 0 {
		digits = digits[:end]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func summarize(scan *ScanResult) *BuildReport {
	report := &BuildReport{Subjects: len(scan.Subjects), Skipped: scan.Skipped}
	faculties := map[string]struct{}{}
	years := map[int]struct{}{}
	terms := map[int]struct{}{}
	for _, s := range scan.Subjects {
		report.Quizzes += len(s.Quizzes)
		faculties[s.Faculty] = struct{}{}
		years[s.Year] = struct{}{}
		terms[s.Term] = struct{}{}
	}
	for f := range faculties {
		report.Faculties = append(report.Faculties, f)
	}
	for y := range years {
		report.Years = append(report.Years, y)
	}
	for t := range terms {
		report.Terms = append(report.Terms, t)
	}
	sort.Strings(report.Faculties)
	sort.Ints(report.Years)
	sort.Ints(report.Terms)
	return report
}

// marshalIndented encodes with two-space indentation, without HTML escaping or a trailing newline.
func marshalIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
