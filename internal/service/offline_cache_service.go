package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
	"github.com/noah-isme/basmagi-quiz/pkg/jobs"
)

// Background job types run on the offline queue.
const (
	JobTypeSweep       = "offline.sweep"
	JobTypeUpdateCheck = "offline.update-check"
)

const (
	maxUpstreamBody = 32 << 20
	putTimeout      = 10 * time.Second
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200"><rect fill="#f0f0f0" width="200" height="200"/><text x="50%" y="50%" text-anchor="middle" fill="#999" font-family="sans-serif" font-size="14">Image Offline</text></svg>`

const offlineHTML = `<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>غير متصل - منصة إمتحانات بصمجي</title>
</head>
<body>
<h1>أنت غير متصل بالإنترنت</h1>
<p>يبدو أن اتصالك بالإنترنت مفقود. يرجى التحقق من الاتصال والمحاولة مرة أخرى.</p>
<button onclick="location.reload()">إعادة المحاولة</button>
</body>
</html>
`

var errUpstreamTooLarge = errors.New("upstream body exceeds size limit")

var imagePattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|svg)$`)

// forwardedHeaders are copied from the client request to the origin.
var forwardedHeaders = []string{"Accept", "Accept-Language", "User-Agent", "Content-Type", "Authorization"}

// hopHeaders are never copied from the origin response.
var hopHeaders = []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Proxy-Authenticate", "Trailer", "Content-Length"}

// CacheStorage is a set of named stores of responses keyed by request URL.
type CacheStorage interface {
	Match(ctx context.Context, store, key string) (*models.CachedResponse, error)
	Put(ctx context.Context, store string, entry *models.CachedResponse) error
	Delete(ctx context.Context, store, key string) error
	Keys(ctx context.Context, store string) ([]string, error)
	Stores(ctx context.Context) ([]string, error)
	DeleteStore(ctx context.Context, store string) error
}

// HTTPDoer issues upstream requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CacheNames returns the static and image store names for a prefix and version.
func CacheNames(prefix, version string) (static, images string) {
	base := prefix + version
	return base + "-static", base + "-images"
}

// FetchResult is the response produced for one intercepted request.
type FetchResult struct {
	Status int
	Header http.Header
	Body   []byte
	Source models.FetchSource
}

// OfflineCacheService implements the caching worker: install/activate lifecycle,
// network-first fetches, the bulk pre-cache sweep and update detection.
type OfflineCacheService struct {
	cfg          config.OfflineConfig
	staticStore  string
	imageStore   string
	origin       *url.URL
	storage      CacheStorage
	client       HTTPDoer
	notifier     *Notifier
	metrics      *MetricsService
	logger       *zap.Logger
	queue        *jobs.Queue
	now          func() time.Time
	shellAssets  []string
	manifestPath string
	maxBody      int64

	mu              sync.RWMutex
	state           models.LifecycleState
	sweep           models.SweepStatus
	lastUpdateCheck *time.Time
	// manifestDigest is the sha256 of the manifest the last sweep or update check processed.
	// Fetch write-through never touches it.
	manifestDigest [sha256.Size]byte
	hasManifest    bool

	background sync.WaitGroup
}

// NewOfflineCacheService validates cfg and constructs the service. The version
// is taken from cfg.CacheVersion and threaded into every store name.
func NewOfflineCacheService(cfg config.OfflineConfig, storage CacheStorage, client HTTPDoer, notifier *Notifier, metrics *MetricsService, logger *zap.Logger) (*OfflineCacheService, error) {
	if storage == nil {
		return nil, errors.New("offline cache: storage is required")
	}
	if cfg.CacheVersion == "" {
		return nil, errors.New("offline cache: version is required")
	}
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("offline cache: invalid origin url %q", cfg.OriginURL)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewNotifier(0, metrics, logger)
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 5
	}
	if cfg.ImageCacheLimit <= 0 {
		cfg.ImageCacheLimit = 100
	}

	static, images := CacheNames(cfg.CachePrefix, cfg.CacheVersion)
	svc := &OfflineCacheService{
		cfg:          cfg,
		staticStore:  static,
		imageStore:   images,
		origin:       origin,
		storage:      storage,
		client:       client,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger.With(zap.String("cache_version", cfg.CacheVersion)),
		now:          time.Now,
		manifestPath: cfg.ManifestPath,
		maxBody:      maxUpstreamBody,
		state:        models.LifecycleInstalling,
	}
	for _, asset := range cfg.ShellAssets {
		svc.shellAssets = append(svc.shellAssets, cacheKey(asset))
	}
	return svc, nil
}

// Version returns the cache version this service owns.
func (s *OfflineCacheService) Version() string {
	return s.cfg.CacheVersion
}

// State returns the current lifecycle state.
func (s *OfflineCacheService) State() models.LifecycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *OfflineCacheService) setState(state models.LifecycleState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.logger.Info("offline worker state changed", zap.String("state", string(state)))
}

// Start runs the background job queue. Sweeps and update checks are rejected until it runs.
func (s *OfflineCacheService) Start(ctx context.Context) {
	s.queue = jobs.NewQueue("offline-cache", s.handleJob, jobs.QueueConfig{
		Workers:    s.cfg.SweepWorkers,
		MaxRetries: retriesOrDisabled(s.cfg.SweepRetries),
		RetryDelay: 5 * time.Second,
		Logger:     s.logger,
	})
	s.queue.Start(ctx)
}

// Stop stops the queue and waits for background cache writes.
func (s *OfflineCacheService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
	s.Wait()
}

// Wait blocks until every detached cache write has finished.
func (s *OfflineCacheService) Wait() {
	s.background.Wait()
}

func retriesOrDisabled(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

// Install pre-caches the application shell. Individual failures are logged and never block installation.
func (s *OfflineCacheService) Install(ctx context.Context) {
	s.setState(models.LifecycleInstalling)
	cached := 0
	for _, asset := range s.shellAssets {
		entry, err := s.fetchForCache(ctx, asset)
		if err != nil {
			s.logger.Warn("failed to pre-cache shell asset", zap.String("asset", asset), zap.Error(err))
			continue
		}
		if err := s.put(ctx, s.staticStore, entry); err != nil {
			s.logger.Warn("failed to store shell asset", zap.String("asset", asset), zap.Error(err))
			continue
		}
		cached++
	}
	s.logger.Info("shell assets cached", zap.Int("cached", cached), zap.Int("total", len(s.shellAssets)))
	s.setState(models.LifecycleInstalled)
}

// Activate removes stores of older versions, announces the worker to clients and
// starts a detached bulk sweep.
func (s *OfflineCacheService) Activate(ctx context.Context) error {
	s.setState(models.LifecycleActivating)

	stores, err := s.storage.Stores(ctx)
	if err != nil {
		s.logger.Warn("failed to list cache stores", zap.Error(err))
	}
	for _, name := range stores {
		if !strings.HasPrefix(name, s.cfg.CachePrefix) || name == s.staticStore || name == s.imageStore {
			continue
		}
		if err := s.storage.DeleteStore(ctx, name); err != nil {
			s.logger.Warn("failed to delete old cache store", zap.String("store", name), zap.Error(err))
			continue
		}
		s.logger.Info("deleted old cache store", zap.String("store", name))
	}

	s.setState(models.LifecycleActivated)
	s.notifier.Broadcast(models.WorkerMessage{Type: models.MessageWorkerActivated, Version: s.cfg.CacheVersion})

	if _, err := s.TriggerSweep(); err != nil {
		s.logger.Warn("failed to schedule initial sweep", zap.Error(err))
	}
	return nil
}

// SkipWaiting activates a worker that is waiting in the installed state.
func (s *OfflineCacheService) SkipWaiting(ctx context.Context) error {
	if s.State() != models.LifecycleInstalled {
		return nil
	}
	return s.Activate(ctx)
}

// Fetch answers one intercepted request. It always produces a response.
func (s *OfflineCacheService) Fetch(ctx context.Context, req *http.Request) *FetchResult {
	result := s.fetch(ctx, req)
	s.metrics.RecordFetch(result.Source)
	return result
}

func (s *OfflineCacheService) fetch(ctx context.Context, req *http.Request) *FetchResult {
	if req.Method != http.MethodGet || s.State() != models.LifecycleActivated {
		return s.passthrough(ctx, req)
	}

	key := req.URL.RequestURI()
	if isImageRequest(req) {
		return s.cacheFirst(ctx, req, key)
	}
	return s.networkFirst(ctx, req, key)
}

func (s *OfflineCacheService) passthrough(ctx context.Context, req *http.Request) *FetchResult {
	resp, err := s.forward(ctx, req.Method, req.URL.RequestURI(), req.Header, req.Body)
	if err != nil {
		s.logger.Warn("passthrough fetch failed", zap.String("url", req.URL.RequestURI()), zap.Error(err))
		return syntheticUnavailable("Offline")
	}
	resp.Source = models.SourcePassthrough
	return resp
}

func (s *OfflineCacheService) networkFirst(ctx context.Context, req *http.Request, key string) *FetchResult {
	resp, err := s.forward(ctx, http.MethodGet, key, req.Header, nil)
	if err == nil && isOK(resp.Status) {
		s.putDetached(s.staticStore, toEntry(key, resp), 0)
		return resp
	}
	if err != nil {
		s.logger.Debug("network failed, trying cache", zap.String("url", key), zap.Error(err))
	}

	if cached := s.matchAny(ctx, key); cached != nil {
		return fromEntry(cached, models.SourceCache)
	}
	if err == nil {
		// Reachable origin answered with an error status and nothing is cached.
		return resp
	}
	if isNavigation(req) {
		return s.offlinePage(ctx)
	}
	return syntheticUnavailable("Offline")
}

func (s *OfflineCacheService) cacheFirst(ctx context.Context, req *http.Request, key string) *FetchResult {
	if cached := s.match(ctx, s.imageStore, key); cached != nil {
		return fromEntry(cached, models.SourceCache)
	}
	resp, err := s.forward(ctx, http.MethodGet, key, req.Header, nil)
	if err != nil {
		s.logger.Warn("failed to fetch image", zap.String("url", key), zap.Error(err))
		return &FetchResult{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"image/svg+xml"}},
			Body:   []byte(placeholderSVG),
			Source: models.SourcePlaceholder,
		}
	}
	if isOK(resp.Status) {
		s.putDetached(s.imageStore, toEntry(key, resp), s.cfg.ImageCacheLimit)
	}
	return resp
}

func (s *OfflineCacheService) offlinePage(ctx context.Context) *FetchResult {
	if s.cfg.OfflinePage != "" {
		if cached := s.matchAny(ctx, cacheKey(s.cfg.OfflinePage)); cached != nil {
			return fromEntry(cached, models.SourceOfflinePage)
		}
	}
	return &FetchResult{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:   []byte(offlineHTML),
		Source: models.SourceOfflinePage,
	}
}

func syntheticUnavailable(body string) *FetchResult {
	return &FetchResult{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte(body),
		Source: models.SourceSynthetic,
	}
}

// forward sends a request to the origin and reads the whole body.
func (s *OfflineCacheService) forward(ctx context.Context, method, requestURI string, header http.Header, body io.Reader) (*FetchResult, error) {
	target, err := s.origin.Parse(requestURI)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", requestURI, err)
	}
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	for _, name := range forwardedHeaders {
		if v := header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", requestURI, err)
	}
	if int64(len(data)) > s.maxBody {
		return nil, fmt.Errorf("read %s: %w", requestURI, errUpstreamTooLarge)
	}
	out := resp.Header.Clone()
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return &FetchResult{Status: resp.StatusCode, Header: out, Body: data, Source: models.SourceNetwork}, nil
}

// fetchForCache fetches key and returns a cache entry, failing on non-OK statuses.
func (s *OfflineCacheService) fetchForCache(ctx context.Context, key string) (*models.CachedResponse, error) {
	resp, err := s.forward(ctx, http.MethodGet, key, http.Header{}, nil)
	if err != nil {
		return nil, err
	}
	if !isOK(resp.Status) {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", key, resp.Status)
	}
	return toEntry(key, resp), nil
}

func (s *OfflineCacheService) match(ctx context.Context, store, key string) *models.CachedResponse {
	start := time.Now()
	entry, err := s.storage.Match(ctx, store, key)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache lookup failed", zap.String("store", store), zap.String("url", key), zap.Error(err))
		}
		return nil
	}
	return entry
}

func (s *OfflineCacheService) matchAny(ctx context.Context, key string) *models.CachedResponse {
	if entry := s.match(ctx, s.staticStore, key); entry != nil {
		return entry
	}
	return s.match(ctx, s.imageStore, key)
}

func (s *OfflineCacheService) put(ctx context.Context, store string, entry *models.CachedResponse) error {
	start := time.Now()
	err := s.storage.Put(ctx, store, entry)
	s.metrics.ObserveCacheWrite(time.Since(start))
	return err
}

// putDetached writes entry without delaying the response. Failures are logged only.
func (s *OfflineCacheService) putDetached(store string, entry *models.CachedResponse, limit int) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
		defer cancel()
		if err := s.put(ctx, store, entry); err != nil {
			s.logger.Warn("cache write failed", zap.String("store", store), zap.String("url", entry.URL), zap.Error(err))
			return
		}
		if limit > 0 {
			s.trimStore(ctx, store, limit)
		}
	}()
}

// trimStore evicts the oldest entries until store holds at most limit keys.
func (s *OfflineCacheService) trimStore(ctx context.Context, store string, limit int) {
	keys, err := s.storage.Keys(ctx, store)
	if err != nil {
		s.logger.Warn("failed to list cache keys", zap.String("store", store), zap.Error(err))
		return
	}
	for i := 0; i < len(keys)-limit; i++ {
		if err := s.storage.Delete(ctx, store, keys[i]); err != nil {
			s.logger.Warn("failed to evict cache entry", zap.String("store", store), zap.String("url", keys[i]), zap.Error(err))
		}
	}
}

// TriggerSweep schedules a detached bulk sweep and returns its job ID.
// Repeated triggers start additional sweeps rather than restarting one.
func (s *OfflineCacheService) TriggerSweep() (string, error) {
	return s.enqueue(JobTypeSweep)
}

// TriggerUpdateCheck schedules a detached update check and returns its job ID.
func (s *OfflineCacheService) TriggerUpdateCheck() (string, error) {
	return s.enqueue(JobTypeUpdateCheck)
}

func (s *OfflineCacheService) enqueue(jobType string) (string, error) {
	if s.queue == nil {
		return "", fmt.Errorf("offline cache: queue not started")
	}
	return s.queue.TryEnqueue(jobs.Job{Type: jobType})
}

func (s *OfflineCacheService) handleJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeSweep:
		return s.Sweep(ctx)
	case JobTypeUpdateCheck:
		_, err := s.CheckForUpdates(ctx)
		return err
	default:
		return fmt.Errorf("unknown offline job type %q", job.Type)
	}
}

// Sweep fetches the manifest and caches every quiz it references in batches,
// posting progress to clients. A failure of the sweep itself is reported as
// CACHE_ERROR and returned; failures of single assets only reduce the count.
func (s *OfflineCacheService) Sweep(ctx context.Context) error {
	started := s.now().UTC()
	s.mu.Lock()
	s.sweep = models.SweepStatus{Running: true, StartedAt: &started}
	s.mu.Unlock()

	cached, total, err := s.sweepAssets(ctx)

	finished := s.now().UTC()
	s.mu.Lock()
	s.sweep.Running = false
	s.sweep.Cached = cached
	s.sweep.Total = total
	s.sweep.FinishedAt = &finished
	if err != nil {
		s.sweep.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("bulk sweep failed", zap.Error(err))
		s.metrics.RecordSweep(SweepOutcomeFailed)
		s.notifier.Broadcast(models.WorkerMessage{Type: models.MessageCacheError, Error: err.Error()})
		return err
	}

	s.logger.Info("bulk sweep complete", zap.Int("cached", cached), zap.Int("total", total))
	s.metrics.RecordSweep(SweepOutcomeComplete)
	s.notifier.Broadcast(models.ProgressMessage(models.MessageCacheComplete, cached, total))
	return nil
}

func (s *OfflineCacheService) sweepAssets(ctx context.Context) (int, int, error) {
	manifestEntry, err := s.fetchForCache(ctx, cacheKey(s.manifestPath))
	if err != nil {
		return 0, 0, fmt.Errorf("fetch manifest: %w", err)
	}
	var manifest models.Manifest
	if err := json.Unmarshal(manifestEntry.Body, &manifest); err != nil {
		return 0, 0, fmt.Errorf("decode manifest: %w", err)
	}
	if err := s.put(ctx, s.staticStore, manifestEntry); err != nil {
		s.logger.Warn("failed to cache manifest", zap.Error(err))
	}

	paths := manifest.QuizPaths()
	total := len(paths)
	var cached int64
	s.metrics.SetSweepProgress(0, total)

	for start := 0; start < total; start += s.cfg.SweepBatchSize {
		if start > 0 && s.cfg.SweepBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return int(cached), total, ctx.Err()
			case <-time.After(s.cfg.SweepBatchDelay):
			}
		}

		end := min(start+s.cfg.SweepBatchSize, total)
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range paths[start:end] {
			key := cacheKey(p)
			g.Go(func() error {
				entry, err := s.fetchForCache(gctx, key)
				if err != nil {
					s.logger.Warn("failed to cache quiz", zap.String("url", key), zap.Error(err))
					return nil
				}
				if err := s.put(gctx, s.staticStore, entry); err != nil {
					s.logger.Warn("failed to store quiz", zap.String("url", key), zap.Error(err))
					return nil
				}
				atomic.AddInt64(&cached, 1)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return int(cached), total, err
		}

		n := int(atomic.LoadInt64(&cached))
		s.mu.Lock()
		s.sweep.Cached = n
		s.sweep.Total = total
		s.mu.Unlock()
		s.metrics.SetSweepProgress(n, total)
		s.notifier.Broadcast(models.ProgressMessage(models.MessageCacheProgress, n, total))
	}
	s.recordManifest(manifestEntry.Body)
	return int(cached), total, nil
}

func (s *OfflineCacheService) recordManifest(body []byte) {
	digest := sha256.Sum256(body)
	s.mu.Lock()
	s.manifestDigest = digest
	s.hasManifest = true
	s.mu.Unlock()
}

func (s *OfflineCacheService) manifestChanged(body []byte) bool {
	digest := sha256.Sum256(body)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.hasManifest || s.manifestDigest != digest
}

// CheckForUpdates re-fetches the manifest and compares it with the one the last
// sweep processed. When it differs the new copy is cached, a sweep is scheduled
// and clients are notified.
func (s *OfflineCacheService) CheckForUpdates(ctx context.Context) (bool, error) {
	checked := s.now().UTC()
	s.mu.Lock()
	s.lastUpdateCheck = &checked
	s.mu.Unlock()

	key := cacheKey(s.manifestPath)
	fresh, err := s.fetchForCache(ctx, key)
	if err != nil {
		s.logger.Warn("update check failed", zap.Error(err))
		return false, err
	}

	if !s.manifestChanged(fresh.Body) {
		return false, nil
	}
	s.recordManifest(fresh.Body)

	if err := s.put(ctx, s.staticStore, fresh); err != nil {
		s.logger.Warn("failed to cache updated manifest", zap.Error(err))
	}
	s.logger.Info("new quiz content detected")
	s.notifier.Broadcast(models.WorkerMessage{Type: models.MessageNewQuizzesAvailable, Version: s.cfg.CacheVersion})
	if _, err := s.TriggerSweep(); err != nil {
		s.logger.Warn("failed to schedule sweep after update", zap.Error(err))
	}
	return true, nil
}

// RunUpdateLoop schedules an update check every interval until ctx ends.
func (s *OfflineCacheService) RunUpdateLoop(ctx context.Context) {
	if s.cfg.UpdateInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State() != models.LifecycleActivated {
				continue
			}
			if _, err := s.TriggerUpdateCheck(); err != nil {
				s.logger.Warn("failed to schedule update check", zap.Error(err))
			}
		}
	}
}

// ClearCache deletes every store owned by this application.
func (s *OfflineCacheService) ClearCache(ctx context.Context) (int, error) {
	stores, err := s.storage.Stores(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range stores {
		if !strings.HasPrefix(name, s.cfg.CachePrefix) {
			continue
		}
		if err := s.storage.DeleteStore(ctx, name); err != nil {
			return deleted, fmt.Errorf("delete store %s: %w", name, err)
		}
		deleted++
	}
	s.logger.Info("cache cleared", zap.Int("stores", deleted))
	return deleted, nil
}

// HandleMessage applies a client command. Long running work is detached and its job ID returned.
func (s *OfflineCacheService) HandleMessage(ctx context.Context, msg models.ClientMessage) (string, error) {
	switch msg.Type {
	case models.MessageSkipWaiting:
		return "", s.SkipWaiting(ctx)
	case models.MessageCheckForUpdates:
		return s.TriggerUpdateCheck()
	case models.MessageRecacheExams:
		return s.TriggerSweep()
	case models.MessageClearCache:
		_, err := s.ClearCache(ctx)
		return "", err
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// Status reports the worker state for the status endpoint.
func (s *OfflineCacheService) Status(ctx context.Context) models.WorkerStatus {
	s.mu.RLock()
	status := models.WorkerStatus{
		State:           s.state,
		Version:         s.cfg.CacheVersion,
		Sweep:           s.sweep,
		LastUpdateCheck: s.lastUpdateCheck,
	}
	s.mu.RUnlock()

	status.Clients = s.notifier.Count()
	stores, err := s.storage.Stores(ctx)
	if err != nil {
		s.logger.Warn("failed to list cache stores", zap.Error(err))
	}
	status.Caches = []string{}
	for _, name := range stores {
		if strings.HasPrefix(name, s.cfg.CachePrefix) {
			status.Caches = append(status.Caches, name)
		}
	}
	return status
}

// Notifier returns the client fan-out used by the service.
func (s *OfflineCacheService) Notifier() *Notifier {
	return s.notifier
}

func toEntry(key string, resp *FetchResult) *models.CachedResponse {
	return &models.CachedResponse{
		URL:      key,
		Status:   resp.Status,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), resp.Body...),
		StoredAt: time.Now().UTC(),
	}
}

func fromEntry(e *models.CachedResponse, source models.FetchSource) *FetchResult {
	return &FetchResult{Status: e.Status, Header: e.Header.Clone(), Body: e.Body, Source: source}
}

// cacheKey turns a root-relative path into the escaped request URI used as a store key.
func cacheKey(p string) string {
	u, err := url.Parse(p)
	if err != nil || u.Path == "" && u.RawQuery == "" {
		return (&url.URL{Path: "/" + strings.TrimLeft(p, "/")}).RequestURI()
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.RequestURI()
}

func isOK(status int) bool {
	return status >= 200 && status < 300
}

func isImageRequest(req *http.Request) bool {
	if imagePattern.MatchString(path.Ext(req.URL.Path)) {
		return true
	}
	return strings.HasPrefix(req.Header.Get("Sec-Fetch-Dest"), "image")
}

func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
