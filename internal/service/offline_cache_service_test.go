package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/internal/repository"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
)

type fakeOrigin struct {
	mu    sync.Mutex
	files map[string]string
	hits  map[string]int
	srv   *httptest.Server
}

func newFakeOrigin(t *testing.T, files map[string]string) *fakeOrigin {
	t.Helper()
	o := &fakeOrigin{files: files, hits: map[string]int{}}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		body, ok := o.files[r.URL.Path]
		o.hits[r.URL.Path]++
		o.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".png") {
			w.Header().Set("Content-Type", "image/png")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *fakeOrigin) set(path, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[path] = body
}

func (o *fakeOrigin) hitCount(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

func offlineConfig(origin string) config.OfflineConfig {
	return config.OfflineConfig{
		OriginURL:       origin,
		CachePrefix:     "basmagi-",
		CacheVersion:    "v2.4.0",
		ShellAssets:     []string{"/", "/index.html", "/missing.css"},
		OfflinePage:     "/offline.html",
		ManifestPath:    "/data/quiz-manifest.json",
		SweepBatchSize:  2,
		SweepWorkers:    1,
		FetchTimeout:    2 * time.Second,
		ImageCacheLimit: 2,
	}
}

func newOfflineService(t *testing.T, origin *fakeOrigin) (*OfflineCacheService, *repository.MemoryCacheStorage) {
	t.Helper()
	storage := repository.NewMemoryCacheStorage()
	svc, err := NewOfflineCacheService(offlineConfig(origin.srv.URL), storage, origin.srv.Client(), nil, NewMetricsService(), nil)
	require.NoError(t, err)
	return svc, storage
}

func activated(svc *OfflineCacheService) {
	svc.mu.Lock()
	svc.state = models.LifecycleActivated
	svc.mu.Unlock()
}

func get(t *testing.T, target string, header ...string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return req
}

func manifestJSON(t *testing.T, paths ...string) string {
	t.Helper()
	quizzes := make([]models.QuizEntry, len(paths))
	for i, p := range paths {
		quizzes[i] = models.QuizEntry{ID: "Q", Path: p}
	}
	raw, err := json.Marshal(models.Manifest{DataRoot: "data/quizzes", Subjects: []models.Subject{{ID: "S", Quizzes: quizzes}}})
	require.NoError(t, err)
	return string(raw)
}

func drain(ch <-chan models.WorkerMessage) []models.WorkerMessage {
	var out []models.WorkerMessage
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestCacheNamesThreadVersion(t *testing.T) {
	static, images := CacheNames("basmagi-", "v3")
	assert.Equal(t, "basmagi-v3-static", static)
	assert.Equal(t, "basmagi-v3-images", images)
}

func TestNewOfflineCacheServiceValidates(t *testing.T) {
	_, err := NewOfflineCacheService(config.OfflineConfig{OriginURL: "http://x", CacheVersion: "v1"}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewOfflineCacheService(config.OfflineConfig{OriginURL: "::", CacheVersion: "v1"}, repository.NewMemoryCacheStorage(), nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewOfflineCacheService(config.OfflineConfig{OriginURL: "http://x"}, repository.NewMemoryCacheStorage(), nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestFetchNetworkFirstRefreshesStaleEntry(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/quiz.html": "fresh"})
	svc, storage := newOfflineService(t, origin)
	activated(svc)
	ctx := context.Background()
	require.NoError(t, storage.Put(ctx, svc.staticStore, &models.CachedResponse{URL: "/quiz.html", Status: 200, Header: http.Header{}, Body: []byte("stale")}))

	res := svc.Fetch(ctx, get(t, "/quiz.html"))
	svc.Wait()

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "fresh", string(res.Body))
	assert.Equal(t, models.SourceNetwork, res.Source)

	entry, err := storage.Match(ctx, svc.staticStore, "/quiz.html")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(entry.Body))
}

func TestFetchOfflineFallbacks(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{})
	svc, storage := newOfflineService(t, origin)
	activated(svc)
	ctx := context.Background()
	require.NoError(t, storage.Put(ctx, svc.staticStore, &models.CachedResponse{URL: "/summary.html", Status: 200, Header: http.Header{"Content-Type": []string{"text/html"}}, Body: []byte("cached summary")}))
	origin.srv.Close()

	res := svc.Fetch(ctx, get(t, "/summary.html", "Accept", "text/html"))
	assert.Equal(t, "cached summary", string(res.Body))
	assert.Equal(t, models.SourceCache, res.Source)

	res = svc.Fetch(ctx, get(t, "/never.html", "Accept", "text/html,application/xhtml+xml"))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, models.SourceOfflinePage, res.Source)
	assert.Contains(t, string(res.Body), "<html")

	require.NoError(t, storage.Put(ctx, svc.staticStore, &models.CachedResponse{URL: "/offline.html", Status: 200, Header: http.Header{}, Body: []byte("custom offline")}))
	res = svc.Fetch(ctx, get(t, "/never.html", "Sec-Fetch-Mode", "navigate"))
	assert.Equal(t, "custom offline", string(res.Body))

	res = svc.Fetch(ctx, get(t, "/js/app.js"))
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, models.SourceSynthetic, res.Source)
}

func TestFetchErrorStatusPrefersCache(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{})
	svc, storage := newOfflineService(t, origin)
	activated(svc)
	ctx := context.Background()
	require.NoError(t, storage.Put(ctx, svc.staticStore, &models.CachedResponse{URL: "/gone.html", Status: 200, Header: http.Header{}, Body: []byte("kept")}))

	res := svc.Fetch(ctx, get(t, "/gone.html"))
	assert.Equal(t, "kept", string(res.Body))

	res = svc.Fetch(ctx, get(t, "/unknown.json"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, models.SourceNetwork, res.Source)
}

func TestFetchImagesCacheFirstWithLimit(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/a.png": "A", "/b.png": "B", "/c.png": "C"})
	svc, storage := newOfflineService(t, origin)
	activated(svc)
	ctx := context.Background()

	for _, p := range []string{"/a.png", "/b.png", "/c.png"} {
		res := svc.Fetch(ctx, get(t, p))
		assert.Equal(t, models.SourceNetwork, res.Source)
		svc.Wait()
	}
	keys, err := storage.Keys(ctx, svc.imageStore)
	require.NoError(t, err)
	assert.Equal(t, []string{"/b.png", "/c.png"}, keys)

	res := svc.Fetch(ctx, get(t, "/c.png"))
	assert.Equal(t, models.SourceCache, res.Source)
	assert.Equal(t, 1, origin.hitCount("/c.png"))

	origin.srv.Close()
	res = svc.Fetch(ctx, get(t, "/a.png"))
	assert.Equal(t, models.SourcePlaceholder, res.Source)
	assert.Equal(t, "image/svg+xml", res.Header.Get("Content-Type"))
}

func TestFetchPassesThroughBeforeActivation(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/index.html": "live"})
	svc, storage := newOfflineService(t, origin)
	ctx := context.Background()

	res := svc.Fetch(ctx, get(t, "/index.html"))
	svc.Wait()
	assert.Equal(t, models.SourcePassthrough, res.Source)
	assert.Equal(t, "live", string(res.Body))
	_, err := storage.Match(ctx, svc.staticStore, "/index.html")
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))

	activated(svc)
	post := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{}`))
	res = svc.Fetch(ctx, post)
	assert.Equal(t, models.SourcePassthrough, res.Source)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestInstallAndActivateLifecycle(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/": "root", "/index.html": "index"})
	svc, storage := newOfflineService(t, origin)
	ctx := context.Background()
	require.NoError(t, storage.Put(ctx, "basmagi-v2.3.0-static", &models.CachedResponse{URL: "/", Header: http.Header{}}))
	require.NoError(t, storage.Put(ctx, "other-app", &models.CachedResponse{URL: "/", Header: http.Header{}}))

	_, ch, cancel := svc.Notifier().Subscribe()
	defer cancel()

	svc.Install(ctx)
	assert.Equal(t, models.LifecycleInstalled, svc.State())
	keys, err := storage.Keys(ctx, svc.staticStore)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/index.html"}, keys)

	require.NoError(t, svc.SkipWaiting(ctx))
	assert.Equal(t, models.LifecycleActivated, svc.State())

	stores, err := storage.Stores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"basmagi-v2.4.0-static", "other-app"}, stores)

	msgs := drain(ch)
	require.NotEmpty(t, msgs)
	assert.Equal(t, models.MessageWorkerActivated, msgs[0].Type)
	assert.Equal(t, "v2.4.0", msgs[0].Version)
}

func TestSweepCachesManifestQuizzesInBatches(t *testing.T) {
	files := map[string]string{
		"/data/quizzes/a.json":                  `{"a":1}`,
		"/data/quizzes/b.json":                  `{"b":1}`,
		"/data/quizzes/Computer Science/c.json": `{"c":1}`,
	}
	origin := newFakeOrigin(t, files)
	origin.set("/data/quiz-manifest.json", manifestJSON(t,
		"/data/quizzes/a.json", "/data/quizzes/b.json", "/data/quizzes/Computer Science/c.json", "/data/quizzes/missing.json", "/data/quizzes/a.json"))
	svc, storage := newOfflineService(t, origin)
	ctx := context.Background()
	_, ch, cancel := svc.Notifier().Subscribe()
	defer cancel()

	require.NoError(t, svc.Sweep(ctx))

	msgs := drain(ch)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.MessageCacheProgress, msgs[0].Type)
	assert.Equal(t, 2, *msgs[0].Cached)
	assert.Equal(t, 4, *msgs[0].Total)
	assert.Equal(t, models.MessageCacheProgress, msgs[1].Type)
	assert.Equal(t, models.MessageCacheComplete, msgs[2].Type)
	assert.Equal(t, 3, *msgs[2].Cached)
	assert.Equal(t, 4, *msgs[2].Total)

	entry, err := storage.Match(ctx, svc.staticStore, "/data/quizzes/Computer%20Science/c.json")
	require.NoError(t, err)
	assert.Equal(t, `{"c":1}`, string(entry.Body))
	_, err = storage.Match(ctx, svc.staticStore, "/data/quiz-manifest.json")
	require.NoError(t, err)

	status := svc.Status(ctx)
	assert.False(t, status.Sweep.Running)
	assert.Equal(t, 3, status.Sweep.Cached)
	assert.Equal(t, 4, status.Sweep.Total)
	assert.Equal(t, 1, status.Clients)
}

func TestSweepReportsManifestFailure(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{})
	svc, _ := newOfflineService(t, origin)
	_, ch, cancel := svc.Notifier().Subscribe()
	defer cancel()

	err := svc.Sweep(context.Background())
	require.Error(t, err)

	msgs := drain(ch)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageCacheError, msgs[0].Type)
	assert.NotEmpty(t, msgs[0].Error)
	assert.NotEmpty(t, svc.Status(context.Background()).Sweep.LastError)
}

func TestCheckForUpdatesDetectsChangedManifest(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/data/quizzes/a.json": "{}"})
	origin.set("/data/quiz-manifest.json", manifestJSON(t, "/data/quizzes/a.json"))
	svc, _ := newOfflineService(t, origin)
	activated(svc)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	svc.Start(ctx)
	defer svc.Stop()

	require.NoError(t, svc.Sweep(ctx))
	_, ch, cancel := svc.Notifier().Subscribe()
	defer cancel()

	changed, err := svc.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	origin.set("/data/quiz-manifest.json", manifestJSON(t, "/data/quizzes/a.json", "/data/quizzes/b.json"))
	changed, err = svc.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	var types []string
	deadline := time.After(5 * time.Second)
	for len(types) < 2 || types[len(types)-1] != models.MessageCacheComplete {
		select {
		case msg := <-ch:
			types = append(types, msg.Type)
		case <-deadline:
			t.Fatalf("sweep after update never completed, got %v", types)
		}
	}
	assert.Equal(t, models.MessageNewQuizzesAvailable, types[0])
	assert.NotNil(t, svc.Status(ctx).LastUpdateCheck)
}

func TestHandleMessage(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/": "root"})
	svc, storage := newOfflineService(t, origin)
	ctx := context.Background()

	_, err := svc.HandleMessage(ctx, models.ClientMessage{Type: "REBOOT"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.HandleMessage(ctx, models.ClientMessage{Type: models.MessageRecacheExams})
	assert.Error(t, err, "queue not started")

	require.NoError(t, storage.Put(ctx, "basmagi-v2.4.0-images", &models.CachedResponse{URL: "/a.png", Header: http.Header{}}))
	require.NoError(t, storage.Put(ctx, "basmagi-v1-static", &models.CachedResponse{URL: "/", Header: http.Header{}}))
	require.NoError(t, storage.Put(ctx, "foreign", &models.CachedResponse{URL: "/", Header: http.Header{}}))
	_, err = svc.HandleMessage(ctx, models.ClientMessage{Type: models.MessageClearCache})
	require.NoError(t, err)
	stores, err := storage.Stores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foreign"}, stores)

	svc.Install(ctx)
	_, err = svc.HandleMessage(ctx, models.ClientMessage{Type: models.MessageSkipWaiting})
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleActivated, svc.State())
}

func TestCacheKeyEscapesPaths(t *testing.T) {
	assert.Equal(t, "/data/quizzes/Computer%20Science/Quiz%201.json", cacheKey("/data/quizzes/Computer Science/Quiz 1.json"))
	assert.Equal(t, "/quiz.html?id=ABC", cacheKey("/quiz.html?id=ABC"))
	assert.Equal(t, "/index.html", cacheKey("index.html"))
	assert.Equal(t, "/", cacheKey("/"))
}

func TestCheckForUpdatesIgnoresFetchWriteThrough(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/data/quizzes/a.json": "{}", "/data/quizzes/b.json": `{"b":1}`})
	origin.set("/data/quiz-manifest.json", manifestJSON(t, "/data/quizzes/a.json"))
	svc, storage := newOfflineService(t, origin)
	activated(svc)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	svc.Start(ctx)
	defer svc.Stop()

	require.NoError(t, svc.Sweep(ctx))
	origin.set("/data/quiz-manifest.json", manifestJSON(t, "/data/quizzes/a.json", "/data/quizzes/b.json"))

	res := svc.Fetch(ctx, get(t, "/data/quiz-manifest.json"))
	svc.Wait()
	require.Equal(t, models.SourceNetwork, res.Source)
	_, ch, cancel := svc.Notifier().Subscribe()
	defer cancel()

	changed, err := svc.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	var types []string
	deadline := time.After(5 * time.Second)
	for len(types) == 0 || types[len(types)-1] != models.MessageCacheComplete {
		select {
		case msg := <-ch:
			types = append(types, msg.Type)
		case <-deadline:
			t.Fatalf("sweep after update never completed, got %v", types)
		}
	}
	assert.Equal(t, models.MessageNewQuizzesAvailable, types[0])
	assert.Equal(t, 1, origin.hitCount("/data/quizzes/b.json"))
	entry, err := storage.Match(ctx, svc.staticStore, "/data/quizzes/b.json")
	require.NoError(t, err)
	assert.Equal(t, `{"b":1}`, string(entry.Body))

	changed, err = svc.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestFetchRejectsOversizedUpstreamBody(t *testing.T) {
	origin := newFakeOrigin(t, map[string]string{"/big.json": strings.Repeat("x", 64), "/small.json": "ok"})
	svc, storage := newOfflineService(t, origin)
	svc.maxBody = 16
	activated(svc)
	ctx := context.Background()
	require.NoError(t, storage.Put(ctx, svc.staticStore, &models.CachedResponse{URL: "/big.json", Status: 200, Header: http.Header{}, Body: []byte("previous")}))

	res := svc.Fetch(ctx, get(t, "/big.json"))
	svc.Wait()
	assert.Equal(t, models.SourceCache, res.Source)
	assert.Equal(t, "previous", string(res.Body))

	entry, err := storage.Match(ctx, svc.staticStore, "/big.json")
	require.NoError(t, err)
	assert.Equal(t, "previous", string(entry.Body))

	_, err = svc.fetchForCache(ctx, "/big.json")
	assert.True(t, errors.Is(err, errUpstreamTooLarge))

	res = svc.Fetch(ctx, get(t, "/small.json"))
	svc.Wait()
	assert.Equal(t, "ok", string(res.Body))
}
