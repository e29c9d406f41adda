package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basmagi-quiz/internal/middleware"
	"github.com/noah-isme/basmagi-quiz/internal/models"
	"github.com/noah-isme/basmagi-quiz/internal/repository"
	"github.com/noah-isme/basmagi-quiz/internal/service"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
)

func newOfflineRouter(t *testing.T) (*gin.Engine, *service.OfflineCacheService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<h1>quiz</h1>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(origin.Close)

	svc, err := service.NewOfflineCacheService(config.OfflineConfig{
		OriginURL:    origin.URL,
		CachePrefix:  "basmagi-",
		CacheVersion: "v2.4.0",
		ShellAssets:  []string{"/index.html"},
		OfflinePage:  "/offline.html",
		ManifestPath: "/data/quiz-manifest.json",
		SweepWorkers: 1,
		FetchTimeout: time.Second,
	}, repository.NewMemoryCacheStorage(), origin.Client(), nil, service.NewMetricsService(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		svc.Stop()
	})

	h := NewOfflineHandler(svc, nil, nil, []string{"*"})
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	r.POST("/sw/messages", h.PostMessage)
	r.GET("/sw/status", h.Status)
	r.GET("/sw/clients", h.Clients)
	r.NoRoute(h.Fetch)
	return r, svc
}

func TestOfflineHandlerFetchSetsSourceHeaders(t *testing.T) {
	r, svc := newOfflineRouter(t)
	svc.Install(context.Background())
	require.NoError(t, svc.Activate(context.Background()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<h1>quiz</h1>", w.Body.String())
	assert.Equal(t, string(models.SourceNetwork), w.Header().Get(middleware.HeaderCacheSource))
	assert.Equal(t, "v2.4.0", w.Header().Get(middleware.HeaderCacheVersion))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/index.html", nil))
	assert.Equal(t, string(models.SourcePassthrough), w.Header().Get(middleware.HeaderCacheSource))
	assert.Empty(t, w.Body.String())
}

func TestOfflineHandlerPostMessage(t *testing.T) {
	r, _ := newOfflineRouter(t)

	cases := []struct {
		body string
		want int
	}{
		{`{}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
		{`{"type":"UNKNOWN"}`, http.StatusBadRequest},
		{`{"type":"CLEAR_CACHE"}`, http.StatusOK},
		{`{"type":"SKIP_WAITING"}`, http.StatusOK},
		{`{"type":"RECACHE_EXAMS"}`, http.StatusAccepted},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sw/messages", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.body)
	}
}

func TestOfflineHandlerStatus(t *testing.T) {
	r, _ := newOfflineRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sw/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"installing"`)
	assert.Contains(t, w.Body.String(), `"version":"v2.4.0"`)
}

func TestOfflineHandlerClientsChannel(t *testing.T) {
	r, svc := newOfflineRouter(t)
	svc.Install(context.Background())
	require.NoError(t, svc.Activate(context.Background()))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/sw/clients", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg models.WorkerMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, models.MessageWorkerActivated, msg.Type)
	assert.Equal(t, "v2.4.0", msg.Version)

	require.NoError(t, wsjson.Write(ctx, conn, models.ClientMessage{Type: "BOGUS"}))
	for {
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == models.MessageCommandRejected {
			break
		}
	}
	assert.Contains(t, msg.Error, "BOGUS")

	svc.Notifier().Broadcast(models.WorkerMessage{Type: models.MessageNewQuizzesAvailable, Version: "v2.4.0"})
	for {
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == models.MessageNewQuizzesAvailable {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
