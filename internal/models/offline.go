package models

import (
	"net/http"
	"time"
)

// LifecycleState mirrors the install/activate lifecycle of the caching worker.
type LifecycleState string

const (
	LifecycleInstalling LifecycleState = "installing"
	LifecycleInstalled  LifecycleState = "installed"
	LifecycleActivating LifecycleState = "activating"
	LifecycleActivated  LifecycleState = "activated"
)

// Worker to client message types.
const (
	MessageWorkerActivated     = "SW_ACTIVATED"
	MessageCacheProgress       = "CACHE_PROGRESS"
	MessageCacheComplete       = "CACHE_COMPLETE"
	MessageCacheError          = "CACHE_ERROR"
	MessageNewQuizzesAvailable = "NEW_QUIZZES_AVAILABLE"
	MessageCommandRejected     = "COMMAND_REJECTED"
)

// Client to worker message types.
const (
	MessageSkipWaiting     = "SKIP_WAITING"
	MessageCheckForUpdates = "CHECK_FOR_UPDATES"
	MessageRecacheExams    = "RECACHE_EXAMS"
	MessageClearCache      = "CLEAR_CACHE"
)

// FetchSource records which branch of the fetch policy produced a response.
type FetchSource string

const (
	SourceNetwork     FetchSource = "network"
	SourceCache       FetchSource = "cache"
	SourceOfflinePage FetchSource = "offline-page"
	SourcePlaceholder FetchSource = "placeholder"
	SourceSynthetic   FetchSource = "synthetic"
	SourcePassthrough FetchSource = "passthrough"
)

// CachedResponse is a stored response keyed by request URL within a cache store.
type CachedResponse struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// WorkerMessage is posted from the worker to every connected client.
type WorkerMessage struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Cached  *int   `json:"cached,omitempty"`
	Total   *int   `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProgressMessage builds a CACHE_PROGRESS or CACHE_COMPLETE message.
func ProgressMessage(kind string, cached, total int) WorkerMessage {
	return WorkerMessage{Type: kind, Cached: &cached, Total: &total}
}

// ClientMessage is a command sent by a client to the worker.
type ClientMessage struct {
	Type string `json:"type" validate:"required"`
}

// SweepStatus reports the most recent bulk pre-cache sweep.
type SweepStatus struct {
	Running    bool       `json:"running"`
	Cached     int        `json:"cached"`
	Total      int        `json:"total"`
	LastError  string     `json:"lastError,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// WorkerStatus is the snapshot served by the status endpoint.
type WorkerStatus struct {
	State           LifecycleState `json:"state"`
	Version         string         `json:"version"`
	Caches          []string       `json:"caches"`
	Clients         int            `json:"clients"`
	Sweep           SweepStatus    `json:"sweep"`
	LastUpdateCheck *time.Time     `json:"lastUpdateCheck,omitempty"`
}

// MetricsSnapshot aggregates gateway counters for the admin metrics endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64            `json:"requestsTotal"`
	AverageRequestDurationMs float64           `json:"averageRequestDurationMs"`
	CacheHits                uint64            `json:"cacheHits"`
	CacheMisses              uint64            `json:"cacheMisses"`
	CacheHitRatio            float64           `json:"cacheHitRatio"`
	FetchSources             map[string]uint64 `json:"fetchSources"`
	SweepsCompleted          uint64            `json:"sweepsCompleted"`
	SweepsFailed             uint64            `json:"sweepsFailed"`
	ConnectedClients         int               `json:"connectedClients"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generatedAt"`
}
