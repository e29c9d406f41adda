package service

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

const defaultNotifierBuffer = 32

// Notifier fans worker messages out to every connected client. Broadcast never
// blocks: a client whose buffer is full misses that message.
type Notifier struct {
	mu      sync.RWMutex
	clients map[string]chan models.WorkerMessage
	buffer  int
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotifier constructs a notifier with a per-client buffer.
func NewNotifier(buffer int, metrics *MetricsService, logger *zap.Logger) *Notifier {
	if buffer <= 0 {
		buffer = defaultNotifierBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{clients: make(map[string]chan models.WorkerMessage), buffer: buffer, metrics: metrics, logger: logger}
}

// Subscribe registers a client. The returned cancel func unregisters it and closes the channel.
func (n *Notifier) Subscribe() (string, <-chan models.WorkerMessage, func()) {
	id := uuid.NewString()
	ch := make(chan models.WorkerMessage, n.buffer)

	n.mu.Lock()
	n.clients[id] = ch
	count := len(n.clients)
	n.mu.Unlock()
	n.metrics.SetConnectedClients(count)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.clients, id)
			count := len(n.clients)
			close(ch)
			n.mu.Unlock()
			n.metrics.SetConnectedClients(count)
		})
	}
	return id, ch, cancel
}

// Broadcast posts msg to every client and returns how many received it.
func (n *Notifier) Broadcast(msg models.WorkerMessage) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	delivered := 0
	for id, ch := range n.clients {
		select {
		case ch <- msg:
			delivered++
		default:
			n.logger.Warn("client buffer full, dropping message", zap.String("client_id", id), zap.String("type", msg.Type))
		}
	}
	return delivered
}

// Count returns the number of connected clients.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}
