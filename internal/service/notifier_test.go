package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/basmagi-quiz/internal/models"
)

func TestNotifierBroadcastReachesEveryClient(t *testing.T) {
	n := NewNotifier(2, nil, nil)
	_, a, cancelA := n.Subscribe()
	defer cancelA()
	_, b, cancelB := n.Subscribe()
	defer cancelB()

	require.Equal(t, 2, n.Count())
	delivered := n.Broadcast(models.ProgressMessage(models.MessageCacheProgress, 5, 10))
	assert.Equal(t, 2, delivered)

	for _, ch := range []<-chan models.WorkerMessage{a, b} {
		msg := <-ch
		assert.Equal(t, models.MessageCacheProgress, msg.Type)
		require.NotNil(t, msg.Cached)
		assert.Equal(t, 5, *msg.Cached)
	}
}

func TestNotifierDropsWhenClientBufferFull(t *testing.T) {
	n := NewNotifier(1, nil, nil)
	_, ch, cancel := n.Subscribe()
	defer cancel()

	assert.Equal(t, 1, n.Broadcast(models.WorkerMessage{Type: models.MessageCacheComplete}))
	assert.Equal(t, 0, n.Broadcast(models.WorkerMessage{Type: models.MessageCacheError}))

	msg := <-ch
	assert.Equal(t, models.MessageCacheComplete, msg.Type)
}

func TestNotifierCancelClosesChannel(t *testing.T) {
	n := NewNotifier(1, nil, nil)
	_, ch, cancel := n.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, n.Count())
	assert.Equal(t, 0, n.Broadcast(models.WorkerMessage{Type: models.MessageWorkerActivated}))
}
