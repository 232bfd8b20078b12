package messaging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
)

// syncBus возвращает шину в синхронном режиме - детерминированную для тестов.
func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(Config{AsyncMode: false, EnableMetrics: true})
}

func TestEventBus_PublishToSubscribed(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []shared.EventType

	err := bus.Subscribe(shared.EventTaskCompleted, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e.EventType())
		return nil
	})
	require.NoError(t, err)

	event := shared.NewTaskCompletedEvent("user-1", "task-1", "exam-1", 20)
	require.NoError(t, bus.Publish(event))
	require.NoError(t, bus.Publish(shared.NewLeveledUpEvent("user-1", 1, 2, 105)))

	assert.Equal(t, []shared.EventType{shared.EventTaskCompleted}, received)
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewTaskCompletedEvent("user-1", "task-1", "exam-1", 20)))
	require.NoError(t, bus.Publish(shared.NewLeveledUpEvent("user-1", 1, 2, 105)))

	assert.Equal(t, 2, count)
}

func TestEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	second := false
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		second = true
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("user-1", "silver_streak", 7)))
	assert.True(t, second)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
}

func TestEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewLeveledUpEvent("user-1", 1, 2, 105))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventLeveledUp, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestEventBus_NilHandlerRejected(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventLeveledUp, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}
