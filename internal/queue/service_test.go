package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpqueue/helpqueue/internal/sessions"
)

func newQueuedStore(t *testing.T, sessionIDs ...string) *sessions.InMemoryStore {
	t.Helper()
	ctx := context.Background()
	store := sessions.NewInMemoryStore()

	base := time.Now()
	for i, sessionID := range sessionIDs {
		require.NoError(t, store.CreateSession(ctx, &sessions.Session{
			SessionID:  sessionID,
			CampaignID: "camp-1",
		}))
		require.NoError(t, store.MarkQueued(ctx, sessionID, base.Add(time.Duration(i)*time.Second)))
	}
	return store
}

func TestDequeueFollowsFIFOOrder(t *testing.T) {
	ctx := context.Background()
	store := newQueuedStore(t, "sess-b", "sess-a", "sess-c")
	service := NewService(store, zap.NewNop())

	var order []string
	for i := 0; i < 3; i++ {
		session, err := service.DequeueNext(ctx, "Alex")
		require.NoError(t, err)
		require.NotNil(t, session)
		order = append(order, session.SessionID)
	}

	// Enqueue order, not lexical order.
	assert.Equal(t, []string{"sess-b", "sess-a", "sess-c"}, order)
}

func TestDequeueTieBrokenBySessionID(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewInMemoryStore()
	at := time.Now()
	for _, sessionID := range []string{"sess-b", "sess-a"} {
		require.NoError(t, store.CreateSession(ctx, &sessions.Session{SessionID: sessionID, CampaignID: "camp-1"}))
		require.NoError(t, store.MarkQueued(ctx, sessionID, at))
	}
	service := NewService(store, zap.NewNop())

	session, err := service.DequeueNext(ctx, "Alex")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "sess-a", session.SessionID)
}

func TestDequeueEmptyQueue(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewInMemoryStore()
	service := NewService(store, zap.NewNop())

	session, err := service.DequeueNext(ctx, "Alex")
	require.NoError(t, err)
	assert.Nil(t, session)

	// Observably a no-op on the store.
	rows, err := store.ListSessions(ctx, "camp-1", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestConcurrentDequeueMatchesAtMostOnce(t *testing.T) {
	ctx := context.Background()
	const queued = 5
	const callers = 10

	store := newQueuedStore(t, "sess-1", "sess-2", "sess-3", "sess-4", "sess-5")
	service := NewService(store, zap.NewNop())

	results := make([]*sessions.Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := service.DequeueNext(ctx, "Alex")
			assert.NoError(t, err)
			results[i] = session
		}(i)
	}
	wg.Wait()

	matched := make(map[string]bool)
	empty := 0
	for _, session := range results {
		if session == nil {
			empty++
			continue
		}
		assert.False(t, matched[session.SessionID], "session %s matched twice", session.SessionID)
		matched[session.SessionID] = true
	}

	assert.Len(t, matched, queued)
	assert.Equal(t, callers-queued, empty)
}

func TestEnqueueValidation(t *testing.T) {
	ctx := context.Background()
	service := NewService(sessions.NewInMemoryStore(), zap.NewNop())

	err := service.Enqueue(ctx, "")
	require.Error(t, err)
	assert.True(t, sessions.IsErrorType(err, sessions.SessionErrorTypeInvalidInput))

	err = service.Enqueue(ctx, "missing")
	require.Error(t, err)
	assert.True(t, sessions.IsErrorType(err, sessions.SessionErrorTypeNotFound))
}

func TestReEnqueueResetsQueuePosition(t *testing.T) {
	ctx := context.Background()
	store := newQueuedStore(t, "sess-1", "sess-2")
	service := NewService(store, zap.NewNop())

	// sess-1 re-enters the queue, so sess-2 is now the oldest.
	require.NoError(t, store.MarkQueued(ctx, "sess-1", time.Now().Add(time.Minute)))

	session, err := service.DequeueNext(ctx, "Alex")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "sess-2", session.SessionID)
}

func TestEnqueueRefreshesQueueEntryTime(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewInMemoryStore()
	require.NoError(t, store.CreateSession(ctx, &sessions.Session{SessionID: "sess-1", CampaignID: "camp-1"}))
	service := NewService(store, zap.NewNop())

	require.NoError(t, service.Enqueue(ctx, "sess-1"))
	first, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, first.QueueEntryTime)

	require.NoError(t, service.Enqueue(ctx, "sess-1"))
	second, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, second.QueueEntryTime)

	assert.False(t, second.QueueEntryTime.Before(*first.QueueEntryTime))
}

func TestEndedSessionIsNotDequeued(t *testing.T) {
	ctx := context.Background()
	store := newQueuedStore(t, "sess-1", "sess-2")
	service := NewService(store, zap.NewNop())

	require.NoError(t, store.EndSession(ctx, "sess-1", time.Now()))

	session, err := service.DequeueNext(ctx, "Alex")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "sess-2", session.SessionID)
}

// conflictStore fails the first n dequeues with a conflict, the way a lost
// row race surfaces from the database.
type conflictStore struct {
	sessions.SessionStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictStore) DequeueNext(ctx context.Context, representativeName string, at time.Time) (*sessions.Session, error) {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return nil, sessions.ErrDequeueConflict
	}
	s.mu.Unlock()
	return s.SessionStore.DequeueNext(ctx, representativeName, at)
}

func TestDequeueRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{SessionStore: newQueuedStore(t, "sess-1"), conflicts: 2}
	service := NewService(store, zap.NewNop())

	session, err := service.DequeueNext(ctx, "Alex")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "sess-1", session.SessionID)
}

func TestDequeueSurfacesExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{SessionStore: newQueuedStore(t, "sess-1"), conflicts: maxDequeueRetries}
	service := NewService(store, zap.NewNop())

	_, err := service.DequeueNext(ctx, "Alex")
	require.Error(t, err)
	assert.True(t, sessions.IsErrorType(err, sessions.SessionErrorTypeStorageFailed))
}
