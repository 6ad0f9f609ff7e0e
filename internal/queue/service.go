package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helpqueue/helpqueue/internal/sessions"
)

// maxDequeueRetries bounds the internal retries of the atomic select-and-mark
// when it loses a race to a concurrent dequeue. Conflicts are expected under
// concurrency and are not surfaced to callers until the retries are exhausted.
const maxDequeueRetries = 3

// Service implements FIFO matching of queued customers to requesting
// representatives on top of the session store. The queue is a derived view of
// store rows; no queue structure is held in process memory.
type Service struct {
	store  sessions.SessionStore
	logger *zap.Logger
}

// NewService creates a new queue service
func NewService(store sessions.SessionStore, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Enqueue marks the named session ready to be matched. The session must have
// been created first; re-enqueueing refreshes the queue entry time and resets
// the session's position, which is deliberate.
func (s *Service) Enqueue(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return sessions.NewInvalidInputError("session_id", "session_id is required")
	}

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return err
	}

	if err := s.store.MarkQueued(ctx, sessionID, time.Now()); err != nil {
		return err
	}

	s.logger.Info("Customer enqueued", zap.String("session_id", sessionID))
	return nil
}

// DequeueNext hands the oldest eligible queued session to the named
// representative. Returns (nil, nil) when the queue is empty. Transaction
// conflicts are retried a bounded number of times before surfacing a storage
// error.
func (s *Service) DequeueNext(ctx context.Context, representativeName string) (*sessions.Session, error) {
	var lastErr error

	for attempt := 1; attempt <= maxDequeueRetries; attempt++ {
		session, err := s.store.DequeueNext(ctx, representativeName, time.Now())
		if err == nil {
			if session != nil {
				s.logger.Info("Customer matched to representative",
					zap.String("session_id", session.SessionID),
					zap.String("representative", representativeName))
			}
			return session, nil
		}

		if !isRetryableConflict(err) {
			return nil, err
		}

		lastErr = err
		s.logger.Debug("Dequeue conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, sessions.NewStorageError("", "dequeue retries exhausted", lastErr)
}

// isRetryableConflict reports whether the dequeue failed because a concurrent
// transaction claimed the same row, as opposed to a genuine storage failure.
func isRetryableConflict(err error) bool {
	if errors.Is(err, sessions.ErrDequeueConflict) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "40001") ||
		strings.Contains(msg, "40P01") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected")
}
