package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore implements the SessionStore interface with in-memory storage.
// The mutex is the locking domain that stands in for the database transaction:
// DequeueNext performs its select-and-mark under a single critical section.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
	}
}

// CreateSession creates a new session
func (s *InMemoryStore) CreateSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return NewDuplicateSessionError(session.SessionID)
	}

	stored := *session
	s.sessions[session.SessionID] = &stored
	return nil
}

// GetSession retrieves a session by ID
func (s *InMemoryStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, NewSessionNotFoundError(sessionID)
	}

	copied := *session
	return &copied, nil
}

// MarkQueued sets the queue entry time on the named session
func (s *InMemoryStore) MarkQueued(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return NewSessionNotFoundError(sessionID)
	}

	entry := at
	session.QueueEntryTime = &entry
	return nil
}

// DequeueNext selects the oldest eligible session and marks it matched under a
// single lock, mirroring the transactional select-and-mark of the Postgres
// store.
func (s *InMemoryStore) DequeueNext(ctx context.Context, representativeName string, at time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var head *Session
	for _, session := range s.sessions {
		if !session.Eligible() {
			continue
		}
		if head == nil || earlierInQueue(session, head) {
			head = session
		}
	}

	if head == nil {
		// The queue was empty
		return nil, nil
	}

	start := at
	name := representativeName
	head.ConversationStartTime = &start
	head.RepresentativeName = &name

	copied := *head
	return &copied, nil
}

// EndSession sets the session end time unconditionally
func (s *InMemoryStore) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return NewSessionNotFoundError(sessionID)
	}

	end := at
	session.SessionEndTime = &end
	return nil
}

// MarkNotConnected records a failed handoff
func (s *InMemoryStore) MarkNotConnected(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return NewSessionNotFoundError(sessionID)
	}

	end := at
	session.SessionEndTime = &end
	session.ConversationStartTime = nil
	session.RepresentativeName = nil
	return nil
}

// AggregateMetrics computes the summary statistics for a campaign
func (s *InMemoryStore) AggregateMetrics(ctx context.Context, campaignID, bannerID string) (*AggregateMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := &AggregateMetrics{}
	var queueSeconds, callSeconds float64
	var queueSamples, callSamples int64

	for _, session := range s.sessions {
		if !matchesCampaign(session, campaignID, bannerID) {
			continue
		}

		metrics.TotalOfCalls++
		if session.ConversationStartTime == nil {
			continue
		}
		metrics.AnsweredCalls++

		if session.QueueEntryTime != nil {
			queueSeconds += session.ConversationStartTime.Sub(*session.QueueEntryTime).Seconds()
			queueSamples++
		}
		if session.SessionEndTime != nil {
			callSeconds += session.SessionEndTime.Sub(*session.ConversationStartTime).Seconds()
			callSamples++
		}
	}

	metrics.NotAnsweredCalls = metrics.TotalOfCalls - metrics.AnsweredCalls
	if metrics.TotalOfCalls > 0 {
		metrics.AnsweringRate = float64(metrics.AnsweredCalls) / float64(metrics.TotalOfCalls)
	}
	if queueSamples > 0 {
		metrics.AvgQueueTime = queueSeconds / float64(queueSamples)
	}
	if callSamples > 0 {
		metrics.AvgCallDuration = callSeconds / float64(callSamples)
	}

	return metrics, nil
}

// ListSessions returns every session row for a campaign, unaggregated
func (s *InMemoryStore) ListSessions(ctx context.Context, campaignID, bannerID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Session, 0)
	for _, session := range s.sessions {
		if !matchesCampaign(session, campaignID, bannerID) {
			continue
		}
		copied := *session
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SessionID < result[j].SessionID
	})
	return result, nil
}

// earlierInQueue orders eligible sessions by queue entry time, oldest first,
// with the session id as the deterministic tie breaker.
func earlierInQueue(a, b *Session) bool {
	if a.QueueEntryTime.Equal(*b.QueueEntryTime) {
		return a.SessionID < b.SessionID
	}
	return a.QueueEntryTime.Before(*b.QueueEntryTime)
}

func matchesCampaign(session *Session, campaignID, bannerID string) bool {
	if session.CampaignID != campaignID {
		return false
	}
	return bannerID == "" || session.BannerID == bannerID
}
