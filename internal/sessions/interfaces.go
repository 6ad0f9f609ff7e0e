package sessions

import (
	"context"
	"time"
)

// SessionStore defines the storage operations for help sessions. Every write
// is immediately durable; rows are never deleted so they remain available for
// metrics.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// MarkQueued sets queue_entry_time on the named session. Re-marking an
	// already queued session refreshes the timestamp, which also resets its
	// queue position.
	MarkQueued(ctx context.Context, sessionID string, at time.Time) error

	// DequeueNext atomically selects the oldest eligible queued session and
	// marks it matched (conversation start time plus representative name) in
	// the same transaction. Returns (nil, nil) when the queue is empty.
	DequeueNext(ctx context.Context, representativeName string, at time.Time) (*Session, error)

	// EndSession sets session_end_time unconditionally; ending an already
	// ended session overwrites the previous end time.
	EndSession(ctx context.Context, sessionID string, at time.Time) error

	// MarkNotConnected records a failed handoff: clears the conversation start
	// time and representative name, and sets session_end_time.
	MarkNotConnected(ctx context.Context, sessionID string, at time.Time) error

	// AggregateMetrics and ListSessions are the read-only reporting queries.
	// An empty bannerID means all banners for the campaign.
	AggregateMetrics(ctx context.Context, campaignID, bannerID string) (*AggregateMetrics, error)
	ListSessions(ctx context.Context, campaignID, bannerID string) ([]*Session, error)
}

// QueueManager defines the matching operations the lifecycle service depends
// on. Implemented by the queue package.
type QueueManager interface {
	Enqueue(ctx context.Context, sessionID string) error
	DequeueNext(ctx context.Context, representativeName string) (*Session, error)
}

// LifecycleManager is the public contract of the session lifecycle: the five
// externally-driven transitions exposed over HTTP.
type LifecycleManager interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*ConnectionDetails, error)
	Enqueue(ctx context.Context, sessionID string) error
	DequeueForRepresentative(ctx context.Context, representativeName string) (*ConnectionDetails, error)
	EndSession(ctx context.Context, sessionID string) error
	MarkNotConnected(ctx context.Context, sessionID string) error
}
