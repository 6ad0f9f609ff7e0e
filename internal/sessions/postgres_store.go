package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewDB opens a bun database handle for the given PostgreSQL DSN.
func NewDB(dsn string, maxOpenConnections int) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(maxOpenConnections)
	return bun.NewDB(sqldb, pgdialect.New())
}

// PostgresStore implements the SessionStore interface with PostgreSQL storage
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// SessionSchema represents the sessions table schema
type SessionSchema struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	SessionID             string     `bun:"session_id,pk" json:"session_id"`
	CampaignID            string     `bun:"campaign_id,notnull" json:"campaign_id"`
	BannerID              string     `bun:"banner_id,notnull,default:''" json:"banner_id"`
	UserAgent             string     `bun:"user_agent,notnull,default:''" json:"user_agent"`
	UserIPAddress         string     `bun:"user_ip_address,notnull,default:''" json:"user_ip_address"`
	UserCountry           string     `bun:"user_country,notnull,default:''" json:"user_country"`
	QueueEntryTime        *time.Time `bun:"queue_entry_time,nullzero" json:"queue_entry_time,omitempty"`
	ConversationStartTime *time.Time `bun:"conversation_start_time,nullzero" json:"conversation_start_time,omitempty"`
	SessionEndTime        *time.Time `bun:"session_end_time,nullzero" json:"session_end_time,omitempty"`
	RepresentativeName    *string    `bun:"representative_name,nullzero" json:"representative_name,omitempty"`
}

// CreateSession inserts a new session row
func (s *PostgresStore) CreateSession(ctx context.Context, session *Session) error {
	schema := sessionToSchema(session)

	_, err := s.db.NewInsert().
		Model(&schema).
		Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return NewDuplicateSessionError(session.SessionID)
		}
		return NewStorageError(session.SessionID, "failed to create session", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var schema SessionSchema
	err := s.db.NewSelect().
		Model(&schema).
		Where("session_id = ?", sessionID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewSessionNotFoundError(sessionID)
		}
		return nil, NewStorageError(sessionID, "failed to get session", err)
	}

	return schemaToSession(schema), nil
}

// MarkQueued sets queue_entry_time on the named session. The write is
// unconditional: re-queueing refreshes the timestamp and the queue position.
func (s *PostgresStore) MarkQueued(ctx context.Context, sessionID string, at time.Time) error {
	result, err := s.db.NewUpdate().
		Model((*SessionSchema)(nil)).
		Set("queue_entry_time = ?", at).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return NewStorageError(sessionID, "failed to enqueue session", err)
	}

	return requireRowAffected(result, sessionID)
}

// DequeueNext selects the oldest eligible queued session and marks it matched.
// The select locks the candidate row (SELECT ... FOR UPDATE) and the update
// runs in the same transaction, so two concurrent calls can never claim the
// same session. The update re-checks that the row is still unmatched; zero
// rows affected means a concurrent transaction won the race and the caller
// should retry.
func (s *PostgresStore) DequeueNext(ctx context.Context, representativeName string, at time.Time) (*Session, error) {
	var schema SessionSchema

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&schema).
			Where("queue_entry_time IS NOT NULL").
			Where("session_end_time IS NULL").
			Where("conversation_start_time IS NULL").
			OrderExpr("queue_entry_time ASC, session_id ASC").
			Limit(1).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("failed to select queue head: %w", err)
		}

		result, err := tx.NewUpdate().
			Model((*SessionSchema)(nil)).
			Set("conversation_start_time = ?", at).
			Set("representative_name = ?", representativeName).
			Where("session_id = ?", schema.SessionID).
			Where("conversation_start_time IS NULL").
			Where("session_end_time IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark session matched: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrDequeueConflict
		}

		schema.ConversationStartTime = &at
		schema.RepresentativeName = &representativeName
		return nil
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The queue was empty
			return nil, nil
		}
		if errors.Is(err, ErrDequeueConflict) {
			return nil, ErrDequeueConflict
		}
		return nil, NewStorageError("", "dequeue transaction failed", err)
	}

	return schemaToSession(schema), nil
}

// EndSession sets session_end_time unconditionally. Ending an already ended
// session overwrites the previous end time; that idempotence is deliberate.
func (s *PostgresStore) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	result, err := s.db.NewUpdate().
		Model((*SessionSchema)(nil)).
		Set("session_end_time = ?", at).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return NewStorageError(sessionID, "failed to end session", err)
	}

	return requireRowAffected(result, sessionID)
}

// MarkNotConnected records a failed handoff: the representative was matched
// but the customer had already left.
func (s *PostgresStore) MarkNotConnected(ctx context.Context, sessionID string, at time.Time) error {
	result, err := s.db.NewUpdate().
		Model((*SessionSchema)(nil)).
		Set("session_end_time = ?", at).
		Set("conversation_start_time = NULL").
		Set("representative_name = NULL").
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return NewStorageError(sessionID, "failed to mark session not connected", err)
	}

	return requireRowAffected(result, sessionID)
}

// AggregateMetrics computes the summary statistics for a campaign. Durations
// are averaged over answered sessions only; the answering rate of an empty
// result set is 0 rather than a division error.
func (s *PostgresStore) AggregateMetrics(ctx context.Context, campaignID, bannerID string) (*AggregateMetrics, error) {
	var row struct {
		TotalOfCalls     int64   `bun:"total_of_calls"`
		AnsweredCalls    int64   `bun:"answered_calls"`
		NotAnsweredCalls int64   `bun:"not_answered_calls"`
		AnsweringRate    float64 `bun:"answering_rate"`
		AvgQueueTime     float64 `bun:"avg_queue_time"`
		AvgCallDuration  float64 `bun:"avg_call_duration"`
	}

	query := s.db.NewSelect().
		Model((*SessionSchema)(nil)).
		ColumnExpr("COUNT(*) AS total_of_calls").
		ColumnExpr("COUNT(conversation_start_time) AS answered_calls").
		ColumnExpr("COUNT(*) - COUNT(conversation_start_time) AS not_answered_calls").
		ColumnExpr("COALESCE(COUNT(conversation_start_time)::float8 / NULLIF(COUNT(*), 0), 0) AS answering_rate").
		ColumnExpr("COALESCE(EXTRACT(EPOCH FROM AVG(conversation_start_time - queue_entry_time))::float8, 0) AS avg_queue_time").
		ColumnExpr("COALESCE(EXTRACT(EPOCH FROM AVG(session_end_time - conversation_start_time))::float8, 0) AS avg_call_duration").
		Where("campaign_id = ?", campaignID)
	query = applyBannerFilter(query, bannerID)

	if err := query.Scan(ctx, &row); err != nil {
		return nil, NewStorageError("", "failed to aggregate metrics", err)
	}

	return &AggregateMetrics{
		TotalOfCalls:     row.TotalOfCalls,
		AnsweredCalls:    row.AnsweredCalls,
		NotAnsweredCalls: row.NotAnsweredCalls,
		AnsweringRate:    row.AnsweringRate,
		AvgQueueTime:     row.AvgQueueTime,
		AvgCallDuration:  row.AvgCallDuration,
	}, nil
}

// ListSessions returns every session row for a campaign, unaggregated
func (s *PostgresStore) ListSessions(ctx context.Context, campaignID, bannerID string) ([]*Session, error) {
	var schemas []SessionSchema

	query := s.db.NewSelect().
		Model(&schemas).
		Where("campaign_id = ?", campaignID).
		Order("session_id ASC")
	query = applyBannerFilter(query, bannerID)

	if err := query.Scan(ctx); err != nil {
		return nil, NewStorageError("", "failed to list sessions", err)
	}

	result := make([]*Session, 0, len(schemas))
	for _, schema := range schemas {
		result = append(result, schemaToSession(schema))
	}
	return result, nil
}

// applyBannerFilter narrows a query to a single banner; an empty bannerID
// means all banners for the campaign.
func applyBannerFilter(query *bun.SelectQuery, bannerID string) *bun.SelectQuery {
	if bannerID != "" {
		query = query.Where("banner_id = ?", bannerID)
	}
	return query
}

func requireRowAffected(result sql.Result, sessionID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return NewStorageError(sessionID, "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return NewSessionNotFoundError(sessionID)
	}
	return nil
}

// schemaToSession converts database schema to session model
func schemaToSession(schema SessionSchema) *Session {
	return &Session{
		SessionID:             schema.SessionID,
		CampaignID:            schema.CampaignID,
		BannerID:              schema.BannerID,
		UserAgent:             schema.UserAgent,
		UserIPAddress:         schema.UserIPAddress,
		UserCountry:           schema.UserCountry,
		QueueEntryTime:        schema.QueueEntryTime,
		ConversationStartTime: schema.ConversationStartTime,
		SessionEndTime:        schema.SessionEndTime,
		RepresentativeName:    schema.RepresentativeName,
	}
}

// sessionToSchema converts session model to database schema
func sessionToSchema(session *Session) SessionSchema {
	return SessionSchema{
		SessionID:             session.SessionID,
		CampaignID:            session.CampaignID,
		BannerID:              session.BannerID,
		UserAgent:             session.UserAgent,
		UserIPAddress:         session.UserIPAddress,
		UserCountry:           session.UserCountry,
		QueueEntryTime:        session.QueueEntryTime,
		ConversationStartTime: session.ConversationStartTime,
		SessionEndTime:        session.SessionEndTime,
		RepresentativeName:    session.RepresentativeName,
	}
}
