package sessions

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helpqueue/helpqueue/internal/geoip"
	"github.com/helpqueue/helpqueue/internal/provider"
)

// LifecycleService implements the LifecycleManager interface. It validates the
// externally-driven transitions and applies them through the session store and
// the queue manager; it holds no session state of its own between requests.
type LifecycleService struct {
	store    SessionStore
	queue    QueueManager
	provider provider.Provider
	geoip    geoip.Resolver
	logger   *zap.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(store SessionStore, queue QueueManager, prov provider.Provider, resolver geoip.Resolver, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{
		store:    store,
		queue:    queue,
		provider: prov,
		geoip:    resolver,
		logger:   logger,
	}
}

// CreateSession allocates a session and a moderator token from the
// communication provider, resolves the customer's country, and persists the
// session. A provider or store failure leaves no partial session queued.
func (s *LifecycleService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*ConnectionDetails, error) {
	if req.CampaignID == "" {
		return nil, NewInvalidInputError("campaignId", "campaignId is required")
	}

	sessionID, err := s.provider.CreateSession(ctx)
	if err != nil {
		return nil, NewProviderError("could not allocate a provider session", err)
	}

	token, err := s.provider.GenerateToken(sessionID, provider.RoleModerator)
	if err != nil {
		return nil, NewProviderError("could not generate a customer token", err)
	}

	// Country lookup is best-effort and never blocks session creation.
	country := s.geoip.Country(ctx, req.UserIPAddress)

	session := &Session{
		SessionID:     sessionID,
		CampaignID:    req.CampaignID,
		BannerID:      req.BannerID,
		UserAgent:     req.UserAgent,
		UserIPAddress: req.UserIPAddress,
		UserCountry:   country,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("Help session created",
		zap.String("session_id", sessionID),
		zap.String("campaign_id", req.CampaignID),
		zap.String("banner_id", req.BannerID),
		zap.String("country", country))

	return &ConnectionDetails{
		APIKey:    s.provider.APIKey(),
		SessionID: sessionID,
		Token:     token,
	}, nil
}

// Enqueue marks an existing session ready to be matched
func (s *LifecycleService) Enqueue(ctx context.Context, sessionID string) error {
	return s.queue.Enqueue(ctx, sessionID)
}

// DequeueForRepresentative matches the oldest waiting customer to the named
// representative and returns the connection details the representative needs.
// Returns (nil, nil) when no customer is waiting; that is not an error.
func (s *LifecycleService) DequeueForRepresentative(ctx context.Context, representativeName string) (*ConnectionDetails, error) {
	session, err := s.queue.DequeueNext(ctx, representativeName)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	token, err := s.provider.GenerateToken(session.SessionID, provider.RolePublisher)
	if err != nil {
		return nil, NewProviderError("could not generate a representative token", err)
	}

	return &ConnectionDetails{
		APIKey:    s.provider.APIKey(),
		SessionID: session.SessionID,
		Token:     token,
	}, nil
}

// EndSession terminates the session, for any reason. Ending an already ended
// session is a no-op overwrite, not an error.
func (s *LifecycleService) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return NewInvalidInputError("sessionId", "sessionId is required")
	}

	if err := s.store.EndSession(ctx, sessionID, time.Now()); err != nil {
		return err
	}

	s.logger.Info("Help session ended", zap.String("session_id", sessionID))
	return nil
}

// MarkNotConnected records that a representative was matched but the customer
// had already left: the match is voided and the session terminated.
func (s *LifecycleService) MarkNotConnected(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return NewInvalidInputError("sessionId", "sessionId is required")
	}

	if err := s.store.MarkNotConnected(ctx, sessionID, time.Now()); err != nil {
		return err
	}

	s.logger.Info("Help session marked not connected", zap.String("session_id", sessionID))
	return nil
}
