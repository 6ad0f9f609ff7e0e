package metrics

import (
	"context"

	"go.uber.org/zap"

	"github.com/helpqueue/helpqueue/internal/sessions"
)

// Service computes read-only reporting over historical sessions. A failed
// query is logged and reported as a zeroed aggregate or an empty list; it
// never fails the request.
type Service struct {
	store  sessions.SessionStore
	logger *zap.Logger
}

// NewService creates a new metrics service
func NewService(store sessions.SessionStore, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Aggregate returns the summary statistics for a campaign. An empty bannerID
// means all banners for the campaign.
func (s *Service) Aggregate(ctx context.Context, campaignID, bannerID string) *sessions.AggregateMetrics {
	metrics, err := s.store.AggregateMetrics(ctx, campaignID, bannerID)
	if err != nil {
		s.logger.Error("Failed to aggregate metrics",
			zap.String("campaign_id", campaignID),
			zap.String("banner_id", bannerID),
			zap.Error(err))
		return &sessions.AggregateMetrics{}
	}
	return metrics
}

// Raw returns every matching session row, unaggregated, for external analysis
func (s *Service) Raw(ctx context.Context, campaignID, bannerID string) []*sessions.Session {
	rows, err := s.store.ListSessions(ctx, campaignID, bannerID)
	if err != nil {
		s.logger.Error("Failed to list sessions for metrics",
			zap.String("campaign_id", campaignID),
			zap.String("banner_id", bannerID),
			zap.Error(err))
		return []*sessions.Session{}
	}
	return rows
}
