package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpqueue/helpqueue/internal/sessions"
)

func TestAggregateAnsweredAndUnanswered(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewInMemoryStore()

	base := time.Now()
	queuedA := base
	startA := base.Add(10 * time.Second)
	endA := startA.Add(30 * time.Second)
	repName := "Alex"

	// Session A: queued, answered after 10s, call lasted 30s.
	require.NoError(t, store.CreateSession(ctx, &sessions.Session{
		SessionID:             "sess-a",
		CampaignID:            "camp-1",
		QueueEntryTime:        &queuedA,
		ConversationStartTime: &startA,
		SessionEndTime:        &endA,
		RepresentativeName:    &repName,
	}))

	// Session B: queued, never answered.
	queuedB := base.Add(time.Minute)
	require.NoError(t, store.CreateSession(ctx, &sessions.Session{
		SessionID:      "sess-b",
		CampaignID:     "camp-1",
		QueueEntryTime: &queuedB,
	}))

	service := NewService(store, zap.NewNop())
	got := service.Aggregate(ctx, "camp-1", "")

	assert.Equal(t, int64(2), got.TotalOfCalls)
	assert.Equal(t, int64(1), got.AnsweredCalls)
	assert.Equal(t, int64(1), got.NotAnsweredCalls)
	assert.InDelta(t, 0.5, got.AnsweringRate, 0.0001)
	assert.InDelta(t, 10.0, got.AvgQueueTime, 0.0001)
	assert.InDelta(t, 30.0, got.AvgCallDuration, 0.0001)
}

func TestAggregateEmptyCampaign(t *testing.T) {
	service := NewService(sessions.NewInMemoryStore(), zap.NewNop())

	got := service.Aggregate(context.Background(), "camp-1", "")

	assert.Equal(t, int64(0), got.TotalOfCalls)
	assert.Equal(t, 0.0, got.AnsweringRate, "empty campaign must report rate 0, not divide by zero")
}

func TestAggregateFiltersByBanner(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewInMemoryStore()

	for _, row := range []struct{ sessionID, bannerID string }{
		{"sess-1", "banner-a"},
		{"sess-2", "banner-a"},
		{"sess-3", "banner-b"},
	} {
		require.NoError(t, store.CreateSession(ctx, &sessions.Session{
			SessionID:  row.sessionID,
			CampaignID: "camp-1",
			BannerID:   row.bannerID,
		}))
	}

	service := NewService(store, zap.NewNop())

	assert.Equal(t, int64(3), service.Aggregate(ctx, "camp-1", "").TotalOfCalls)
	assert.Equal(t, int64(2), service.Aggregate(ctx, "camp-1", "banner-a").TotalOfCalls)
	assert.Equal(t, int64(1), service.Aggregate(ctx, "camp-1", "banner-b").TotalOfCalls)
}

func TestRawReturnsMatchingRows(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewInMemoryStore()
	require.NoError(t, store.CreateSession(ctx, &sessions.Session{SessionID: "sess-1", CampaignID: "camp-1", BannerID: "banner-a"}))
	require.NoError(t, store.CreateSession(ctx, &sessions.Session{SessionID: "sess-2", CampaignID: "camp-2", BannerID: "banner-a"}))

	service := NewService(store, zap.NewNop())

	rows := service.Raw(ctx, "camp-1", "")
	require.Len(t, rows, 1)
	assert.Equal(t, "sess-1", rows[0].SessionID)

	assert.Empty(t, service.Raw(ctx, "camp-3", ""))
}
