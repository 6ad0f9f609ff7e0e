package sessions

import "time"

// Session represents one customer-representative help interaction. The session
// id is issued by the external communication provider and is the primary
// identity of the row.
type Session struct {
	SessionID             string     `json:"sessionId"`
	CampaignID            string     `json:"campaignId"`
	BannerID              string     `json:"bannerId"`
	UserAgent             string     `json:"userAgent"`
	UserIPAddress         string     `json:"userIpAddress"`
	UserCountry           string     `json:"userCountry"`
	QueueEntryTime        *time.Time `json:"queueEntryTime,omitempty"`
	ConversationStartTime *time.Time `json:"conversationStartTime,omitempty"`
	SessionEndTime        *time.Time `json:"sessionEndTime,omitempty"`
	RepresentativeName    *string    `json:"representativeName,omitempty"`
}

// Eligible reports whether the session can be handed to a representative:
// queued, not ended, and not already matched.
func (s *Session) Eligible() bool {
	return s.QueueEntryTime != nil && s.SessionEndTime == nil && s.ConversationStartTime == nil
}

// CreateSessionRequest carries the customer-supplied fields captured when a
// help session is opened.
type CreateSessionRequest struct {
	CampaignID    string `json:"campaignId"`
	BannerID      string `json:"bannerId"`
	UserAgent     string `json:"userAgent"`
	UserIPAddress string `json:"userIpAddress"`
}

// ConnectionDetails is the payload a client needs to join the live session:
// the customer receives it on create, the representative on dequeue.
type ConnectionDetails struct {
	APIKey    string `json:"apiKey"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// AggregateMetrics summarizes historical sessions for a campaign/banner. The
// JSON field names are part of the reporting contract consumed by external
// dashboards. Durations are reported in seconds.
type AggregateMetrics struct {
	TotalOfCalls     int64   `json:"TotalOfCalls"`
	AnsweredCalls    int64   `json:"AnsweredCalls"`
	NotAnsweredCalls int64   `json:"NotAnsweredCalls"`
	AnsweringRate    float64 `json:"AnsweringRate"`
	AvgQueueTime     float64 `json:"AvgQueueTime"`
	AvgCallDuration  float64 `json:"AvgCallDuration"`
}
