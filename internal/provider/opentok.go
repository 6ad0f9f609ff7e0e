package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Role determines what a client token allows within a live session.
const (
	// RoleModerator is issued to the customer who opens the session.
	RoleModerator = "moderator"
	// RolePublisher is issued to the representative joining an existing session.
	RolePublisher = "publisher"
)

// Provider is the external real-time communication service that issues
// session ids and per-user access tokens.
type Provider interface {
	APIKey() string
	CreateSession(ctx context.Context) (string, error)
	GenerateToken(sessionID, role string) (string, error)
}

// Config holds the credentials and endpoint of the communication provider.
type Config struct {
	APIKey    string
	APISecret string
	APIURL    string
	TokenTTL  time.Duration
}

// OpenTokClient implements Provider against the OpenTok REST API.
type OpenTokClient struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenTokClient creates a new OpenTok client
func NewOpenTokClient(config Config, logger *zap.Logger) *OpenTokClient {
	return &OpenTokClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// APIKey returns the provider API key clients use to connect
func (c *OpenTokClient) APIKey() string {
	return c.config.APIKey
}

// CreateSession allocates a new session id from the provider
func (c *OpenTokClient) CreateSession(ctx context.Context) (string, error) {
	authToken, err := c.restToken()
	if err != nil {
		return "", fmt.Errorf("failed to build provider auth token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+"/session/create", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("X-OPENTOK-AUTH", authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("session create request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read session create response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("session create returned status %d: %s", resp.StatusCode, string(body))
	}

	// The provider responds with a single-element JSON array.
	var sessions []struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &sessions); err != nil {
		return "", fmt.Errorf("failed to parse session create response: %w", err)
	}
	if len(sessions) == 0 || sessions[0].SessionID == "" {
		return "", fmt.Errorf("session create response contained no session id")
	}

	c.logger.Debug("Provider session created", zap.String("session_id", sessions[0].SessionID))
	return sessions[0].SessionID, nil
}

// GenerateToken builds a client access token for the given session. The token
// is the provider's T1 format: a base64 envelope carrying the partner id and
// an HMAC-SHA1 signature over the connection data.
func (c *OpenTokClient) GenerateToken(sessionID, role string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required to generate a token")
	}

	now := time.Now()
	data := fmt.Sprintf(
		"session_id=%s&create_time=%d&expire_time=%d&nonce=%s&role=%s",
		url.QueryEscape(sessionID),
		now.Unix(),
		now.Add(c.config.TokenTTL).Unix(),
		uuid.NewString(),
		role,
	)

	mac := hmac.New(sha1.New, []byte(c.config.APISecret))
	mac.Write([]byte(data))
	sig := hex.EncodeToString(mac.Sum(nil))

	envelope := fmt.Sprintf("partner_id=%s&sig=%s:%s", c.config.APIKey, sig, data)
	return "T1==" + base64.StdEncoding.EncodeToString([]byte(envelope)), nil
}

// restToken mints the short-lived JWT that authenticates REST calls to the
// provider.
func (c *OpenTokClient) restToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": c.config.APIKey,
		"ist": "project",
		"iat": now.Unix(),
		"exp": now.Add(3 * time.Minute).Unix(),
		"jti": uuid.NewString(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.config.APISecret))
}
