package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(apiURL string) *OpenTokClient {
	return NewOpenTokClient(Config{
		APIKey:    "12345",
		APISecret: "test-secret",
		APIURL:    apiURL,
		TokenTTL:  time.Hour,
	}, zap.NewNop())
}

func TestCreateSession(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/session/create", r.URL.Path)
		gotAuth = r.Header.Get("X-OPENTOK-AUTH")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"session_id": "2_MX40NzI0NTc0fn4"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	sessionID, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2_MX40NzI0NTc0fn4", sessionID)

	// The REST call authenticates with a JWT signed by the API secret.
	token, err := jwt.Parse(gotAuth, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "12345", claims["iss"])
	assert.Equal(t, "project", claims["ist"])
}

func TestCreateSessionServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestCreateSessionEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateSession(context.Background())
	require.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	client := newTestClient("http://unused")

	token, err := client.GenerateToken("sess-1", RoleModerator)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, "T1=="))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, "T1=="))
	require.NoError(t, err)
	envelope := string(decoded)

	assert.Contains(t, envelope, "partner_id=12345")
	assert.Contains(t, envelope, "session_id=sess-1")
	assert.Contains(t, envelope, "role=moderator")

	// The signature must cover the data portion of the envelope.
	parts := strings.SplitN(envelope, ":", 2)
	require.Len(t, parts, 2)
	sigField := parts[0][strings.Index(parts[0], "sig=")+len("sig="):]

	mac := hmac.New(sha1.New, []byte("test-secret"))
	mac.Write([]byte(parts[1]))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sigField)
}

func TestGenerateTokenRequiresSessionID(t *testing.T) {
	client := newTestClient("http://unused")

	_, err := client.GenerateToken("", RolePublisher)
	require.Error(t, err)
}
