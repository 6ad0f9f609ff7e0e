package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCountryLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/203.0.113.7/json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ip": "203.0.113.7", "country": "DE"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())
	assert.Equal(t, "DE", client.Country(context.Background(), "203.0.113.7"))
}

func TestCountryLookupFailuresReportUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())

	assert.Equal(t, UnknownCountry, client.Country(context.Background(), "203.0.113.7"))
	assert.Equal(t, UnknownCountry, client.Country(context.Background(), ""))
}

func TestCountryMissingInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ip": "203.0.113.7"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())
	assert.Equal(t, UnknownCountry, client.Country(context.Background(), "203.0.113.7"))
}

func TestDisabledResolver(t *testing.T) {
	assert.Equal(t, UnknownCountry, Disabled{}.Country(context.Background(), "203.0.113.7"))
}
