package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/config"
	"switchyard/internal/logger"
)

func authorityConfig(url string) config.AuthorityConfig {
	return config.AuthorityConfig{
		Type:    config.AuthorityHTTP,
		URL:     url,
		Token:   "secret",
		Timeout: time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}
}

func TestHTTPAuthority(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/access-control/users/42/permissions":
			_ = json.NewEncoder(w).Encode(map[string][]string{
				"grafana-oncall-app.integrations:read": {},
				"users:read":                           {"users:*"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a := NewHTTPAuthority(authorityConfig(server.URL+"/"), config.CircuitBreakerConfig{})

	granted, err := a.HasPermission(context.Background(), "42", IntegrationsRead.String())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = a.HasPermission(context.Background(), "42", IntegrationsWrite.String())
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = a.HasPermission(context.Background(), "unknown", UsersRead.String())
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestHTTPAuthorityRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"teams:read": nil})
	}))
	defer server.Close()

	a := NewHTTPAuthority(authorityConfig(server.URL), config.CircuitBreakerConfig{})

	granted, err := a.HasPermission(context.Background(), "7", TeamsRead.String())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPAuthorityDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	a := NewHTTPAuthority(authorityConfig(server.URL), config.CircuitBreakerConfig{})

	granted, err := a.HasPermission(context.Background(), "7", TeamsRead.String())
	assert.False(t, granted)
	assert.True(t, errors.Is(err, ErrAuthorityUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPAuthorityCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := authorityConfig(server.URL)
	cfg.Retry.MaxAttempts = 1
	a := NewHTTPAuthority(cfg, config.CircuitBreakerConfig{
		Enabled:      true,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	for i := 0; i < 4; i++ {
		_, err := a.HasPermission(context.Background(), "7", TeamsRead.String())
		assert.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadStaticAuthority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
actors:
  alice:
    - grafana-oncall-app.integrations:read
    - users:read
`), 0o600))

	a, err := LoadStaticAuthority(path)
	require.NoError(t, err)

	granted, err := a.HasPermission(context.Background(), "alice", UsersRead.String())
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = a.HasPermission(context.Background(), "alice", IntegrationsWrite.String())
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestLoadStaticAuthorityRejectsUnknownPermission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actors:\n  alice:\n    - teams:write\n"), 0o600))

	_, err := LoadStaticAuthority(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teams:write")
}

func TestGateFetchesGrantsOncePerCheck(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string][]string{
			IntegrationsRead.String():  {},
			IntegrationsWrite.String(): {},
		})
	}))
	defer server.Close()

	gate := NewGate(NewHTTPAuthority(authorityConfig(server.URL), config.CircuitBreakerConfig{}), time.Second, logger.NopLogger())
	required := []Permission{IntegrationsRead, IntegrationsWrite, UsersRead}

	assert.False(t, gate.Authorize(context.Background(), "42", required))
	assert.Equal(t, int32(1), calls.Load())

	assert.True(t, gate.Authorize(context.Background(), "42", required[:2]))
	assert.Equal(t, int32(2), calls.Load(), "each check fetches fresh grants")

	// Without a memo every permission is its own lookup.
	a := NewHTTPAuthority(authorityConfig(server.URL), config.CircuitBreakerConfig{})
	_, err := a.HasPermission(context.Background(), "42", IntegrationsRead.String())
	require.NoError(t, err)
	_, err = a.HasPermission(context.Background(), "42", IntegrationsWrite.String())
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}
