package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"switchyard/internal/config"
	"switchyard/internal/constants"
	"switchyard/pkg/circuitbreaker"
	"switchyard/pkg/metrics"
	"switchyard/pkg/retry"
)

var ErrAuthorityUnavailable = errors.New("permission authority unavailable")

// Authority answers whether an actor holds a permission. An error means
// the answer is unknown.
type Authority interface {
	HasPermission(ctx context.Context, actorID, permission string) (bool, error)
}

// StaticAuthority serves grants from configuration.
type StaticAuthority struct {
	grants map[string]map[string]bool
}

type grantsFile struct {
	Actors map[string][]string `yaml:"actors"`
}

func NewStaticAuthority(grants map[string][]string) *StaticAuthority {
	a := &StaticAuthority{grants: make(map[string]map[string]bool, len(grants))}
	for actor, perms := range grants {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		a.grants[actor] = set
	}
	return a
}

// LoadStaticAuthority reads a YAML file of the form
//
//	actors:
//	  user-1:
//	    - grafana-oncall-app.integrations:read
//
// Unknown permission identifiers are rejected.
func LoadStaticAuthority(path string) (*StaticAuthority, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static grants: %w", err)
	}

	var file grantsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse static grants: %w", err)
	}

	for actor, perms := range file.Actors {
		for _, p := range perms {
			if _, ok := Lookup(p); !ok {
				return nil, fmt.Errorf("static grants: actor %q: unknown permission %q", actor, p)
			}
		}
	}
	return NewStaticAuthority(file.Actors), nil
}

func (a *StaticAuthority) HasPermission(_ context.Context, actorID, permission string) (bool, error) {
	return a.grants[actorID][permission], nil
}

// HTTPAuthority queries the host platform's access-control API, which
// returns every permission of a user with its scopes.
type HTTPAuthority struct {
	baseURL string
	token   string
	client  *http.Client
	cb      *circuitbreaker.Breaker
	policy  retry.Policy
}

func NewHTTPAuthority(cfg config.AuthorityConfig, cbCfg config.CircuitBreakerConfig) *HTTPAuthority {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	a := &HTTPAuthority{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		policy: retry.FromConfig(cfg.Retry, retry.Policy{
			MaxAttempts:     2,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
			Multiplier:      2.0,
		}),
	}
	if cbCfg.Enabled {
		a.cb = circuitbreaker.New("permission-authority", cbCfg)
	}
	return a
}

type grantsMemoKey struct{}

// grantsMemo holds the grant sets fetched while one request is authorized.
type grantsMemo struct {
	mu      sync.Mutex
	byActor map[string]map[string][]string
}

// WithGrantsMemo returns a context under which HTTPAuthority fetches each
// actor's grant set at most once.
func WithGrantsMemo(ctx context.Context) context.Context {
	if _, ok := ctx.Value(grantsMemoKey{}).(*grantsMemo); ok {
		return ctx
	}
	return context.WithValue(ctx, grantsMemoKey{}, &grantsMemo{byActor: make(map[string]map[string][]string)})
}

func grantsMemoFrom(ctx context.Context) *grantsMemo {
	memo, _ := ctx.Value(grantsMemoKey{}).(*grantsMemo)
	return memo
}

func (m *grantsMemo) get(actorID string) (map[string][]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	granted, ok := m.byActor[actorID]
	return granted, ok
}

func (m *grantsMemo) put(actorID string, granted map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byActor[actorID] = granted
}

func (a *HTTPAuthority) HasPermission(ctx context.Context, actorID, permission string) (bool, error) {
	granted, err := a.grants(ctx, actorID)
	if err != nil {
		return false, err
	}

	_, ok := granted[permission]
	return ok, nil
}

func (a *HTTPAuthority) grants(ctx context.Context, actorID string) (map[string][]string, error) {
	memo := grantsMemoFrom(ctx)
	if memo != nil {
		if granted, ok := memo.get(actorID); ok {
			return granted, nil
		}
	}

	var granted map[string][]string
	err := retry.Retry(ctx, a.policy, func() error {
		var err error
		granted, err = a.fetch(ctx, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if memo != nil {
		memo.put(actorID, granted)
	}
	return granted, nil
}

func (a *HTTPAuthority) fetch(ctx context.Context, actorID string) (map[string][]string, error) {
	if a.cb == nil {
		return a.request(ctx, actorID)
	}

	granted, err := circuitbreaker.Execute(ctx, a.cb, func(ctx context.Context) (map[string][]string, error) {
		return a.request(ctx, actorID)
	})
	if circuitbreaker.Rejected(err) {
		return nil, retry.NewFatalError(fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err))
	}
	return granted, err
}

func (a *HTTPAuthority) request(ctx context.Context, actorID string) (map[string][]string, error) {
	endpoint := fmt.Sprintf("%s/api/access-control/users/%s/permissions", a.baseURL, url.PathEscape(actorID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		metrics.ObserveAuthorityRequest("http", "error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.ObserveAuthorityRequest("http", fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return map[string][]string{}, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrAuthorityUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, retry.NewFatalError(fmt.Errorf("%w: status %d", ErrAuthorityUnavailable, resp.StatusCode))
	}

	var granted map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&granted); err != nil {
		return nil, retry.NewFatalError(fmt.Errorf("failed to decode permissions: %w", err))
	}
	return granted, nil
}
