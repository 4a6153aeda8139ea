// Package session owns the bearer credential: expiry inspection, clearing on
// expiry, and authorizing outgoing requests.
//
// The guard never navigates. Callers get ErrSessionExpired back and decide
// what to show and where to go.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"storefront/internal/api"
	"storefront/internal/apperr"
	"storefront/internal/metrics"
	"storefront/internal/storage"
	"storefront/internal/util"
)

const (
	TokenKey = "token"
	UserKey  = "user"

	RequestIDHeader = "X-Request-ID"

	profilePath = "/api/users/profile"
)

// Expiry causes reported to the hook and to metrics.
const (
	CauseMissing  = "missing"
	CauseExpired  = "expired"
	CauseRejected = "rejected"
)

// Credential is the active bearer token. Expiry is zero when the token
// carries no exp claim.
type Credential struct {
	Token  string
	Expiry time.Time
}

type Profile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (p Profile) DisplayName() string {
	if p.FirstName != "" && p.LastName != "" {
		return p.FirstName + " " + p.LastName
	}
	return p.Username
}

type Guard struct {
	store    storage.Repository
	client   *http.Client
	api      *api.Client
	now      util.Timestamp
	logger   *zap.Logger
	onExpire func(cause string)

	mu      sync.Mutex
	profile *Profile
}

type Option func(*Guard)

func UseTimestamp(tp util.Timestamp) Option {
	return func(g *Guard) {
		g.now = tp
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithHTTPClient sets the client whose transport and timeout carry
// authorized requests.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Guard) {
		g.client = client
	}
}

// WithExpiryHook is called every time a request finds the session missing,
// expired or rejected.
func WithExpiryHook(fn func(cause string)) Option {
	return func(g *Guard) {
		g.onExpire = fn
	}
}

func NewGuard(store storage.Repository, baseURL string, options ...Option) *Guard {
	g := &Guard{
		store:  store,
		client: http.DefaultClient,
		now:    time.Now,
		logger: zap.NewNop(),
	}

	for _, opt := range options {
		opt(g)
	}

	g.api = api.NewClient(baseURL, g)
	return g
}

// API returns a client for the storefront service whose requests all pass
// through the guard.
func (g *Guard) API() *api.Client {
	return g.api
}

// IsExpired decodes the exp claim without verifying the signature. A token
// that cannot be decoded counts as expired; one without exp never expires.
func (g *Guard) IsExpired(token string) bool {
	_, ok := g.expiry(token)
	return !ok
}

func (g *Guard) expiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		g.logger.Debug("undecodable credential", zap.Error(err))
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, true
	}

	exp := claims.ExpiresAt.Time
	return exp, !exp.Before(g.now().Truncate(time.Second))
}

// Login stores a credential handed over by the login provider.
func (g *Guard) Login(ctx context.Context, token string, profile *Profile) error {
	if token == "" {
		return apperr.Validation("token is required")
	}
	if g.IsExpired(token) {
		return fmt.Errorf("%w: credential already expired", apperr.ErrSessionExpired)
	}

	if err := g.store.Set(ctx, TokenKey, []byte(token)); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	if profile != nil {
		if err := g.storeProfile(ctx, *profile); err != nil {
			return err
		}
	} else if err := g.store.Clear(ctx, UserKey); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}

	return nil
}

// Current reports the stored credential when it is present and not expired.
func (g *Guard) Current(ctx context.Context) (Credential, bool) {
	token, ok, err := g.token(ctx)
	if err != nil || !ok {
		return Credential{}, false
	}

	exp, live := g.expiry(token)
	if !live {
		return Credential{}, false
	}
	return Credential{Token: token, Expiry: exp}, true
}

// Do is the authorized request. A missing or expired credential fails with
// ErrSessionExpired before anything is sent. A 401 answer expires the session.
// Every other outcome is returned unchanged.
func (g *Guard) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, ok, err := g.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if !ok {
		g.expire(ctx, CauseMissing)
		return nil, fmt.Errorf("%w: no credential", apperr.ErrSessionExpired)
	}
	if g.IsExpired(token) {
		g.expire(ctx, CauseExpired)
		return nil, fmt.Errorf("%w: credential expired", apperr.ErrSessionExpired)
	}

	req = req.Clone(ctx)
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   g.client.Transport,
		},
		Timeout: g.client.Timeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		g.expire(ctx, CauseRejected)
		return nil, fmt.Errorf("%w: credential rejected", apperr.ErrSessionExpired)
	}

	return resp, nil
}

// ExpireSession deletes the credential and the cached profile. Calling it
// again is harmless.
func (g *Guard) ExpireSession(ctx context.Context) error {
	g.mu.Lock()
	g.profile = nil
	g.mu.Unlock()

	return errors.Join(
		g.store.Clear(ctx, TokenKey),
		g.store.Clear(ctx, UserKey),
	)
}

func (g *Guard) expire(ctx context.Context, cause string) {
	if err := g.ExpireSession(ctx); err != nil {
		g.logger.Warn("failed to clear session", zap.String("cause", cause), zap.Error(err))
	}

	g.logger.Info("session expired", zap.String("cause", cause))
	metrics.SessionExpired(cause)

	if g.onExpire != nil {
		g.onExpire(cause)
	}
}

// Profile returns the cached user record, reading the store on first use.
func (g *Guard) Profile(ctx context.Context) (Profile, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.profile != nil {
		return *g.profile, true
	}

	data, ok, err := g.store.Get(ctx, UserKey)
	if err != nil || !ok {
		return Profile{}, false
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		g.logger.Warn("ignoring corrupt profile", zap.Error(err))
		return Profile{}, false
	}

	g.profile = &p
	return p, true
}

// RefreshProfile fetches the profile of the credential holder and caches it.
// It is the explicit trigger callers fire on focus or navigation.
func (g *Guard) RefreshProfile(ctx context.Context) (Profile, error) {
	var body struct {
		User *Profile `json:"user"`
	}
	if err := g.api.GetJSON(ctx, profilePath, &body); err != nil {
		return Profile{}, fmt.Errorf("failed to refresh profile: %w", err)
	}
	if body.User == nil {
		return Profile{}, apperr.Unavailable("refresh profile", errors.New("response has no user"))
	}

	if err := g.storeProfile(ctx, *body.User); err != nil {
		return Profile{}, err
	}
	return *body.User, nil
}

func (g *Guard) storeProfile(ctx context.Context, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := g.store.Set(ctx, UserKey, data); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}

	g.mu.Lock()
	g.profile = &p
	g.mu.Unlock()
	return nil
}

func (g *Guard) token(ctx context.Context) (string, bool, error) {
	data, ok, err := g.store.Get(ctx, TokenKey)
	if err != nil || !ok || len(data) == 0 {
		return "", false, err
	}
	return string(data), true, nil
}
