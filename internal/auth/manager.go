package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/dvcrn/amazonq-proxy/internal/httpclient"
	"github.com/dvcrn/amazonq-proxy/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Options configures a Manager.
type Options struct {
	Store credentials.Store
	Key   string
	// Fallback is an externally supplied credentials blob used only when the
	// store holds nothing.
	Fallback []byte
	// RefreshMargin is subtracted from each token lifetime. nil selects
	// DefaultRefreshMargin; zero refreshes only at actual expiry.
	RefreshMargin *time.Duration
	TokenURL      string
	HTTPClient    httpclient.HTTPClient
	Logger        *zerolog.Logger
	// LogRefresh enables info-level logging of token refresh activity.
	LogRefresh bool
	Now        func() time.Time
}

// Manager keeps a valid bearer token available for upstream calls. The store
// is authoritative; the cached token is adopted only after it was persisted.
type Manager struct {
	store      credentials.Store
	key        string
	fallback   []byte
	margin     time.Duration
	tokenURL   string
	client     httpclient.HTTPClient
	logger     zerolog.Logger
	logRefresh bool
	now        func() time.Time

	mu     sync.RWMutex
	loaded bool
	creds  *credentials.Credentials
	token  string
	expiry *time.Time

	// writeMu serializes read-modify-write cycles against the store.
	writeMu sync.Mutex

	group    singleflight.Group
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager with empty token state. Credentials are read
// lazily on first use, or eagerly through Load.
func NewManager(opts Options) *Manager {
	m := &Manager{
		store:      opts.Store,
		key:        opts.Key,
		fallback:   opts.Fallback,
		margin:     DefaultRefreshMargin,
		tokenURL:   opts.TokenURL,
		client:     opts.HTTPClient,
		logger:     zerolog.Nop(),
		logRefresh: opts.LogRefresh,
		now:        opts.Now,
		creds:      &credentials.Credentials{},
		stopCh:     make(chan struct{}),
	}
	if m.store == nil {
		m.store = credentials.NewMemoryStore()
	}
	if m.key == "" {
		m.key = "amazonq-credentials"
	}
	if opts.RefreshMargin != nil && *opts.RefreshMargin >= 0 {
		m.margin = *opts.RefreshMargin
	}
	if m.client == nil {
		m.client = httpclient.New(0)
	}
	if opts.Logger != nil {
		m.logger = *opts.Logger
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Load reads credentials from the store, then from the fallback blob, and
// otherwise starts from an empty record. Absence is not an error; a failing
// or corrupt store is reported but the manager still falls back.
func (m *Manager) Load(ctx context.Context) error {
	stored, storeErr := m.readStore(ctx)
	creds := stored
	if creds == nil && len(m.fallback) > 0 {
		parsed, err := credentials.Parse(m.fallback)
		if err != nil {
			m.logger.Warn().Err(err).Msg("⚠️  Ignoring invalid fallback credentials")
		} else {
			creds = parsed
		}
	}
	if creds == nil {
		creds = &credentials.Credentials{}
	}

	m.mu.Lock()
	m.adopt(creds)
	m.loaded = true
	m.mu.Unlock()
	return storeErr
}

func (m *Manager) ensureLoaded(ctx context.Context) {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if loaded {
		return
	}
	if err := m.Load(ctx); err != nil {
		m.logger.Error().Err(err).Msg("❌ Failed to load credentials from store")
	}
}

// readStore returns nil when the store has no usable record.
func (m *Manager) readStore(ctx context.Context) (*credentials.Credentials, error) {
	raw, err := m.store.Get(ctx, m.key)
	if errors.Is(err, credentials.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	creds, err := credentials.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored credentials: %w", err)
	}
	return creds, nil
}

func (m *Manager) persist(ctx context.Context, creds *credentials.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := m.store.Put(ctx, m.key, data); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}

// adopt replaces the cached record and token state. Callers hold m.mu.
func (m *Manager) adopt(creds *credentials.Credentials) {
	m.creds = creds
	m.token = creds.AccessToken
	m.expiry = nil
	if creds.TokenExpiry != nil {
		expiry := *creds.TokenExpiry
		m.expiry = &expiry
	}
}

// valid reports whether token is usable at now. A token without a known
// expiry is treated as valid until the upstream rejects it.
func valid(token string, expiry *time.Time, now time.Time) bool {
	if token == "" {
		return false
	}
	return expiry == nil || now.Before(*expiry)
}

// sameClient reports whether a and b exchange tokens as the same OIDC client.
func sameClient(a, b *credentials.Credentials) bool {
	return a.RefreshToken == b.RefreshToken &&
		a.ClientID == b.ClientID &&
		a.ClientSecret == b.ClientSecret
}

// GetAccessToken returns the cached token while it is valid and refreshes otherwise.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.ensureLoaded(ctx)

	m.mu.RLock()
	token, expiry := m.token, m.expiry
	m.mu.RUnlock()

	if valid(token, expiry, m.now()) {
		return token, nil
	}
	if m.logRefresh {
		m.logger.Info().Msg("🔄 Access token missing or expired, refreshing...")
	}
	return m.refreshFrom(ctx, token)
}

// Refresh forces a new access token. Concurrent callers share one exchange;
// the shared call is not cancelled when the first caller goes away and is
// bounded by the HTTP client timeout instead.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.ensureLoaded(ctx)

	m.mu.RLock()
	stale := m.token
	m.mu.RUnlock()
	return m.refreshFrom(ctx, stale)
}

// refreshFrom replaces stale. If another caller already replaced it with a
// valid token in the meantime, that token is returned without an exchange.
func (m *Manager) refreshFrom(ctx context.Context, stale string) (string, error) {
	v, err, shared := m.group.Do(m.key, func() (interface{}, error) {
		return m.refresh(context.WithoutCancel(ctx), stale)
	})
	if shared {
		m.logger.Debug().Msg("Joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, stale string) (string, error) {
	m.mu.RLock()
	current, cachedToken, cachedExpiry := m.creds, m.token, m.expiry
	m.mu.RUnlock()

	if cachedToken != stale && valid(cachedToken, cachedExpiry, m.now()) {
		return cachedToken, nil
	}

	stored, err := m.readStore(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("⚠️  Could not re-read credentials before refresh")
	}

	// Another instance may already have rotated the token.
	if stored != nil && stored.AccessToken != "" && stored.AccessToken != cachedToken &&
		valid(stored.AccessToken, stored.TokenExpiry, m.now()) {
		m.mu.Lock()
		m.adopt(stored)
		m.mu.Unlock()
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.RefreshAdopted).Inc()
		if m.logRefresh {
			m.logger.Info().Int("token_length", len(stored.AccessToken)).Msg("✅ Adopted access token from store")
		}
		return stored.AccessToken, nil
	}

	base := current
	if stored != nil {
		base = stored
	}
	if missing := base.Missing(); len(missing) > 0 {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.RefreshNotReady).Inc()
		return "", &ConfigurationError{Missing: missing}
	}

	if m.logRefresh {
		m.logger.Info().
			Str("client_id", previewSecret(base.ClientID)).
			Msg("🔄 Refreshing access token")
	}

	tokens, err := RefreshToken(ctx, m.client, m.tokenURL, base)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.RefreshFailed).Inc()
		m.logger.Error().Err(err).Msg("❌ Failed to refresh access token")
		return "", err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	latest, err := m.readStore(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("⚠️  Could not re-read credentials after refresh")
	}
	if latest != nil && !sameClient(latest, base) {
		// Credentials were replaced while the exchange was in flight. The
		// new token belongs to the old client and is not kept.
		m.mu.Lock()
		m.adopt(latest)
		m.mu.Unlock()
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.RefreshAdopted).Inc()
		m.logger.Warn().Msg("⚠️  Credentials changed during token refresh, keeping the new credentials")
		if valid(latest.AccessToken, latest.TokenExpiry, m.now()) {
			return latest.AccessToken, nil
		}
		return tokens.AccessToken, nil
	}
	if latest != nil {
		base = latest
	}

	updated := base.WithToken(tokens.AccessToken, CalculateExpiry(m.now(), tokens.ExpiresIn, m.margin))
	if tokens.RefreshToken != "" {
		updated.RefreshToken = tokens.RefreshToken
	}
	if err := m.persist(ctx, updated); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.RefreshFailed).Inc()
		m.logger.Error().Err(err).Msg("❌ Failed to update tokens in storage")
		return "", err
	}

	m.mu.Lock()
	m.adopt(updated)
	m.mu.Unlock()

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.RefreshOK).Inc()
	if m.logRefresh {
		m.logger.Info().
			Int("expires_in", tokens.ExpiresIn).
			Time("token_expiry", *updated.TokenExpiry).
			Msg("✅ Access token refreshed successfully")
	}
	return tokens.AccessToken, nil
}

// SetCredentials merges rec into the stored record, persists it and adopts
// any access token and expiry it carries.
func (m *Manager) SetCredentials(ctx context.Context, rec *credentials.Credentials) error {
	if missing := rec.Missing(); len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	current, err := m.readStore(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("⚠️  Replacing unreadable stored credentials")
	}
	if current == nil {
		m.mu.RLock()
		current = m.creds
		m.mu.RUnlock()
	}

	merged := current.Merge(rec)
	if err := m.persist(ctx, merged); err != nil {
		return err
	}

	m.mu.Lock()
	m.adopt(merged)
	m.loaded = true
	m.mu.Unlock()

	m.logger.Info().
		Str("client_id", previewSecret(merged.ClientID)).
		Bool("has_access_token", merged.AccessToken != "").
		Msg("🔑 Credentials updated")
	return nil
}

// Credentials returns a copy of the cached record.
func (m *Manager) Credentials(ctx context.Context) *credentials.Credentials {
	m.ensureLoaded(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.Clone()
}

// ProfileARN returns the profile identifier carried by the credentials, if any.
func (m *Manager) ProfileARN(ctx context.Context) string {
	return m.Credentials(ctx).ProfileARN()
}

// Status picks up the stored record, if any, and reports the resulting state.
func (m *Manager) Status(ctx context.Context) Status {
	stored, err := m.readStore(ctx)
	switch {
	case err != nil:
		m.logger.Warn().Err(err).Msg("⚠️  Reporting status from cached credentials")
		m.ensureLoaded(ctx)
	case stored != nil:
		m.mu.Lock()
		m.adopt(stored)
		m.loaded = true
		m.mu.Unlock()
	default:
		m.ensureLoaded(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{
		HasCredentials: m.creds.RefreshToken != "",
		HasAccessToken: m.token != "",
	}
	if m.expiry != nil {
		expiry := *m.expiry
		st.TokenExpiry = &expiry
	}
	return st
}

// Do performs call with a bearer token. A 403 response triggers exactly one
// forced refresh and one retry; a second 403 is returned as *UpstreamAuthError.
func (m *Manager) Do(ctx context.Context, call func(token string) (*http.Response, error)) (*http.Response, error) {
	token, err := m.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := call(token)
	if err != nil || resp.StatusCode != http.StatusForbidden {
		return resp, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	m.logger.Warn().Msg("⚠️  Upstream rejected token with 403, refreshing and retrying once")
	token, err = m.refreshFrom(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = call(token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden {
		defer resp.Body.Close()
		return nil, &UpstreamAuthError{Status: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return resp, nil
}

// StartBackgroundRefresh periodically refreshes the token when it would expire
// before the next tick. It returns immediately; Close stops it.
func (m *Manager) StartBackgroundRefresh(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go m.backgroundRefresh(interval)
}

func (m *Manager) backgroundRefresh(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAndRefreshToken(interval)
		case <-m.stopCh:
			m.logger.Debug().Msg("Background token refresh stopped")
			return
		}
	}
}

func (m *Manager) checkAndRefreshToken(interval time.Duration) {
	ctx := context.Background()
	m.ensureLoaded(ctx)

	m.mu.RLock()
	token, expiry, hasRefresh := m.token, m.expiry, m.creds.RefreshToken != ""
	m.mu.RUnlock()

	if !hasRefresh {
		m.logger.Debug().Msg("Background refresh: no refresh token configured")
		return
	}
	if valid(token, expiry, m.now().Add(interval)) {
		m.logger.Debug().Msg("Background refresh: token still valid")
		return
	}
	if _, err := m.refreshFrom(ctx, token); err != nil {
		m.logger.Error().Err(err).Msg("❌ Background refresh: failed to refresh token")
	}
}

// Close stops the background refresh goroutine.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func previewSecret(s string) string {
	if len(s) > 8 {
		s = s[:8]
	}
	return s + "***"
}
