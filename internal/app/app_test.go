package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dvcrn/amazonq-proxy/internal/config"
	"github.com/dvcrn/amazonq-proxy/internal/credentials"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewServerUsesFallbackCredentials(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.CredentialsJSON = `{"refreshToken":"r","clientId":"c","clientSecret":"s"}`

	srv, manager, err := NewServer(&cfg, credentials.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)
	defer manager.Close()
	require.NoError(t, manager.Load(context.Background()))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/credentials", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "has_credentials").Bool())
	assert.False(t, gjson.Get(rec.Body.String(), "has_access_token").Bool())
}

func TestNewServerPrefersStore(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.CredentialsJSON = `{"refresh_token":"fallback","client_id":"c","client_secret":"s"}`

	store := credentials.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), cfg.Auth.StoreKey,
		[]byte(`{"refresh_token":"stored","client_id":"c","client_secret":"s"}`)))

	_, manager, err := NewServer(&cfg, store, zerolog.Nop())
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, "stored", manager.Credentials(context.Background()).RefreshToken)
}

func TestNewServerRejectsUnreadableCABundle(t *testing.T) {
	cfg := config.Defaults()
	cfg.Upstream.TLS.CABundle = filepath.Join(t.TempDir(), "missing.pem")

	_, _, err := NewServer(&cfg, credentials.NewMemoryStore(), zerolog.Nop())
	assert.ErrorContains(t, err, "CA bundle")
}
