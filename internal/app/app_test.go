package app

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authservice/internal/config"
)

func TestRouterConfig_UsesConfiguredOrigins(t *testing.T) {
	cfg := &config.Config{AllowedOrigins: []string{"https://app.example.com"}}

	rc := routerConfig(cfg)

	assert.Equal(t, ServiceName, rc.ServiceName)
	assert.Equal(t, []string{"https://app.example.com"}, rc.CORS.AllowedOrigins)
	assert.False(t, rc.CORS.AllowCredentials)
	assert.Equal(t, int64(16<<10), rc.MaxBodyBytes)
}

func TestRouterConfig_CarriesCredentialRateLimit(t *testing.T) {
	rc := routerConfig(&config.Config{CredentialRateLimitRPS: 2, CredentialRateLimitBurst: 5})

	assert.True(t, rc.CredentialRateLimit.Enabled())
	assert.Equal(t, 2.0, rc.CredentialRateLimit.RPS)
	assert.Equal(t, 5, rc.CredentialRateLimit.Burst)
	assert.False(t, routerConfig(&config.Config{}).CredentialRateLimit.Enabled())
}

func TestRouterConfig_DefaultsToWildcard(t *testing.T) {
	rc := routerConfig(&config.Config{})

	assert.Equal(t, []string{"*"}, rc.CORS.AllowedOrigins)
}

func TestNewHTTPServer_Timeouts(t *testing.T) {
	srv := newHTTPServer(2000, http.NotFoundHandler())

	assert.Equal(t, ":2000", srv.Addr)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	var tracerFlushed bool
	a := &App{
		logger:     slog.New(slog.DiscardHandler),
		httpServer: newHTTPServer(0, http.NotFoundHandler()),
		tracerShutdown: func(context.Context) error {
			tracerFlushed = true
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, tracerFlushed)
}
