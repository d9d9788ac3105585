package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-trending-digest/internal/adapter/openai"
	"github-trending-digest/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.DSN = "file:apptest?mode=memory&cache=shared"
	cfg.LLM.APIKey = "test-key"
	cfg.Server.Mode = "test"
	cfg.Redis.Enabled = false
	return cfg
}

func TestNewLLMProvider(t *testing.T) {
	p, closer, err := newLLMProvider(context.Background(), config.LLMConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &openai.Provider{}, p)

	_, _, err = newLLMProvider(context.Background(), config.LLMConfig{Provider: "openai"})
	assert.Error(t, err)

	_, _, err = newLLMProvider(context.Background(), config.LLMConfig{Provider: "claude", APIKey: "k"})
	assert.Error(t, err)
}

func TestBuildApp_WiresServer(t *testing.T) {
	app, err := buildApp(context.Background(), testConfig())
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.runner)
	require.NotNil(t, app.server)
	assert.False(t, app.runner.Running())

	// 默认技术栈在迁移时写入
	w := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config/tech-stack", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AI/LLM")

	w = httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"today_pushed":false`)

	w = httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBuildApp_MissingLLMKey(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.APIKey = ""

	_, err := buildApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	calls := 0
	app := &application{closers: []func() error{func() error { calls++; return nil }}}
	app.Close()
	app.Close()
	assert.Equal(t, 1, calls)
}
