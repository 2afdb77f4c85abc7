package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/config"
	"github.com/Harshitk-cp/paper-agent/internal/llm"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		LLMProvider:       llm.ProviderMock,
		EmbeddingProvider: "local",
		StoreBackend:      BackendSQLite,
		SQLitePath:        filepath.Join(dir, "catalog.db"),
		AgentConfigDir:    filepath.Join("..", "..", "config", "agents"),
		EventsDir:         filepath.Join(dir, "events"),
		StructuredLogDir:  filepath.Join(dir, "structured"),
		MaxHops:           4,
	}
}

func TestBuild_RunsATurn(t *testing.T) {
	c, err := Build(context.Background(), testOptions(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	assert.ElementsMatch(t, AgentNames, c.Configs.Names())
	require.NoError(t, c.Ping(context.Background()))

	res, err := c.Engine.ProcessTurn(context.Background(), "boot-1", "LLMs help small teams")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Message)

	evs, err := c.Bus.GetSessionEvents("boot-1")
	require.NoError(t, err)
	assert.NotEmpty(t, evs)
}

func TestBuild_MissingAgentConfig(t *testing.T) {
	opts := testOptions(t)
	opts.AgentConfigDir = t.TempDir()

	_, err := Build(context.Background(), opts, zap.NewNop())
	var lerr *config.LoadError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, AgentNames[0], lerr.Agent)
}

func TestBuild_UnknownBackend(t *testing.T) {
	opts := testOptions(t)
	opts.StoreBackend = "cassandra"

	_, err := Build(context.Background(), opts, zap.NewNop())
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestBuild_PostgresNeedsURL(t *testing.T) {
	opts := testOptions(t)
	opts.StoreBackend = BackendPostgres

	_, err := Build(context.Background(), opts, zap.NewNop())
	assert.ErrorContains(t, err, "DATABASE_URL")
}
