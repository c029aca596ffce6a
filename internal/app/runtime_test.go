package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeval/internal/config"
	"aeval/internal/domain"
	"aeval/internal/logger"
)

func TestOpenFreshWorkspace(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(context.Background(), Options{Workspace: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.Equal(t, "clarify", rt.Config.Recommend.UnknownIntent)
	assert.Len(t, rt.Engine.Store.Datasets(), 8)
	assert.FileExists(t, filepath.Join(dir, ".aeval", "state.db"))

	profile, err := rt.Engine.Profile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestOpenPersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	answers := domain.OnboardingAnswers{Role: "ML Engineer", Goal: "Reduce hallucinations", AgentName: "SupportBot"}

	rt, err := Open(ctx, Options{Workspace: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	require.NoError(t, rt.Engine.Onboarding().Complete(ctx, answers))
	require.NoError(t, rt.Close())

	rt, err = Open(ctx, Options{Workspace: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	profile, err := rt.Engine.Profile(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, answers, *profile)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "recommend:\n  unknown_intent: fallback\nsimulation:\n  latency: 10ms\n"
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(yml), 0o644))

	rt, err := Open(context.Background(), Options{Workspace: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	assert.Equal(t, "fallback", rt.Config.Recommend.UnknownIntent)
	assert.Equal(t, 10*time.Millisecond, rt.Config.Simulation.Latency)
}

func TestOpenRejectsBadConfigPath(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("log:\n  level: loud\n"), 0o644))

	_, err := Open(context.Background(), Options{Workspace: dir, ConfigPath: bad, Logger: logger.Discard()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.log.level")

	_, err = Open(context.Background(), Options{Workspace: dir, ConfigPath: filepath.Join(dir, "missing.yml")})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	rt, err := Open(context.Background(), Options{Workspace: t.TempDir(), Logger: logger.Discard()})
	require.NoError(t, err)
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	var nilRuntime *Runtime
	assert.NoError(t, nilRuntime.Close())
}
