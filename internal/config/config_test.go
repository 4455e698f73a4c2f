package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/imposter-game/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Game.ImposterCount)
	assert.Equal(t, 40*time.Second, cfg.Game.MessageTime)
	assert.Equal(t, 30*time.Second, cfg.Game.VoteTime)
	assert.Equal(t, 5, cfg.Game.MaxRounds)
	assert.Equal(t, 5*time.Second, cfg.Game.Phases.WordAssignment)
	assert.Equal(t, 10*time.Second, cfg.Game.Phases.PreVoting)
	assert.Equal(t, 4*time.Second, cfg.Game.Phases.VoteReveal)
	assert.Equal(t, 5*time.Second, cfg.Game.Phases.Results)
	assert.Equal(t, 3*time.Second, cfg.Game.Phases.RoundEnd)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
game:
  imposter_count: 2
  message_time: 15s
  max_rounds: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Game.ImposterCount)
	assert.Equal(t, 15*time.Second, cfg.Game.MessageTime)
	assert.Equal(t, 3, cfg.Game.MaxRounds)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  imposter_count: 0\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConfigValidate, apperrors.GetCode(err))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConfigLoad, apperrors.GetCode(err))
}

func TestValidate_Durations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  vote_time: 0s\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "game.vote_time")
}
