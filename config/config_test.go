package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Addr(), ":8080")
	assert.Equal(t, cfg.DatabaseURL, "")
	assert.Equal(t, cfg.LogLevel, "info")
	assert.Equal(t, cfg.LogFormat, "console")
	assert.Equal(t, cfg.ServerURL, "ws://localhost:8080/ws")
	assert.Equal(t, cfg.UndoWindow, 5*time.Second)
	assert.Equal(t, cfg.AutosaveWait, 700*time.Millisecond)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"LUMI_PORT":           "9000",
		"LUMI_LOG_FORMAT":     "json",
		"LUMI_UNDO_WINDOW":    "2s",
		"LUMI_AUTOSAVE_DELAY": "250ms",
		"LUMI_TOKEN":          "abc",
	}))
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Port, "9000")
	assert.Equal(t, cfg.LogFormat, "json")
	assert.Equal(t, cfg.UndoWindow, 2*time.Second)
	assert.Equal(t, cfg.AutosaveWait, 250*time.Millisecond)
	assert.Equal(t, cfg.Token, "abc")
}

func TestInvalidValues(t *testing.T) {
	for _, m := range []map[string]string{
		{"LUMI_UNDO_WINDOW": "soon"},
		{"LUMI_UNDO_WINDOW": "-1s"},
		{"LUMI_AUTOSAVE_DELAY": "0s"},
		{"LUMI_PORT": "http"},
		{"LUMI_LOG_FORMAT": "xml"},
	} {
		_, err := FromEnv(env(m))
		assert.NotEqual(t, err, nil)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	assert.Equal(t, os.WriteFile(file, []byte("LUMI_PORT=9123\n"), 0644), nil)
	t.Setenv("LUMI_PORT", "")
	os.Unsetenv("LUMI_PORT")

	cfg, err := Load(file)
	assert.Equal(t, err, nil)
	assert.Equal(t, cfg.Port, "9123")

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Equal(t, err, nil)
}
