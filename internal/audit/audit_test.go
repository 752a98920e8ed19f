package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "set", SanitiseKey("GROQ_API_KEY", "gsk-abc123"))
	assert.Equal(t, "unset", SanitiseKey("GROQ_API_KEY", ""))
	assert.Equal(t, "set", SanitiseKey("DATABASE_URL", "postgres://u:p@h/db"))
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "groq", SanitiseKey("MODEL_PROVIDER", "groq"))
	assert.Equal(t, "unset", SanitiseKey("MODEL_PROVIDER", ""))
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "none", sanitiseConfigPath(""))
	assert.Equal(t, "/tmp/config.yaml", sanitiseConfigPath("/tmp/config.yaml"))

	home, err := os.UserHomeDir()
	if err == nil {
		assert.Equal(t, "~/.resume-agent/config.yaml", sanitiseConfigPath(home+"/.resume-agent/config.yaml"))
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-super-secret")
	t.Setenv("MODEL_PROVIDER", "groq")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(log, "serve", "")

	assert.NotContains(t, buf.String(), "gsk-super-secret")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "set", entry["GROQ_API_KEY"])
	assert.Equal(t, "groq", entry["MODEL_PROVIDER"])
	assert.Equal(t, "serve", entry["command"])
	assert.Equal(t, "none", entry["config_file"])
}
