package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
relay:
  host: smtp.gmail.com
  port: 587
  connect_timeout_seconds: 30
modules:
  campaign:
    enabled: true
    pacing_interval_ms: 1000
    idempotency_ttl_minutes: 60
instrument:
  trace_sample_ratio: 0.25
  log_mask_fields: password,sender_secret
app:
  server:
    cors:
      - http://localhost:3000
      - https://app.example.com
`

func TestViperFromBytes(t *testing.T) {
	cfg, err := NewViperFromBytes("yaml", []byte(sampleYAML))
	require.NoError(t, err)
	defer cfg.Close()

	assert.Equal(t, "smtp.gmail.com", cfg.GetString("relay.host"))
	assert.Equal(t, 587, cfg.GetInt("relay.port"))
	assert.Equal(t, int64(587), cfg.GetInt64("relay.port"))
	assert.True(t, cfg.GetBool("modules.campaign.enabled"))
	assert.Equal(t, 30*time.Second, cfg.GetSecond("relay.connect_timeout_seconds"))
	assert.Equal(t, time.Second, cfg.GetMillisecond("modules.campaign.pacing_interval_ms"))
	assert.Equal(t, time.Hour, cfg.GetMinute("modules.campaign.idempotency_ttl_minutes"))
	assert.InDelta(t, 0.25, cfg.GetFloat64("instrument.trace_sample_ratio"), 1e-9)
	assert.Equal(t, []string{"password", "sender_secret"}, cfg.GetArray("instrument.log_mask_fields"))
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.GetArray("app.server.cors"))
	assert.Nil(t, cfg.GetArray("missing.key"))
	assert.False(t, cfg.GetBool("missing.key"))
}

func TestViperFromBytes_RequiresType(t *testing.T) {
	_, err := NewViperFromBytes(" ", []byte(sampleYAML))
	assert.ErrorIs(t, err, ErrConfigType)
}

func TestViper_GetArrayTrimsAndDropsEmpty(t *testing.T) {
	cfg, err := NewViperFromBytes("yaml", []byte("fields: \" password , ,sender_secret \"\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"password", "sender_secret"}, cfg.GetArray("fields"))
}

func TestNewViper_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := NewViper(path)
	require.NoError(t, err)

	assert.Equal(t, "smtp.gmail.com", cfg.GetString("relay.host"))
}

func TestNewViper_MissingFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
