package conversync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONVERSYNC_WS_ENDPOINT", "wss://gw.example.com/")
	t.Setenv("CONVERSYNC_TOKEN", "tok-123")
	t.Setenv("CONVERSYNC_HEARTBEAT_INTERVAL", "10s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "wss://gw.example.com", cfg.WSEndpoint)
	assert.Equal(t, "https://gw.example.com/api/v1", cfg.APIEndpoint)
	assert.Equal(t, "tok-123", cfg.Token)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.LivenessTimeout, "defaults to 3x heartbeat")
	assert.Equal(t, time.Second, cfg.ReconnectBase)
	assert.Equal(t, 30*time.Second, cfg.ReconnectCap)
	assert.Equal(t, 8, cfg.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.PendingTimeout)
}

func TestLoadConfigExplicitAPIBase(t *testing.T) {
	t.Setenv("CONVERSYNC_WS_ENDPOINT", "ws://localhost:8080")
	t.Setenv("CONVERSYNC_API_ENDPOINT", "http://localhost:9090/api/v1/")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9090/api/v1", cfg.APIEndpoint)
}

func TestLoadConfigMissingEndpoint(t *testing.T) {
	t.Setenv("CONVERSYNC_WS_ENDPOINT", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "ws endpoint")
}

func TestDeriveAPIBase(t *testing.T) {
	tests := []struct {
		ws      string
		want    string
		wantErr bool
	}{
		{ws: "wss://gw.example.com", want: "https://gw.example.com/api/v1"},
		{ws: "ws://localhost:8080", want: "http://localhost:8080/api/v1"},
		{ws: "wss://gw.example.com/chat", want: "https://gw.example.com/chat/api/v1"},
		{ws: "https://gw.example.com", wantErr: true},
	}
	for _, tt := range tests {
		got, err := deriveAPIBase(tt.ws)
		if tt.wantErr {
			assert.Error(t, err, tt.ws)
			continue
		}
		require.NoError(t, err, tt.ws)
		assert.Equal(t, tt.want, got, tt.ws)
	}
}

func TestNormalizeValidation(t *testing.T) {
	cfg := Config{
		WSEndpoint:           "ws://localhost:8080",
		HeartbeatInterval:    30 * time.Second,
		LivenessTimeout:      20 * time.Second,
		MaxReconnectAttempts: 5,
	}
	err := cfg.normalize()
	assert.ErrorContains(t, err, "liveness timeout")

	cfg = Config{WSEndpoint: "ws://localhost:8080"}
	err = cfg.normalize()
	assert.ErrorContains(t, err, "reconnect attempts")

	cfg = Config{WSEndpoint: "ws://localhost:8080", MaxReconnectAttempts: 5}
	require.NoError(t, cfg.normalize())
	assert.Equal(t, defaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, defaultPendingTimeout, cfg.PendingTimeout)
	assert.Equal(t, 3*defaultHeartbeatInterval, cfg.LivenessTimeout)
}
