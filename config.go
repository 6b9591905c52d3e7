package conversync

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the engine's connection parameters and tunables. The
// two base URLs come from the deploy environment; everything else has
// defaults that match the hosted gateway.
type Config struct {
	WSEndpoint  string // realtime transport base (e.g. "wss://gw.example.com")
	APIEndpoint string // REST base — derived from WSEndpoint if empty
	Token       string // bearer token for both surfaces

	HeartbeatInterval    time.Duration
	LivenessTimeout      time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int
	PendingTimeout       time.Duration
}

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultReconnectBase     = time.Second
	defaultReconnectCap      = 30 * time.Second
	defaultMaxReconnects     = 8
	defaultPendingTimeout    = 10 * time.Second
)

// LoadConfig reads configuration from CONVERSYNC_* environment
// variables. Durations accept Go duration strings ("25s", "1m").
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("conversync")
	v.AutomaticEnv()

	v.SetDefault("heartbeat_interval", defaultHeartbeatInterval)
	v.SetDefault("reconnect_base", defaultReconnectBase)
	v.SetDefault("reconnect_cap", defaultReconnectCap)
	v.SetDefault("max_reconnect_attempts", defaultMaxReconnects)
	v.SetDefault("pending_timeout", defaultPendingTimeout)

	cfg := Config{
		WSEndpoint:           v.GetString("ws_endpoint"),
		APIEndpoint:          v.GetString("api_endpoint"),
		Token:                v.GetString("token"),
		HeartbeatInterval:    v.GetDuration("heartbeat_interval"),
		LivenessTimeout:      v.GetDuration("liveness_timeout"),
		ReconnectBase:        v.GetDuration("reconnect_base"),
		ReconnectCap:         v.GetDuration("reconnect_cap"),
		MaxReconnectAttempts: v.GetInt("max_reconnect_attempts"),
		PendingTimeout:       v.GetDuration("pending_timeout"),
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize fills derived fields and validates the result. Exposed to
// the engine constructor so hand-built configs get the same treatment.
func (c *Config) normalize() error {
	if c.WSEndpoint == "" {
		return errors.New("config: ws endpoint is required")
	}
	c.WSEndpoint = strings.TrimRight(c.WSEndpoint, "/")
	if c.APIEndpoint == "" {
		derived, err := deriveAPIBase(c.WSEndpoint)
		if err != nil {
			return err
		}
		c.APIEndpoint = derived
	}
	c.APIEndpoint = strings.TrimRight(c.APIEndpoint, "/")

	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = 3 * c.HeartbeatInterval
	}
	if c.LivenessTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("config: liveness timeout %s must exceed heartbeat interval %s",
			c.LivenessTimeout, c.HeartbeatInterval)
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.ReconnectCap < c.ReconnectBase {
		c.ReconnectCap = defaultReconnectCap
	}
	if c.MaxReconnectAttempts <= 0 {
		return errors.New("config: max reconnect attempts must be positive")
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = defaultPendingTimeout
	}
	return nil
}

// deriveAPIBase maps the WS endpoint onto the REST base: scheme swap
// plus the conventional /api/v1 prefix.
func deriveAPIBase(wsEndpoint string) (string, error) {
	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return "", fmt.Errorf("config: parse ws endpoint: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	default:
		return "", fmt.Errorf("config: ws endpoint scheme %q is not ws or wss", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1"
	return u.String(), nil
}
