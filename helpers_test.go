package conversync

import "time"

// Real-time bounds for asserting on goroutine-driven effects.
const (
	timeoutEventually = 2 * time.Second
	tickEventually    = 5 * time.Millisecond
)

// testConfig returns a normalized config with short, test-friendly
// tunables. The WS endpoint is never dialed: tests stub the dialer.
func testConfig() Config {
	cfg := Config{
		WSEndpoint:           "ws://gateway.test",
		APIEndpoint:          "http://gateway.test/api/v1",
		HeartbeatInterval:    25 * time.Second,
		LivenessTimeout:      75 * time.Second,
		ReconnectBase:        time.Second,
		ReconnectCap:         30 * time.Second,
		MaxReconnectAttempts: 3,
		PendingTimeout:       10 * time.Second,
	}
	if err := cfg.normalize(); err != nil {
		panic(err)
	}
	return cfg
}
