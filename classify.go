package conversync

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// ErrorKind is the normalized failure taxonomy shared by every component.
type ErrorKind string

const (
	KindConnection    ErrorKind = "connection"
	KindMessage       ErrorKind = "message"
	KindSerialization ErrorKind = "serialization"
	KindHeartbeat     ErrorKind = "heartbeat"
	KindTimeout       ErrorKind = "timeout"
	KindUnknown       ErrorKind = "unknown"

	// KindAny registers a listener for every classified error.
	KindAny ErrorKind = "*"
)

// Origin identifies which component raised an error. Origin is consulted
// first; content inspection is the fallback when origin alone is ambiguous.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginConn
	OriginHeartbeat
	OriginFrame
	OriginReconciler
	OriginTakeover
	OriginREST
)

// Classified is a normalized error record.
type Classified struct {
	Kind      ErrorKind
	Message   string
	Detail    string
	Timestamp time.Time
}

// ErrorListener receives classified errors for a kind (or KindAny).
type ErrorListener func(Classified)

// Classifier normalizes heterogeneous failures into the taxonomy and
// fans them out to registered listeners. Classification never silently
// drops an error: every report is logged at a kind-appropriate severity.
type Classifier struct {
	clock  Clock
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[ErrorKind][]ErrorListener
}

// NewClassifier creates a classifier. A nil logger falls back to
// slog.Default.
func NewClassifier(clock Clock, logger *slog.Logger) *Classifier {
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		clock:     clock,
		logger:    logger,
		listeners: make(map[ErrorKind][]ErrorListener),
	}
}

// OnKind registers a listener for one kind, or for every kind via KindAny.
func (c *Classifier) OnKind(kind ErrorKind, l ErrorListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[kind] = append(c.listeners[kind], l)
}

// Classify maps an error to the taxonomy without reporting it.
func (c *Classifier) Classify(err error, origin Origin) Classified {
	return Classified{
		Kind:      kindOf(err, origin),
		Message:   topLine(err),
		Detail:    err.Error(),
		Timestamp: c.clock.Now(),
	}
}

// Report classifies an error, notifies kind and wildcard listeners, and
// logs it. Returns the classified record.
func (c *Classifier) Report(err error, origin Origin) Classified {
	ce := c.Classify(err, origin)

	switch ce.Kind {
	case KindConnection, KindUnknown:
		c.logger.Error("sync error", "kind", ce.Kind, "error", ce.Detail)
	default:
		c.logger.Warn("sync error", "kind", ce.Kind, "error", ce.Detail)
	}

	c.mu.Lock()
	notify := make([]ErrorListener, 0, len(c.listeners[ce.Kind])+len(c.listeners[KindAny]))
	notify = append(notify, c.listeners[ce.Kind]...)
	notify = append(notify, c.listeners[KindAny]...)
	c.mu.Unlock()

	for _, l := range notify {
		l(ce)
	}
	return ce
}

func kindOf(err error, origin Origin) ErrorKind {
	switch origin {
	case OriginConn:
		return KindConnection
	case OriginHeartbeat:
		return KindHeartbeat
	case OriginReconciler, OriginTakeover:
		return KindMessage
	}

	// OriginFrame, OriginREST, and OriginUnknown need content inspection.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "unmarshal", "unexpected end of json", "invalid character", "decode", "parse"):
		return KindSerialization
	case containsAny(msg, "timeout", "deadline"):
		return KindTimeout
	case containsAny(msg, "dial", "connection refused", "connection reset", "broken pipe", "closed network", "eof"):
		return KindConnection
	}

	if origin == OriginFrame || origin == OriginREST {
		return KindMessage
	}
	return KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// topLine trims wrapped error chains down to the outermost description.
func topLine(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}
