// Package frame implements the inbound codec for the conversation sync
// protocol. Frames arrive as JSON text messages, or as zstd-compressed
// binary messages when the gateway decides a payload is worth shrinking.
//
// Envelope layout:
//
//	{
//	  "event_type":       "message" | "system" | "connect" | "status",
//	  "conversation_id":  "<id>",
//	  "payload":          { ... },
//	  "server_timestamp": "<RFC 3339>"
//	}
package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types carried on the wire. "ping" is outbound-only: the client
// sends it as a heartbeat probe and the gateway never delivers it back.
const (
	TypeMessage = "message"
	TypeSystem  = "system"
	TypeConnect = "connect"
	TypeStatus  = "status"
	TypePing    = "ping"
)

const MaxPayloadLen = 32 * 1024 // 32 KB hard limit, post-decompression

var (
	ErrUnknownEventType    = errors.New("frame: unknown event type")
	ErrMissingConversation = errors.New("frame: missing conversation_id")
	ErrBadTimestamp        = errors.New("frame: bad server_timestamp")
	ErrPayloadTooLarge     = errors.New("frame: payload exceeds maximum size")
)

// Frame is one decoded unit of wire traffic. Immutable once parsed.
type Frame struct {
	EventType       string
	ConversationID  string
	Payload         json.RawMessage
	ServerTimestamp time.Time
}

type envelope struct {
	EventType       string          `json:"event_type"`
	ConversationID  string          `json:"conversation_id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ServerTimestamp string          `json:"server_timestamp"`
}

func validType(t string) bool {
	switch t {
	case TypeMessage, TypeSystem, TypeConnect, TypeStatus:
		return true
	}
	return false
}

// Parse decodes and validates one inbound frame. Callers are expected
// to have decompressed binary messages first (see Decompress).
func Parse(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("frame: decode: %w", err)
	}
	if !validType(env.EventType) {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	if env.ConversationID == "" {
		return Frame{}, ErrMissingConversation
	}
	if len(env.Payload) > MaxPayloadLen {
		return Frame{}, ErrPayloadTooLarge
	}
	ts, err := time.Parse(time.RFC3339, env.ServerTimestamp)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %q", ErrBadTimestamp, env.ServerTimestamp)
	}
	return Frame{
		EventType:       env.EventType,
		ConversationID:  env.ConversationID,
		Payload:         env.Payload,
		ServerTimestamp: ts,
	}, nil
}

// Encode serialises an outbound frame. The client only sends ping
// probes, but the codec is symmetric so a fake gateway in tests can
// speak the same dialect.
func Encode(eventType, conversationID string, payload any, ts time.Time) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("frame: encode payload: %w", err)
		}
		raw = b
	}
	return json.Marshal(envelope{
		EventType:       eventType,
		ConversationID:  conversationID,
		Payload:         raw,
		ServerTimestamp: ts.UTC().Format(time.RFC3339),
	})
}

// Ping builds the heartbeat probe sent while a connection is live.
func Ping(conversationID string, now time.Time) []byte {
	b, _ := json.Marshal(envelope{
		EventType:       TypePing,
		ConversationID:  conversationID,
		ServerTimestamp: now.UTC().Format(time.RFC3339),
	})
	return b
}
