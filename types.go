// Package conversync implements the realtime conversation synchronization
// engine behind the consultation chat: a persistent gateway connection
// with heartbeat and bounded reconnection, a typed event dispatcher, a
// message reconciler that merges REST history, pushed deltas, and
// optimistic local writes, and a takeover controller tracking who is
// answering the conversation.
package conversync

import "time"

// ConnectionState is the lifecycle state of the gateway connection.
// Owned exclusively by the connection manager; everyone else reads.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// MessageStatus is the delivery state of a message in the reconciled list.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending" // optimistic, awaiting server echo
	StatusSent    MessageStatus = "sent"    // server-confirmed
	StatusFailed  MessageStatus = "failed"  // no echo within the bounded wait; retryable
)

// TakeoverStatus is the three-way control assignment of a conversation.
type TakeoverStatus string

const (
	// TakeoverFull: a human consultant writes every reply.
	TakeoverFull TakeoverStatus = "full_takeover"
	// TakeoverSemi: the AI drafts, a human reviews before send.
	TakeoverSemi TakeoverStatus = "semi_takeover"
	// TakeoverNone: fully automated.
	TakeoverNone TakeoverStatus = "no_takeover"
)

// ValidTakeoverStatus reports whether s is one of the three states.
func ValidTakeoverStatus(s TakeoverStatus) bool {
	switch s {
	case TakeoverFull, TakeoverSemi, TakeoverNone:
		return true
	}
	return false
}

// Message is one entry in the reconciled conversation view. Exactly one
// of ID (server-assigned) or LocalID (client-assigned at creation) is
// guaranteed stable at any point; Identity resolves which.
type Message struct {
	ID             string        `json:"id,omitempty"`
	LocalID        string        `json:"localId,omitempty"`
	ConversationID string        `json:"conversationId"`
	Content        string        `json:"content"`
	Sender         string        `json:"sender"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status"`
	IsImportant    bool          `json:"isImportant"`
}

// Identity returns the deduplication identity: ID if present, else LocalID.
func (m Message) Identity() string {
	if m.ID != "" {
		return m.ID
	}
	return m.LocalID
}
