// Package wire defines the JSON payload types for the conversation sync
// protocol. The gateway and this engine both speak these shapes — single
// source of truth for frame payloads and the REST boundary.
package wire

// MessagePayload is the payload of a "message" frame and the per-message
// shape in REST history responses. A server-persisted message always has
// ID set; an echo of an optimistic client write additionally carries the
// LocalID it was submitted with so the client can reconcile the two.
type MessagePayload struct {
	ID          string `json:"id,omitempty"`
	LocalID     string `json:"localId,omitempty"`
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	IsImportant bool   `json:"isImportant,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"` // RFC 3339; REST only, frames use the envelope
}

// ConnectPayload is the payload of a "connect" frame: the gateway's
// handshake echo confirming which pair the connection is scoped to.
// The engine also publishes synthetic connect frames locally to announce
// connection-state transitions; those carry State.
type ConnectPayload struct {
	UserID         string `json:"userId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	State          string `json:"state,omitempty"`
}

// StatusPayload is the payload of a "status" frame: a server push of the
// conversation's takeover assignment.
type StatusPayload struct {
	Status string `json:"status"`
}

// SystemPayload is the payload of a "system" frame (notices, slow-down
// hints, moderation events). Informational; the engine logs and fans
// these out without interpreting Code.
type SystemPayload struct {
	Code string `json:"code"`
	Text string `json:"text,omitempty"`
}

// HistoryResponse is the body of GET /conversations/{id}/messages.
type HistoryResponse struct {
	Messages []MessagePayload `json:"messages"`
}

// PostMessageRequest is the body of POST /messages. ForReview marks a
// message submitted under semi_takeover: persisted, but queued for human
// review instead of delivered directly.
type PostMessageRequest struct {
	ConversationID string `json:"conversationId"`
	LocalID        string `json:"localId"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
	ForReview      bool   `json:"forReview,omitempty"`
}

// PostMessageResponse echoes the submitted LocalID alongside the
// server-assigned ID and timestamp.
type PostMessageResponse struct {
	ID        string `json:"id"`
	LocalID   string `json:"localId"`
	Timestamp string `json:"timestamp"`
}

// TakeoverRequest is the body of POST /conversations/{id}/takeover.
type TakeoverRequest struct {
	Status string `json:"status"`
}

// TakeoverResponse is the body of GET /conversations/{id}/takeover and
// the confirmation body of a successful POST.
type TakeoverResponse struct {
	Status string `json:"status"`
}

// ImportantRequest is the body of POST /messages/{id}/important.
type ImportantRequest struct {
	Important bool `json:"important"`
}
