package conversync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consultline/conversync/frame"
	"github.com/consultline/conversync/wire"
)

// ErrNotPersisted indicates an operation that needs a server-assigned
// message ID was attempted on a message the server has not confirmed.
var ErrNotPersisted = errors.New("message not yet persisted")

// ErrUnknownMessage indicates no message with the given identity exists.
var ErrUnknownMessage = errors.New("unknown message")

// sweepInterval is how often pending messages are checked against the
// acknowledgement deadline.
const sweepInterval = time.Second

// Reconciler merges REST-fetched history, dispatcher-delivered deltas,
// and locally created optimistic messages into one ordered,
// de-duplicated, status-tracked list. The list is always sorted by
// server timestamp ascending with ID as the tie-break, and no two
// entries share a resolved identity.
type Reconciler struct {
	conversationID string
	api            *APIClient
	classifier     *Classifier
	clock          Clock
	logger         *slog.Logger
	pendingTimeout time.Duration

	mu        sync.Mutex
	messages  []Message
	pendingAt map[string]time.Time // localId → creation/retry time
	dedup     *frame.DedupWindow
	sweep     Timer
	stopped   bool
}

func newReconciler(conversationID string, api *APIClient, classifier *Classifier, pendingTimeout time.Duration, clock Clock, logger *slog.Logger) *Reconciler {
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		conversationID: conversationID,
		api:            api,
		classifier:     classifier,
		clock:          clock,
		logger:         logger,
		pendingTimeout: pendingTimeout,
		pendingAt:      make(map[string]time.Time),
		dedup:          frame.NewDedupWindow(),
	}
	r.sweep = clock.AfterFunc(sweepInterval, r.sweepPending)
	return r
}

// stop invalidates the reconciler. Late frames or REST responses for a
// conversation no longer displayed must not mutate state.
func (r *Reconciler) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.sweep != nil {
		r.sweep.Stop()
	}
}

// LoadHistory fetches the persisted history and merges it into the
// list. Optimistic entries created before the fetch survive the merge.
func (r *Reconciler) LoadHistory(ctx context.Context) error {
	payloads, err := r.api.History(ctx, r.conversationID)
	if err != nil {
		r.classifier.Report(err, OriginREST)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	for _, p := range payloads {
		r.upsertLocked(messageFromPayload(p, r.conversationID, time.Time{}))
	}
	return nil
}

// ApplyFrame merges one inbound delta. Non-message frames and exact
// redeliveries are ignored; malformed payloads are reported and dropped
// without touching the list.
func (r *Reconciler) ApplyFrame(f frame.Frame) {
	if f.EventType != frame.TypeMessage || f.ConversationID != r.conversationID {
		return
	}

	var p wire.MessagePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		r.classifier.Report(fmt.Errorf("message payload: %w", err), OriginFrame)
		return
	}
	m := messageFromPayload(p, r.conversationID, f.ServerTimestamp)
	if m.Identity() == "" {
		r.classifier.Report(errors.New("message frame without id or localId"), OriginFrame)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	// Exact redelivery (same identity at the same server timestamp) is
	// common after a reconnect re-sync; short-circuit before the merge.
	if r.dedup.IsDuplicate(m.Identity() + "@" + m.Timestamp.UTC().Format(time.RFC3339Nano)) {
		return
	}
	r.upsertLocked(m)
}

// CreateLocal creates a pending optimistic entry with a client-assigned
// localId and inserts it in timestamp order. Returns a copy.
func (r *Reconciler) CreateLocal(content, sender string) Message {
	m := Message{
		LocalID:        uuid.NewString(),
		ConversationID: r.conversationID,
		Content:        content,
		Sender:         sender,
		Timestamp:      r.clock.Now(),
		Status:         StatusPending,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingAt[m.LocalID] = m.Timestamp
	r.upsertLocked(m)
	return m
}

// confirm applies a REST acknowledgement: the pending entry identified
// by localId becomes sent with the server id and timestamp attached.
func (r *Reconciler) confirm(resp wire.PostMessageResponse) {
	ts, err := time.Parse(time.RFC3339, resp.Timestamp)
	if err != nil {
		ts = r.clock.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	delete(r.pendingAt, resp.LocalID)
	for i := range r.messages {
		if r.messages[i].LocalID == resp.LocalID {
			m := r.messages[i]
			m.ID = resp.ID
			m.Status = StatusSent
			m.Timestamp = ts
			r.upsertAtLocked(i, m)
			return
		}
	}
}

// fail flags a pending message as failed immediately (transport-level
// submit failure). The entry keeps its localId so a retry reconciles.
func (r *Reconciler) fail(localID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	delete(r.pendingAt, localID)
	for i := range r.messages {
		if r.messages[i].LocalID == localID && r.messages[i].Status == StatusPending {
			r.messages[i].Status = StatusFailed
			return
		}
	}
}

// prepareRetry flips a failed message back to pending and returns it
// for re-submission with the same localId, so the eventual echo still
// reconciles to one entry.
func (r *Reconciler) prepareRetry(identity string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].Identity() != identity {
			continue
		}
		if r.messages[i].Status != StatusFailed {
			return Message{}, fmt.Errorf("message %s is %s, not failed", identity, r.messages[i].Status)
		}
		r.messages[i].Status = StatusPending
		r.pendingAt[r.messages[i].LocalID] = r.clock.Now()
		return r.messages[i], nil
	}
	return Message{}, ErrUnknownMessage
}

// MarkImportant toggles the important flag, server first. Local state
// only changes once the server confirms.
func (r *Reconciler) MarkImportant(ctx context.Context, identity string, important bool) error {
	r.mu.Lock()
	var id string
	found := false
	for i := range r.messages {
		if r.messages[i].Identity() == identity {
			id = r.messages[i].ID
			found = true
			break
		}
	}
	r.mu.Unlock()

	if !found {
		return ErrUnknownMessage
	}
	if id == "" {
		return ErrNotPersisted
	}

	if err := r.api.MarkImportant(ctx, id, important); err != nil {
		r.classifier.Report(err, OriginREST)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].IsImportant = important
			break
		}
	}
	return nil
}

// Messages returns a snapshot of the reconciled list.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Important returns the important-message subview, derived as a filter
// over the canonical list — never maintained as separate state.
func (r *Reconciler) Important() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.IsImportant {
			out = append(out, m)
		}
	}
	return out
}

// sweepPending flags pending messages with no acknowledgement inside
// the bounded wait as failed, then reschedules itself.
func (r *Reconciler) sweepPending() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	cutoff := r.clock.Now().Add(-r.pendingTimeout)
	var expired []string
	for localID, at := range r.pendingAt {
		if at.Before(cutoff) || at.Equal(cutoff) {
			expired = append(expired, localID)
		}
	}
	for _, localID := range expired {
		delete(r.pendingAt, localID)
		for i := range r.messages {
			if r.messages[i].LocalID == localID && r.messages[i].Status == StatusPending {
				r.messages[i].Status = StatusFailed
			}
		}
	}
	r.sweep = r.clock.AfterFunc(sweepInterval, r.sweepPending)
	r.mu.Unlock()

	for _, localID := range expired {
		r.classifier.Report(fmt.Errorf("no acknowledgement for message %s within %s: %w",
			localID, r.pendingTimeout, context.DeadlineExceeded), OriginREST)
	}
}

// upsertLocked is the replace-or-insert merge rule. An incoming item
// matching an existing entry by resolved identity, server id, or
// localId replaces it; otherwise it is inserted in timestamp order.
func (r *Reconciler) upsertLocked(m Message) {
	for i := range r.messages {
		e := r.messages[i]
		match := e.Identity() == m.Identity() ||
			(m.ID != "" && e.ID == m.ID) ||
			(m.LocalID != "" && e.LocalID == m.LocalID)
		if !match {
			continue
		}
		// The server echo of an optimistic write may omit the localId
		// on later redeliveries; keep it so the identity stays stable.
		if m.LocalID == "" {
			m.LocalID = e.LocalID
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = e.Timestamp
		}
		if e.Status == StatusPending || e.Status == StatusFailed {
			delete(r.pendingAt, e.LocalID)
		}
		r.upsertAtLocked(i, m)
		return
	}

	if m.Timestamp.IsZero() {
		m.Timestamp = r.clock.Now()
	}
	r.insertSortedLocked(m)
}

// upsertAtLocked replaces the entry at i, keeping its position when the
// timestamp is unchanged and re-sorting otherwise.
func (r *Reconciler) upsertAtLocked(i int, m Message) {
	if r.messages[i].Timestamp.Equal(m.Timestamp) {
		r.messages[i] = m
		return
	}
	r.messages = append(r.messages[:i], r.messages[i+1:]...)
	r.insertSortedLocked(m)
}

func (r *Reconciler) insertSortedLocked(m Message) {
	i := sort.Search(len(r.messages), func(i int) bool {
		e := r.messages[i]
		if !e.Timestamp.Equal(m.Timestamp) {
			return e.Timestamp.After(m.Timestamp)
		}
		return e.ID > m.ID
	})
	r.messages = append(r.messages, Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = m
}

func messageFromPayload(p wire.MessagePayload, conversationID string, fallback time.Time) Message {
	ts := fallback
	if p.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
			ts = parsed
		}
	}
	return Message{
		ID:             p.ID,
		LocalID:        p.LocalID,
		ConversationID: conversationID,
		Content:        p.Content,
		Sender:         p.Sender,
		Timestamp:      ts,
		Status:         StatusSent,
		IsImportant:    p.IsImportant,
	}
}
