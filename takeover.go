package conversync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrTransitionInFlight indicates a takeover transition is already
// running for the conversation; the caller should retry after it
// resolves.
var ErrTransitionInFlight = errors.New("takeover transition already in flight")

// ErrUnknownStatus indicates a status outside the three-state model.
var ErrUnknownStatus = errors.New("unknown takeover status")

// ErrNoConversation indicates the controller has no active conversation.
var ErrNoConversation = errors.New("no active conversation")

// TakeoverController tracks the three-way control assignment of the
// active conversation and keeps it consistent with the server-held
// source of truth. Local state is never flipped optimistically: a wrong
// display of who is answering has direct operational consequences.
type TakeoverController struct {
	api        *APIClient
	classifier *Classifier
	logger     *slog.Logger

	mu             sync.Mutex
	conversationID string
	status         TakeoverStatus
	known          bool
	inFlight       bool
}

// NewTakeoverController creates a controller with no active
// conversation. Refresh must run before Status is meaningful.
func NewTakeoverController(api *APIClient, classifier *Classifier, logger *slog.Logger) *TakeoverController {
	if logger == nil {
		logger = slog.Default()
	}
	return &TakeoverController{api: api, classifier: classifier, logger: logger}
}

// Refresh re-fetches the server-held status for a conversation and
// rebinds the controller to it. Called on every conversation switch so
// the previous conversation's state never leaks into the new one.
func (t *TakeoverController) Refresh(ctx context.Context, conversationID string) error {
	status, err := t.api.GetTakeover(ctx, conversationID)
	if err != nil {
		t.classifier.Report(err, OriginREST)
		return err
	}
	if !ValidTakeoverStatus(status) {
		err := fmt.Errorf("%w: %q", ErrUnknownStatus, status)
		t.classifier.Report(err, OriginTakeover)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversationID = conversationID
	t.status = status
	t.known = true
	t.inFlight = false
	return nil
}

// Status returns the current server-confirmed status. ok is false until
// the first successful Refresh.
func (t *TakeoverController) Status() (TakeoverStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.known
}

// Set requests a transition. Requesting the already-active status is a
// no-op that resolves successfully without a network round-trip. Only
// one transition may be in flight at a time; a concurrent second
// request returns ErrTransitionInFlight. On failure, local state is
// left unchanged.
func (t *TakeoverController) Set(ctx context.Context, status TakeoverStatus) error {
	if !ValidTakeoverStatus(status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	t.mu.Lock()
	if t.conversationID == "" {
		t.mu.Unlock()
		return ErrNoConversation
	}
	if t.known && t.status == status {
		t.mu.Unlock()
		return nil
	}
	if t.inFlight {
		t.mu.Unlock()
		return ErrTransitionInFlight
	}
	t.inFlight = true
	conversationID := t.conversationID
	t.mu.Unlock()

	err := t.api.SetTakeover(ctx, conversationID, status)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight = false
	if err != nil {
		t.classifier.Report(err, OriginREST)
		return err
	}
	// The conversation may have switched while the request was in
	// flight; a confirmation for the old one must not apply.
	if t.conversationID != conversationID {
		return nil
	}
	t.status = status
	t.known = true
	t.logger.Info("takeover transition confirmed",
		"conversation_id", conversationID,
		"status", status,
	)
	return nil
}

// applyPush overwrites the cached status from a server-pushed status
// frame. The server is the source of truth, so pushes always win.
func (t *TakeoverController) applyPush(conversationID string, status TakeoverStatus) {
	if !ValidTakeoverStatus(status) {
		t.classifier.Report(fmt.Errorf("%w in status push: %q", ErrUnknownStatus, status), OriginTakeover)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if conversationID != t.conversationID {
		return
	}
	t.status = status
	t.known = true
}
