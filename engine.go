package conversync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/consultline/conversync/frame"
	"github.com/consultline/conversync/wire"
)

// Engine is the composition root: it owns the connection for the active
// conversation, the reconciled message list, and the takeover cache,
// and exposes the read model plus action functions the UI layer
// consumes. One engine serves one active conversation at a time;
// Switch moves it.
type Engine struct {
	cfg        Config
	api        *APIClient
	clock      Clock
	logger     *slog.Logger
	dispatcher *Dispatcher
	classifier *Classifier
	takeover   *TakeoverController
	dial       dialFunc

	mu             sync.Mutex
	conn           *Conn
	rec            *Reconciler
	userID         string
	conversationID string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a clock, letting hosts and tests drive every timer.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger injects the structured logger shared by all components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// withDialer overrides the transport dialer. Test hook.
func withDialer(d dialFunc) Option {
	return func(e *Engine) { e.dial = d }
}

// New creates an engine. The config is normalized and validated; the
// REST base is derived from the WS base when unset.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = systemClock
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	e.api = NewAPIClient(cfg)
	e.classifier = NewClassifier(e.clock, e.logger)
	e.dispatcher = NewDispatcher(e.logger)
	e.takeover = NewTakeoverController(e.api, e.classifier, e.logger)

	// Frame routing: the handlers snapshot the current reconciler so a
	// conversation switch invalidates late deliveries (a stopped
	// reconciler ignores mutations, and frames carry the conversation
	// they belong to).
	e.dispatcher.Register(EventMessage, func(f frame.Frame) {
		if rec := e.reconciler(); rec != nil {
			rec.ApplyFrame(f)
		}
	})
	e.dispatcher.Register(EventStatus, func(f frame.Frame) {
		var p wire.StatusPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			e.classifier.Report(err, OriginFrame)
			return
		}
		e.takeover.applyPush(f.ConversationID, TakeoverStatus(p.Status))
	})
	e.dispatcher.Register(EventSystem, func(f frame.Frame) {
		var p wire.SystemPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			e.classifier.Report(err, OriginFrame)
			return
		}
		e.logger.Info("system notice",
			"conversation_id", f.ConversationID,
			"code", p.Code,
			"text", p.Text,
		)
	})

	return e, nil
}

// Switch makes (userID, conversationID) the active pair: the previous
// connection is torn down first, the previous reconciler is
// invalidated, the takeover status is re-fetched (never assumed), the
// history is loaded, and a fresh connection is opened. Partial
// failures are joined into the returned error; the connection's own
// reconnect logic keeps working regardless.
func (e *Engine) Switch(ctx context.Context, userID, conversationID string) error {
	e.mu.Lock()
	if e.conn != nil {
		e.conn.Close()
	}
	if e.rec != nil {
		e.rec.stop()
	}
	e.userID = userID
	e.conversationID = conversationID
	e.rec = newReconciler(conversationID, e.api, e.classifier, e.cfg.PendingTimeout, e.clock, e.logger)
	e.conn = newConn(e.cfg, userID, conversationID, e.dispatcher, e.classifier, e.clock, e.logger)
	if e.dial != nil {
		e.conn.dial = e.dial
	}
	conn, rec := e.conn, e.rec
	e.mu.Unlock()

	e.logger.Info("switching conversation",
		"user_id", userID,
		"conversation_id", conversationID,
	)

	var errs []error
	if err := e.takeover.Refresh(ctx, conversationID); err != nil {
		errs = append(errs, err)
	}
	if err := rec.LoadHistory(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := conn.Open(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stop tears down the active connection and invalidates the read model.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	if e.rec != nil {
		e.rec.stop()
		e.rec = nil
	}
	e.conversationID = ""
}

// WakeUp reports the host becoming visible or focused. If the
// connection is down it attempts one immediate reconnect.
func (e *Engine) WakeUp() {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		conn.WakeUp()
	}
}

// Send creates an optimistic pending entry, persists it over REST, and
// reconciles the acknowledgement. Under semi_takeover the message is
// flagged for human review instead of direct delivery. The pending
// entry stays visible on failure and flips to failed for retry.
func (e *Engine) Send(ctx context.Context, content, sender string) (Message, error) {
	e.mu.Lock()
	rec, conversationID := e.rec, e.conversationID
	e.mu.Unlock()
	if rec == nil {
		return Message{}, ErrNoConversation
	}

	msg := rec.CreateLocal(content, sender)
	return e.submit(ctx, rec, conversationID, msg)
}

// Retry re-submits a failed message with its original localId so the
// eventual echo still reconciles to a single entry.
func (e *Engine) Retry(ctx context.Context, identity string) (Message, error) {
	e.mu.Lock()
	rec, conversationID := e.rec, e.conversationID
	e.mu.Unlock()
	if rec == nil {
		return Message{}, ErrNoConversation
	}

	msg, err := rec.prepareRetry(identity)
	if err != nil {
		return Message{}, err
	}
	return e.submit(ctx, rec, conversationID, msg)
}

func (e *Engine) submit(ctx context.Context, rec *Reconciler, conversationID string, msg Message) (Message, error) {
	status, _ := e.takeover.Status()
	resp, err := e.api.PostMessage(ctx, wire.PostMessageRequest{
		ConversationID: conversationID,
		LocalID:        msg.LocalID,
		Sender:         msg.Sender,
		Content:        msg.Content,
		ForReview:      status == TakeoverSemi,
	})
	if err != nil {
		e.classifier.Report(err, OriginREST)
		rec.fail(msg.LocalID)
		msg.Status = StatusFailed
		return msg, err
	}

	rec.confirm(resp)
	msg.ID = resp.ID
	msg.Status = StatusSent
	return msg, nil
}

// MarkImportant toggles the important flag on a persisted message.
func (e *Engine) MarkImportant(ctx context.Context, identity string, important bool) error {
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()
	if rec == nil {
		return ErrNoConversation
	}
	return rec.MarkImportant(ctx, identity, important)
}

// SetTakeover requests a takeover transition for the active
// conversation.
func (e *Engine) SetTakeover(ctx context.Context, status TakeoverStatus) error {
	return e.takeover.Set(ctx, status)
}

// TakeoverStatus returns the cached server-confirmed takeover state.
func (e *Engine) TakeoverStatus() (TakeoverStatus, bool) {
	return e.takeover.Status()
}

// Messages returns a snapshot of the reconciled message list.
func (e *Engine) Messages() []Message {
	if rec := e.reconciler(); rec != nil {
		return rec.Messages()
	}
	return nil
}

// Important returns the important-message subview.
func (e *Engine) Important() []Message {
	if rec := e.reconciler(); rec != nil {
		return rec.Important()
	}
	return nil
}

// ConnState returns the connection state for the status banner.
func (e *Engine) ConnState() ConnectionState {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return StateDisconnected
	}
	return conn.State()
}

// OnEvent registers a UI handler for a frame kind (or EventAny).
func (e *Engine) OnEvent(kind EventKind, h Handler) int {
	return e.dispatcher.Register(kind, h)
}

// OffEvent removes a handler registered with OnEvent.
func (e *Engine) OffEvent(kind EventKind, id int) {
	e.dispatcher.Unregister(kind, id)
}

// OnError registers a listener for classified errors of one kind (or
// KindAny).
func (e *Engine) OnError(kind ErrorKind, l ErrorListener) {
	e.classifier.OnKind(kind, l)
}

func (e *Engine) reconciler() *Reconciler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}
