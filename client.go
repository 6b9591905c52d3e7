package conversync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/consultline/conversync/frame"
	"github.com/consultline/conversync/wire"
)

// ErrDialInFlight indicates an open attempt is already running; the
// second caller's request is dropped and can be retried afterwards.
var ErrDialInFlight = errors.New("connection attempt already in flight")

// ErrConnClosed indicates the connection was explicitly closed.
var ErrConnClosed = errors.New("connection closed")

// dialFunc opens the raw transport. Injected in tests.
type dialFunc func(ctx context.Context, url string) (net.Conn, error)

func wsDial(ctx context.Context, u string) (net.Conn, error) {
	conn, _, _, err := ws.Dial(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// Conn owns the lifecycle of one gateway connection scoped to a
// (userId, conversationId) pair: open, heartbeat, reconnect with
// backoff, teardown. State transitions are published through the
// dispatcher as synthetic "connect" frames so consumers observe them
// without reaching into the manager.
type Conn struct {
	cfg            Config
	userID         string
	conversationID string
	dispatcher     *Dispatcher
	classifier     *Classifier
	clock          Clock
	logger         *slog.Logger
	dial           dialFunc

	mu           sync.Mutex
	state        ConnectionState
	sock         net.Conn
	sendCh       chan []byte
	sessionDone  chan struct{}
	dialInFlight bool
	closed       bool
	backoff      backoffState
	reconnect    Timer
	heartbeat    Timer
	liveness     Timer
	lastTraffic  time.Time
}

func newConn(cfg Config, userID, conversationID string, dispatcher *Dispatcher, classifier *Classifier, clock Clock, logger *slog.Logger) *Conn {
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:            cfg,
		userID:         userID,
		conversationID: conversationID,
		dispatcher:     dispatcher,
		classifier:     classifier,
		clock:          clock,
		logger:         logger,
		dial:           wsDial,
		state:          StateDisconnected,
		backoff:        newBackoff(cfg.ReconnectBase, cfg.ReconnectCap, cfg.MaxReconnectAttempts),
	}
}

// Open establishes the connection. An explicit Open always resets the
// attempt budget, which is the only way out of the terminal error state
// reached when reconnection attempts are exhausted.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	c.closed = false
	c.backoff.reset()
	c.mu.Unlock()
	return c.attempt(ctx)
}

// Close tears the connection down unconditionally and stops all
// reconnection activity.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.teardownLocked()
	c.state = StateDisconnected
	c.mu.Unlock()

	c.publishState(StateDisconnected)
	c.logger.Info("connection closed",
		"user_id", c.userID,
		"conversation_id", c.conversationID,
	)
}

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WakeUp attempts one immediate reconnect, independent of the backoff
// schedule. Called when the host reports the page becoming visible or
// focused. Still subject to the in-flight guard and the attempt cap.
func (c *Conn) WakeUp() {
	c.mu.Lock()
	if c.closed || c.dialInFlight || c.state == StateConnected || c.backoff.exhausted() {
		c.mu.Unlock()
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	c.attempt(context.Background())
}

// send queues an outbound message on the live socket. Dropped when not
// connected; the only client-originated traffic is the heartbeat probe.
func (c *Conn) send(data []byte) {
	c.mu.Lock()
	ch, done := c.sendCh, c.sessionDone
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- data:
	case <-done:
	}
}

func (c *Conn) wsURL() string {
	base := c.cfg.WSEndpoint + "/ws/" + url.PathEscape(c.userID) + "/" + url.PathEscape(c.conversationID)
	if c.cfg.Token != "" {
		base += "?token=" + url.QueryEscape(c.cfg.Token)
	}
	return base
}

// attempt runs one open attempt under the in-flight guard. A failure
// schedules the next attempt on the backoff timer unless the budget is
// exhausted or the manager was explicitly closed.
func (c *Conn) attempt(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.dialInFlight {
		c.mu.Unlock()
		return ErrDialInFlight
	}
	c.dialInFlight = true
	c.teardownLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	c.publishState(StateConnecting)

	sock, err := c.dial(ctx, c.wsURL())

	c.mu.Lock()
	c.dialInFlight = false
	if c.closed {
		c.mu.Unlock()
		if sock != nil {
			sock.Close()
		}
		return ErrConnClosed
	}
	if err != nil {
		c.state = StateError
		exhausted := c.scheduleReconnectLocked()
		c.mu.Unlock()

		c.classifier.Report(err, OriginConn)
		c.publishState(StateError)
		if exhausted {
			c.reportExhausted()
		}
		return err
	}

	c.sock = sock
	c.sendCh = make(chan []byte, 64)
	c.sessionDone = make(chan struct{})
	c.backoff.reset()
	c.lastTraffic = c.clock.Now()
	c.state = StateConnected
	c.heartbeat = c.clock.AfterFunc(c.cfg.HeartbeatInterval, c.sendProbe)
	c.liveness = c.clock.AfterFunc(c.cfg.LivenessTimeout, c.checkLiveness)
	done, sendCh := c.sessionDone, c.sendCh
	c.mu.Unlock()

	go c.readLoop(sock)
	go c.writeLoop(sock, sendCh, done)

	c.publishState(StateConnected)
	c.logger.Info("connected",
		"user_id", c.userID,
		"conversation_id", c.conversationID,
	)
	return nil
}

func (c *Conn) readLoop(sock net.Conn) {
	for {
		data, op, err := wsutil.ReadServerData(sock)
		if err != nil {
			c.onSocketFailure(sock, err, OriginConn)
			return
		}

		c.mu.Lock()
		c.lastTraffic = c.clock.Now()
		c.mu.Unlock()

		if op == ws.OpBinary {
			data, err = frame.Decompress(data)
			if err != nil {
				c.classifier.Report(fmt.Errorf("decompress frame: %w", err), OriginFrame)
				continue
			}
		}

		f, err := frame.Parse(data)
		if err != nil {
			// The offending frame is dropped; the connection stays up.
			c.classifier.Report(err, OriginFrame)
			continue
		}
		c.dispatcher.Dispatch(f)
	}
}

func (c *Conn) writeLoop(sock net.Conn, sendCh <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case data := <-sendCh:
			if err := wsutil.WriteClientText(sock, data); err != nil {
				c.onSocketFailure(sock, err, OriginConn)
				return
			}
		case <-done:
			return
		}
	}
}

// sendProbe emits the periodic heartbeat while connected.
func (c *Conn) sendProbe() {
	c.mu.Lock()
	if c.closed || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	probe := frame.Ping(c.conversationID, c.clock.Now())
	c.heartbeat = c.clock.AfterFunc(c.cfg.HeartbeatInterval, c.sendProbe)
	c.mu.Unlock()

	c.send(probe)
}

// checkLiveness treats the absence of any inbound traffic within the
// timeout window as a silent failure and takes the reconnect path.
func (c *Conn) checkLiveness() {
	c.mu.Lock()
	if c.closed || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	idle := c.clock.Now().Sub(c.lastTraffic)
	if idle < c.cfg.LivenessTimeout {
		c.liveness = c.clock.AfterFunc(c.cfg.LivenessTimeout-idle, c.checkLiveness)
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.state = StateError
	exhausted := c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.classifier.Report(fmt.Errorf("no traffic for %s", idle), OriginHeartbeat)
	c.publishState(StateError)
	if exhausted {
		c.reportExhausted()
	}
}

// onSocketFailure handles an error or abnormal close on the live
// socket. Failures of an already-replaced socket are ignored.
func (c *Conn) onSocketFailure(sock net.Conn, err error, origin Origin) {
	c.mu.Lock()
	if c.closed || c.sock != sock {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.state = StateError
	exhausted := c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.classifier.Report(err, origin)
	c.publishState(StateError)
	if exhausted {
		c.reportExhausted()
	}
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Returns true when the attempt budget is exhausted, in which case the
// state is terminal until an explicit Open.
func (c *Conn) scheduleReconnectLocked() bool {
	if c.closed {
		return false
	}
	if c.backoff.exhausted() {
		return true
	}
	delay := c.backoff.next()
	c.reconnect = c.clock.AfterFunc(delay, func() {
		if err := c.attempt(context.Background()); err != nil && !errors.Is(err, ErrConnClosed) && !errors.Is(err, ErrDialInFlight) {
			c.logger.Debug("reconnect attempt failed", "error", err)
		}
	})
	c.logger.Info("reconnect scheduled",
		"conversation_id", c.conversationID,
		"delay", delay,
		"attempt", c.backoff.attempts,
	)
	return false
}

func (c *Conn) reportExhausted() {
	c.classifier.Report(
		fmt.Errorf("gave up after %d reconnect attempts", c.cfg.MaxReconnectAttempts),
		OriginConn,
	)
}

// teardownLocked stops timers and closes the current socket. The next
// open always starts from a clean session.
func (c *Conn) teardownLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.liveness != nil {
		c.liveness.Stop()
		c.liveness = nil
	}
	if c.sessionDone != nil {
		close(c.sessionDone)
		c.sessionDone = nil
	}
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	c.sendCh = nil
}

// publishState announces a state transition as a synthetic connect
// frame so dispatcher consumers see connection status like any other
// event.
func (c *Conn) publishState(state ConnectionState) {
	data, err := frame.Encode(frame.TypeConnect, c.conversationID, wire.ConnectPayload{
		UserID:         c.userID,
		ConversationID: c.conversationID,
		State:          string(state),
	}, c.clock.Now())
	if err != nil {
		return
	}
	f, err := frame.Parse(data)
	if err != nil {
		return
	}
	c.dispatcher.Dispatch(f)
}
