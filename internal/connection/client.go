package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicdesk/realtime/internal/eventbus"
)

// Client is the transport client: it owns one physical WebSocket, its
// lifecycle and heartbeat, the outbound queue, and pending-request
// correlation. It is also an event source; lifecycle and server events are
// emitted on the embedded bus.
//
// All connection state is owned by a single run-loop goroutine. Public
// methods, timers, and the socket read pump post operations to that loop
// instead of mutating shared state, so transitions never race.
type Client struct {
	*eventbus.Bus

	cfg    ClientConfig
	logger *slog.Logger

	ops       chan func()
	closed    chan struct{}
	closeOnce sync.Once

	// Loop-owned state. Touched only from the run loop.
	state         State
	conn          *websocket.Conn
	gen           int // socket generation; stale timer and pump posts are discarded
	forced        bool
	shuttingDown  bool
	firstAttempt  bool
	everConnected bool
	failures      int
	attempts      int
	lastActivity  time.Time
	nextID        int64
	params        map[string]string
	queue         *sendQueue
	pending       map[int64]*pendingRequest
	seq           *sequenceTracker
	waiters       []chan error

	reconnectTimer   *time.Timer
	heartbeatTimer   *time.Timer
	heartbeatExpiry  *time.Timer
	slowConnectTimer *time.Timer
	recoveryTimers   map[string]*time.Timer

	statusMu sync.RWMutex
	status   Status
}

type pendingRequest struct {
	result *SendResult
	timer  *time.Timer
}

// NewClient creates a transport client and starts its run loop. The client
// stays disconnected until Connect is called (or a Send triggers one).
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	c := &Client{
		Bus:            eventbus.New(),
		cfg:            cfg,
		logger:         logger,
		ops:            make(chan func(), 128),
		closed:         make(chan struct{}),
		state:          StateDisconnected,
		firstAttempt:   true,
		queue:          newSendQueue(cfg.QueueCapacity),
		pending:        make(map[int64]*pendingRequest),
		seq:            newSequenceTracker(),
		recoveryTimers: make(map[string]*time.Timer),
	}

	go c.run()
	return c
}

func (c *Client) run() {
	for op := range c.ops {
		op()
		c.syncStatus()
	}
}

func (c *Client) post(op func()) {
	c.ops <- op
}

// Done is closed once Close has completed.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Connect establishes the connection using the given query parameters.
// Calling it while an attempt is in flight joins that attempt; calling it
// while connected returns immediately. The returned error reflects the
// settlement of the current attempt only — on failure the client keeps
// retrying in the background, and callers interested in eventual liveness
// should listen for the connected event.
func (c *Client) Connect(ctx context.Context, params map[string]string) error {
	ch := make(chan error, 1)
	c.post(func() { c.connectOp(params, ch) })
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) connectOp(params map[string]string, ch chan error) {
	if c.shuttingDown {
		ch <- ErrClientClosed
		return
	}
	c.forced = false
	if params != nil {
		c.params = params
	}

	switch c.state {
	case StateConnected:
		ch <- nil
	case StateConnecting:
		c.waiters = append(c.waiters, ch)
	default:
		// An explicit connect does not wait out a pending backoff timer.
		if c.reconnectTimer != nil {
			c.reconnectTimer.Stop()
			c.reconnectTimer = nil
		}
		c.waiters = append(c.waiters, ch)
		c.beginAttempt()
	}
}

// Disconnect closes the connection, cancels every timer, and fails every
// queued and pending message. The client will not reconnect until Connect is
// called again.
func (c *Client) Disconnect(code int, reason string) error {
	done := make(chan struct{})
	c.post(func() {
		c.forced = true
		c.teardown(code, reason, ErrDisconnected)
		close(done)
	})
	<-done
	return nil
}

// Close disconnects and permanently shuts the client down. Any later call
// fails with ErrClientClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		done := make(chan struct{})
		c.post(func() {
			c.forced = true
			c.teardown(websocket.CloseNormalClosure, "client closed", ErrClientClosed)
			c.shuttingDown = true
			close(c.closed)
			close(done)
		})
		<-done
	})
	return nil
}

// Send transmits a frame, queuing it if the socket is not open. The frame is
// assigned the next message identifier. The returned result settles when the
// frame is transmitted, when its correlated reply arrives (ExpectResponse),
// or when the send fails.
func (c *Client) Send(frame Frame, opts SendOptions) *SendResult {
	res := newSendResult()
	c.post(func() { c.sendOp(frame, opts, res) })
	return res
}

func (c *Client) sendOp(frame Frame, opts SendOptions, res *SendResult) {
	if c.shuttingDown {
		res.settle(nil, ErrClientClosed)
		return
	}

	frame.ID = c.nextMsgID()

	if c.state == StateConnected {
		c.transmit(frame, opts, res)
		return
	}

	msg := &queuedMessage{
		id:         frame.ID,
		frame:      frame,
		opts:       opts,
		enqueuedAt: time.Now(),
		result:     res,
	}

	if evicted := c.queue.push(msg); evicted != nil {
		if evicted.expiry != nil {
			evicted.expiry.Stop()
		}
		evicted.result.settle(nil, ErrQueueOverflow)
		c.logger.Warn("send queue full, evicted message", "id", evicted.id, "priority", evicted.opts.Priority)
	}

	queueTimeout := opts.Timeout
	if queueTimeout == 0 {
		queueTimeout = c.cfg.QueueTimeout
	}
	id := frame.ID
	msg.expiry = time.AfterFunc(queueTimeout, func() {
		c.post(func() { c.expireQueued(id) })
	})

	// Queuing a message kicks off a connection unless the caller explicitly
	// disconnected or an attempt is already in hand.
	if !c.forced && c.state != StateConnecting && c.reconnectTimer == nil {
		c.beginAttempt()
	}
}

// transmit writes a frame that is ready to go out, honoring its retry budget
// and registering a pending request when a reply is expected.
func (c *Client) transmit(frame Frame, opts SendOptions, res *SendResult) {
	var err error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if err = c.writeFrame(frame); err == nil {
			break
		}
	}
	if err != nil {
		res.settle(nil, fmt.Errorf("send failed: %w", err))
		return
	}

	if !opts.ExpectResponse {
		res.settle(nil, nil)
		return
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.RequestTimeout
	}
	id := frame.ID
	c.pending[id] = &pendingRequest{
		result: res,
		timer: time.AfterFunc(timeout, func() {
			c.post(func() { c.expirePending(id) })
		}),
	}
}

func (c *Client) expireQueued(id int64) {
	msg := c.queue.remove(id)
	if msg == nil {
		return
	}
	msg.result.settle(nil, ErrQueueTimeout)
}

func (c *Client) expirePending(id int64) {
	p, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	p.result.settle(nil, ErrTimeout)
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status.State
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Client) syncStatus() {
	c.statusMu.Lock()
	c.status = Status{
		State:        c.state,
		Failures:     c.failures,
		QueueDepth:   c.queue.len(),
		Pending:      len(c.pending),
		LastActivity: c.lastActivity,
	}
	c.statusMu.Unlock()
}

func (c *Client) nextMsgID() int64 {
	c.nextID++
	return c.nextID
}

// beginAttempt starts one connection attempt. The very first attempt in the
// client's lifetime gets the long timeout to tolerate a cold-starting
// server; retries get the short one.
func (c *Client) beginAttempt() {
	c.gen++
	gen := c.gen

	c.setState(StateConnecting)
	c.Emit(EventConnecting)

	timeout := c.cfg.ConnectTimeoutRetry
	if c.firstAttempt {
		timeout = c.cfg.ConnectTimeoutInitial
	}
	c.firstAttempt = false

	c.slowConnectTimer = time.AfterFunc(c.cfg.SlowConnectThreshold, func() {
		c.post(func() {
			if gen == c.gen && c.state == StateConnecting {
				c.Emit(EventConnectingSlow)
			}
		})
	})

	target, err := c.dialURL()
	if err != nil {
		c.finishDial(gen, nil, err)
		return
	}

	go func() {
		dialCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		dialer := websocket.Dialer{HandshakeTimeout: timeout}
		conn, resp, dialErr := dialer.DialContext(dialCtx, target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		c.post(func() { c.finishDial(gen, conn, dialErr) })
	}()
}

// dialURL appends the connect parameters as query parameters, rewriting
// http(s) schemes to ws(s).
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", c.cfg.URL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	for key, value := range c.params {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) finishDial(gen int, conn *websocket.Conn, err error) {
	if gen != c.gen {
		// A teardown or newer attempt superseded this dial.
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.stopTimer(&c.slowConnectTimer)

	if err != nil {
		c.failures++
		c.setState(StateError)
		c.logger.Warn("connection attempt failed", "url", c.cfg.URL, "failures", c.failures, "error", err)
		c.Emit(EventError, err)
		c.settleWaiters(err)
		c.scheduleReconnect()
		return
	}

	c.conn = conn
	c.failures = 0
	c.attempts = 0
	c.lastActivity = time.Now()
	wasConnected := c.everConnected
	c.everConnected = true
	c.setState(StateConnected)

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	c.settleWaiters(nil)
	c.Emit(EventConnected)
	if wasConnected {
		c.Emit(EventReconnected)
	}

	go c.readPump(conn, c.gen)

	c.sendPing(c.gen)
	c.flushQueue()
}

func (c *Client) settleWaiters(err error) {
	for _, ch := range c.waiters {
		ch <- err
	}
	c.waiters = nil
}

// scheduleReconnect arms the single backoff timer. Delay grows by
// base*decay^attempts up to the ceiling; the counter resets on a successful
// connect.
func (c *Client) scheduleReconnect() {
	if c.forced || c.shuttingDown || c.reconnectTimer != nil {
		return
	}
	if c.cfg.MaxReconnectAttempts > 0 && c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Error("giving up reconnecting", "attempts", c.attempts)
		c.setState(StateDisconnected)
		c.Emit(EventError, ErrReconnectExhausted)
		return
	}

	delay := c.backoffDelay(c.attempts)
	c.attempts++

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.post(func() {
			c.reconnectTimer = nil
			if c.forced || c.shuttingDown || c.state == StateConnecting || c.state == StateConnected {
				return
			}
			c.beginAttempt()
		})
	})

	c.logger.Info("reconnect scheduled", "delay", delay, "attempt", c.attempts)
}

func (c *Client) backoffDelay(attempts int) time.Duration {
	delay := time.Duration(float64(c.cfg.ReconnectBaseDelay) * math.Pow(c.cfg.ReconnectDecay, float64(attempts)))
	if delay > c.cfg.ReconnectMaxDelay || delay <= 0 {
		delay = c.cfg.ReconnectMaxDelay
	}
	return delay
}

// readPump reads frames for one socket generation and posts them to the run
// loop in arrival order.
func (c *Client) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.post(func() { c.socketClosed(gen, err) })
			return
		}
		c.post(func() { c.handleInbound(gen, data) })
	}
}

func (c *Client) socketClosed(gen int, err error) {
	if gen != c.gen {
		return
	}
	c.logger.Warn("connection closed", "error", err)

	c.gen++
	c.stopConnectionTimers()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setState(StateDisconnected)
	c.Emit(EventDisconnected)

	if !c.forced {
		c.scheduleReconnect()
	}
}

// teardown is the forced close path shared by Disconnect and Close: every
// timer is cancelled and every queued and pending message fails with cause.
func (c *Client) teardown(code int, reason string, cause error) {
	c.gen++
	c.stopConnectionTimers()
	c.stopTimer(&c.reconnectTimer)

	for topic, timer := range c.recoveryTimers {
		timer.Stop()
		delete(c.recoveryTimers, topic)
	}
	c.seq.clearRecovery()

	for _, msg := range c.queue.drain() {
		if msg.expiry != nil {
			msg.expiry.Stop()
		}
		msg.result.settle(nil, cause)
	}
	for id, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, id)
		p.result.settle(nil, cause)
	}
	c.settleWaiters(cause)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
		c.conn = nil
	}

	wasDisconnected := c.state == StateDisconnected
	c.setState(StateDisconnected)
	if !wasDisconnected {
		c.Emit(EventDisconnected)
	}
}

// stopConnectionTimers cancels the timers tied to the current socket:
// heartbeat, heartbeat expiry, and the slow-connect notice.
func (c *Client) stopConnectionTimers() {
	c.stopTimer(&c.heartbeatTimer)
	c.stopTimer(&c.heartbeatExpiry)
	c.stopTimer(&c.slowConnectTimer)
}

func (c *Client) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (c *Client) setState(s State) {
	c.state = s
}

// sendPing starts one heartbeat cycle: a ping goes out now, and unless a
// pong lands within HeartbeatTimeout the socket is forced closed so the
// normal close-and-reconnect path runs.
func (c *Client) sendPing(gen int) {
	if gen != c.gen || c.state != StateConnected {
		return
	}
	if err := c.writeFrame(Frame{Type: TypePing, ID: c.nextMsgID()}); err != nil {
		c.logger.Debug("failed to send ping", "error", err)
	}
	c.stopTimer(&c.heartbeatExpiry)
	c.heartbeatExpiry = time.AfterFunc(c.cfg.HeartbeatTimeout, func() {
		c.post(func() { c.heartbeatTimedOut(gen) })
	})
}

func (c *Client) heartbeatTimedOut(gen int) {
	if gen != c.gen || c.state != StateConnected {
		return
	}
	c.logger.Warn("heartbeat timeout, forcing connection closed")
	// Closing the socket makes the read pump fail, which drives the normal
	// close-and-reconnect sequence.
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) handlePong() {
	c.stopTimer(&c.heartbeatExpiry)
	gen := c.gen
	c.stopTimer(&c.heartbeatTimer)
	c.heartbeatTimer = time.AfterFunc(c.cfg.HeartbeatInterval, func() {
		c.post(func() { c.sendPing(gen) })
	})
}

// flushQueue transmits everything queued while the socket was closed, in
// priority order, high tier first and FIFO within a tier.
func (c *Client) flushQueue() {
	for _, msg := range c.queue.flushOrder() {
		if msg.expiry != nil {
			msg.expiry.Stop()
		}
		c.transmit(msg.frame, msg.opts, msg.result)
	}
}

func (c *Client) writeFrame(frame Frame) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleInbound processes one received frame. Order matters: acknowledgment,
// sequence tracking, full-refresh signal, heartbeat, pending-request
// settlement, then dynamic dispatch.
func (c *Client) handleInbound(gen int, data []byte) {
	if gen != c.gen {
		return
	}
	c.lastActivity = time.Now()

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn("dropping unparseable frame", "error", err)
		return
	}

	if frame.RequiresAck && frame.ID != 0 {
		if err := c.writeFrame(Frame{Type: TypeAck, ID: frame.ID}); err != nil {
			c.logger.Debug("failed to send ack", "id", frame.ID, "error", err)
		}
	}

	if frame.Topic != "" && frame.SequenceNum > 0 {
		if gap, since := c.seq.observe(frame.Topic, frame.SequenceNum); gap {
			c.requestMissedEvents(frame.Topic, since)
		}
	}

	if frame.FullRefreshRequired {
		c.Emit(EventFullRefresh, frame.Topic)
		return
	}

	switch frame.Kind() {
	case KindPing:
		if err := c.writeFrame(Frame{Type: TypePong, ID: frame.ID}); err != nil {
			c.logger.Debug("failed to send pong", "error", err)
		}
		return
	case KindPong:
		c.handlePong()
		return
	}

	if frame.ID != 0 {
		if p, ok := c.pending[frame.ID]; ok {
			delete(c.pending, frame.ID)
			p.timer.Stop()
			p.result.settle(&frame, nil)
			return
		}
	}

	payload := any(frame)
	if len(frame.Data) > 0 {
		payload = frame.Data
	}
	if topic := frame.EventType(); topic != "" {
		c.Emit(topic, payload)
	}
	c.Emit(EventMessage, frame)
}

// requestMissedEvents issues the one-shot recovery call for a topic with a
// detected gap. The in-flight marker blocks duplicate requests and is
// cleared after the grace period whether or not a reply came back.
func (c *Client) requestMissedEvents(topic string, since int64) {
	if !c.seq.beginRecovery(topic) {
		return
	}
	c.logger.Warn("sequence gap detected, requesting missed events", "topic", topic, "since", since)

	data, _ := json.Marshal(missedEventsRequest{Since: since})
	frame := Frame{
		Type:  TypeMissedEvents,
		ID:    c.nextMsgID(),
		Topic: topic,
		Data:  data,
	}
	if err := c.writeFrame(frame); err != nil {
		c.logger.Warn("failed to request missed events", "topic", topic, "error", err)
	}

	if old, ok := c.recoveryTimers[topic]; ok {
		old.Stop()
	}
	c.recoveryTimers[topic] = time.AfterFunc(c.cfg.RecoveryGrace, func() {
		c.post(func() {
			delete(c.recoveryTimers, topic)
			c.seq.endRecovery(topic)
		})
	})
}
