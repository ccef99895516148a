package connection

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrTimeout            = errors.New("request timeout")
	ErrQueueTimeout       = errors.New("message timed out in send queue")
	ErrQueueOverflow      = errors.New("message evicted from full send queue")
	ErrDisconnected       = errors.New("client disconnected")
	ErrClientClosed       = errors.New("client closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// State is the connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Events emitted by the Client on its bus. Server-declared topics are
// dispatched under their own names in addition to EventMessage.
const (
	EventConnecting     = "connecting"
	EventConnectingSlow = "connecting_slow"
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventReconnected    = "reconnected"
	EventError          = "error"
	EventFullRefresh    = "fullRefreshRequired"
	EventMessage        = "message"
)

// Reserved control frame types.
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeAck          = "ack"
	TypeMissedEvents = "requestMissedEvents"
	TypeFullRefresh  = "fullRefreshRequired"
)

// Kind classifies a frame into the closed set of control kinds the client
// handles itself. Everything else is KindUnrecognized and is dispatched
// dynamically under the frame's declared type.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindPing
	KindPong
	KindAck
	KindMissedEvents
	KindFullRefresh
)

// Frame is the wire format for every message in either direction.
type Frame struct {
	Type                string          `json:"type,omitempty"`
	MessageType         string          `json:"messageType,omitempty"` // alternate discriminator
	ID                  int64           `json:"id,omitempty"`
	Topic               string          `json:"topic,omitempty"`
	SequenceNum         int64           `json:"sequenceNum,omitempty"`
	RequiresAck         bool            `json:"requiresAck,omitempty"`
	FullRefreshRequired bool            `json:"fullRefreshRequired,omitempty"`
	Data                json.RawMessage `json:"data,omitempty"`
}

// EventType returns the frame's discriminator, preferring Type over
// MessageType.
func (f *Frame) EventType() string {
	if f.Type != "" {
		return f.Type
	}
	return f.MessageType
}

// Kind resolves the discriminator into the closed control-kind set.
func (f *Frame) Kind() Kind {
	switch f.EventType() {
	case TypePing:
		return KindPing
	case TypePong:
		return KindPong
	case TypeAck:
		return KindAck
	case TypeMissedEvents:
		return KindMissedEvents
	case TypeFullRefresh:
		return KindFullRefresh
	}
	return KindUnrecognized
}

// missedEventsRequest is the data payload of a TypeMissedEvents frame.
type missedEventsRequest struct {
	Since int64 `json:"since"`
}

// Priority orders queued messages. Higher tiers flush first; within a tier
// messages flush FIFO by enqueue time.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// SendOptions control queuing, retries, and reply correlation for one send.
type SendOptions struct {
	Priority       Priority
	Timeout        time.Duration // queue or reply timeout; 0 uses the config default
	Retries        int           // immediate write retries after a send failure
	ExpectResponse bool          // register a pending request keyed by the frame id
}

// SendResult is the asynchronous outcome of a Send call. It settles exactly
// once: when the message is transmitted (or its correlated reply arrives, for
// ExpectResponse sends), or when the send fails.
type SendResult struct {
	done  chan struct{}
	frame *Frame
	err   error
}

func newSendResult() *SendResult {
	return &SendResult{done: make(chan struct{})}
}

// Done is closed once the result has settled.
func (r *SendResult) Done() <-chan struct{} {
	return r.done
}

// Err returns the failure, if any. Valid only after Done is closed.
func (r *SendResult) Err() error {
	return r.err
}

// Response returns the correlated reply frame for ExpectResponse sends.
// Valid only after Done is closed.
func (r *SendResult) Response() *Frame {
	return r.frame
}

// Wait blocks until the result settles or ctx is done.
func (r *SendResult) Wait(ctx context.Context) (*Frame, error) {
	select {
	case <-r.done:
		return r.frame, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle is called at most once, always from the client's run loop (or from
// Send when the loop is already gone).
func (r *SendResult) settle(frame *Frame, err error) {
	r.frame = frame
	r.err = err
	close(r.done)
}

// Status is a point-in-time snapshot of the client.
type Status struct {
	State        State
	Failures     int // consecutive failed connection attempts
	QueueDepth   int
	Pending      int // outstanding correlated requests
	LastActivity time.Time
}

// ClientConfig configures a transport client.
type ClientConfig struct {
	URL string // WebSocket URL; http(s) schemes are rewritten to ws(s)

	ConnectTimeoutInitial time.Duration // first attempt in the client's lifetime
	ConnectTimeoutRetry   time.Duration // every later attempt
	SlowConnectThreshold  time.Duration // emits connecting_slow while still connecting

	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectDecay       float64 // delay = base * decay^attempts, capped at max
	MaxReconnectAttempts int     // 0 = unbounded

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	WriteTimeout   time.Duration
	RequestTimeout time.Duration // default reply timeout for ExpectResponse sends
	QueueCapacity  int
	QueueTimeout   time.Duration // default time a message may wait in the queue
	RecoveryGrace  time.Duration // how long a topic's recovery marker may stay set
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeoutInitial: 45 * time.Second,
		ConnectTimeoutRetry:   10 * time.Second,
		SlowConnectThreshold:  5 * time.Second,
		ReconnectBaseDelay:    1 * time.Second,
		ReconnectMaxDelay:     60 * time.Second,
		ReconnectDecay:        2.0,
		HeartbeatInterval:     15 * time.Second,
		HeartbeatTimeout:      10 * time.Second,
		WriteTimeout:          5 * time.Second,
		RequestTimeout:        10 * time.Second,
		QueueCapacity:         100,
		QueueTimeout:          30 * time.Second,
		RecoveryGrace:         15 * time.Second,
	}
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if cfg.ConnectTimeoutInitial == 0 {
		cfg.ConnectTimeoutInitial = def.ConnectTimeoutInitial
	}
	if cfg.ConnectTimeoutRetry == 0 {
		cfg.ConnectTimeoutRetry = def.ConnectTimeoutRetry
	}
	if cfg.SlowConnectThreshold == 0 {
		cfg.SlowConnectThreshold = def.SlowConnectThreshold
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.ReconnectDecay == 0 {
		cfg.ReconnectDecay = def.ReconnectDecay
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.QueueTimeout == 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}
	if cfg.RecoveryGrace == 0 {
		cfg.RecoveryGrace = def.RecoveryGrace
	}
	return cfg
}
