// Package connection implements the resilient synchronization channel.
//
// Client owns the single physical WebSocket: the connect/reconnect state
// machine with progressive timeouts and capped exponential backoff, the
// application-level ping/pong heartbeat, the bounded priority send queue,
// request/response correlation by message id, and per-topic sequence-gap
// recovery. All connection state lives on one run-loop goroutine; timers and
// the socket read pump post into that loop rather than mutating shared
// memory. Because event handlers execute on the run loop, a handler must not
// call the blocking Connect, Disconnect, or Close (Send is safe).
//
// Coordinator is the process-wide façade that lets many UI subsystems share
// the one connection: it registers client types, debounces near-simultaneous
// connect requests into a single attempt, and merges every registered
// subsystem's parameters into one combined subscription.
package connection
