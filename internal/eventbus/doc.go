// Package eventbus implements the named-event primitive the sync client is
// built on.
//
// Dispatch is synchronous and runs handlers in registration order. A handler
// that panics is isolated: the panic is recovered and the remaining handlers
// for that topic still run. Emitting from within a handler of the same topic
// is allowed; the bus provides no recursion guard.
package eventbus
