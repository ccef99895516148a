package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeoutInitial = 45 * time.Second
	DefaultConnectTimeoutRetry   = 10 * time.Second
	DefaultSlowConnectThreshold  = 5 * time.Second
	DefaultReconnectBaseDelay    = 1 * time.Second
	DefaultReconnectMaxDelay     = 60 * time.Second
	DefaultReconnectDecay        = 2.0
	DefaultHeartbeatInterval     = 15 * time.Second
	DefaultHeartbeatTimeout      = 10 * time.Second
	DefaultWriteTimeout          = 5 * time.Second
	DefaultRequestTimeout        = 10 * time.Second
	DefaultRecoveryGrace         = 15 * time.Second
	DefaultQueueCapacity         = 100
	DefaultQueueTimeout          = 30 * time.Second
	DefaultDebounceWindow        = 100 * time.Millisecond
	DefaultStateDir              = ".clinicdesk"
)

func (c *SyncConfig) applyDefaults() {
	// Connection defaults
	if c.Connection.ConnectTimeoutInitial == 0 {
		c.Connection.ConnectTimeoutInitial = DefaultConnectTimeoutInitial
	}
	if c.Connection.ConnectTimeoutRetry == 0 {
		c.Connection.ConnectTimeoutRetry = DefaultConnectTimeoutRetry
	}
	if c.Connection.SlowConnectThreshold == 0 {
		c.Connection.SlowConnectThreshold = DefaultSlowConnectThreshold
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.ReconnectDecay == 0 {
		c.Connection.ReconnectDecay = DefaultReconnectDecay
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.HeartbeatTimeout == 0 {
		c.Connection.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.RequestTimeout == 0 {
		c.Connection.RequestTimeout = DefaultRequestTimeout
	}
	if c.Connection.RecoveryGrace == 0 {
		c.Connection.RecoveryGrace = DefaultRecoveryGrace
	}

	// Queue defaults
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = DefaultQueueCapacity
	}
	if c.Queue.Timeout == 0 {
		c.Queue.Timeout = DefaultQueueTimeout
	}

	// Coordinator defaults
	if c.Coordinator.DebounceWindow == 0 {
		c.Coordinator.DebounceWindow = DefaultDebounceWindow
	}

	// Screen defaults
	if c.Screen.StateDir == "" {
		c.Screen.StateDir = DefaultStateDir
	}
}
