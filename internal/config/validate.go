package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *SyncConfig) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}

	if c.Connection.ReconnectDecay < 1 {
		return fmt.Errorf("connection.reconnect_decay must be >= 1, got %g", c.Connection.ReconnectDecay)
	}
	if c.Connection.ReconnectBaseDelay > c.Connection.ReconnectMaxDelay {
		return fmt.Errorf("connection.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Connection.ReconnectBaseDelay, c.Connection.ReconnectMaxDelay)
	}
	if c.Connection.MaxReconnectAttempts < 0 {
		return errors.New("connection.max_reconnect_attempts must be >= 0 (0 = unbounded)")
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return errors.New("connection.heartbeat_interval must be > 0")
	}
	if c.Connection.HeartbeatTimeout <= 0 {
		return errors.New("connection.heartbeat_timeout must be > 0")
	}

	if c.Queue.Capacity < 1 {
		return errors.New("queue.capacity must be >= 1")
	}
	if c.Queue.Timeout <= 0 {
		return errors.New("queue.timeout must be > 0")
	}

	if c.Coordinator.DebounceWindow <= 0 {
		return errors.New("coordinator.debounce_window must be > 0")
	}

	if c.Screen.StateDir == "" {
		return errors.New("screen.state_dir is required")
	}

	return nil
}
