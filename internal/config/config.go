// Package config loads and validates the YAML configuration for the sync
// client and its console harness.
package config

import "time"

// SyncConfig is the root configuration.
type SyncConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Queue       QueueConfig       `yaml:"queue"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Screen      ScreenConfig      `yaml:"screen"`
}

// ServerConfig identifies the sync endpoint.
type ServerConfig struct {
	URL string `yaml:"url"` // ws(s) URL; http(s) is rewritten
}

// ConnectionConfig holds the transport client's lifecycle tunables.
type ConnectionConfig struct {
	ConnectTimeoutInitial time.Duration `yaml:"connect_timeout_initial"`
	ConnectTimeoutRetry   time.Duration `yaml:"connect_timeout_retry"`
	SlowConnectThreshold  time.Duration `yaml:"slow_connect_threshold"`
	ReconnectBaseDelay    time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
	ReconnectDecay        float64       `yaml:"reconnect_decay"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"` // 0 = unbounded
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout      time.Duration `yaml:"heartbeat_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	RecoveryGrace         time.Duration `yaml:"recovery_grace"`
}

// QueueConfig bounds the outbound message queue.
type QueueConfig struct {
	Capacity int           `yaml:"capacity"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CoordinatorConfig holds the connection coordinator tunables.
type CoordinatorConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

// ScreenConfig locates the local persistent store for the screen identifier.
type ScreenConfig struct {
	StateDir string `yaml:"state_dir"`
}
