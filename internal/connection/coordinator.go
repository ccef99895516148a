package connection

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicdesk/realtime/internal/screenstore"
)

// Known client types. Any string is accepted; these are the subsystems the
// server recognizes today.
const (
	ClientTypeCalendar      = "calendar"
	ClientTypeScheduleBoard = "scheduleBoard"
)

const clientTypesParam = "clientTypes"
const screenIDParam = "screenId"

// CoordinatorConfig configures the connection coordinator.
type CoordinatorConfig struct {
	// DebounceWindow is how long the first EnsureConnected call waits for
	// other subsystems to register before the single connect goes out.
	DebounceWindow time.Duration
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		DebounceWindow: 100 * time.Millisecond,
	}
}

// CoordinatorStatus is a snapshot of the coordinator.
type CoordinatorStatus struct {
	Connected      bool
	Connecting     bool
	ClientTypes    []string
	AttemptPending bool // a debounced connect has not gone out yet
}

// Coordinator is the process-wide façade over one transport client. It
// merges connection requests from unrelated UI subsystems into a single
// physical connect, and keeps the connection alive until application
// teardown regardless of which subsystems come and go.
type Coordinator struct {
	client *Client
	store  *screenstore.Store
	cfg    CoordinatorConfig
	logger *slog.Logger

	mu       sync.Mutex
	types    map[string]map[string]string
	waiters  []chan error
	debounce *time.Timer
	pending  bool // a debounce window or connect call is in progress
}

// NewCoordinator creates a coordinator over client. The coordinator holds
// the only reference an application needs; subsystems obtain the client via
// Service for event subscription.
func NewCoordinator(client *Client, store *screenstore.Store, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceWindow == 0 {
		cfg = DefaultCoordinatorConfig()
	}
	return &Coordinator{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "coordinator"),
		types:  make(map[string]map[string]string),
	}
}

// EnsureConnected registers clientType with its subscription parameters and
// makes sure a connection exists. Near-simultaneous calls collapse into one
// physical connect whose parameters merge every registered client type.
// Callers joining an in-flight attempt all settle with that attempt's
// outcome.
func (co *Coordinator) EnsureConnected(ctx context.Context, clientType string, params map[string]string) error {
	co.mu.Lock()
	co.types[clientType] = cloneParams(params)

	if co.client.IsConnected() && !co.pending {
		co.mu.Unlock()
		return nil
	}

	ch := make(chan error, 1)
	co.waiters = append(co.waiters, ch)

	if !co.pending {
		co.pending = true
		// The window is fixed from the first request; later callers join
		// but do not extend it.
		co.debounce = time.AfterFunc(co.cfg.DebounceWindow, co.connect)
	}
	co.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (co *Coordinator) connect() {
	co.mu.Lock()
	params := co.mergedParamsLocked()
	co.mu.Unlock()

	co.logger.Info("opening shared connection", "params", params)
	err := co.client.Connect(context.Background(), params)
	if err != nil {
		co.logger.Warn("shared connect attempt failed", "error", err)
	}

	co.mu.Lock()
	co.pending = false
	co.debounce = nil
	waiters := co.waiters
	co.waiters = nil
	co.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

// mergedParamsLocked composes one parameter set from every registered client
// type so the server sees a single combined subscription.
func (co *Coordinator) mergedParamsLocked() map[string]string {
	merged := make(map[string]string)

	names := make([]string, 0, len(co.types))
	for name := range co.types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for key, value := range co.types[name] {
			merged[key] = value
		}
	}
	merged[clientTypesParam] = strings.Join(names, ",")

	if _, ok := co.types[ClientTypeScheduleBoard]; ok && co.store != nil {
		if id, err := co.store.ScreenID(); err == nil {
			merged[screenIDParam] = id
		} else {
			co.logger.Warn("failed to load screen id", "error", err)
		}
	}
	return merged
}

// RemoveClientType unregisters a subsystem's interest. The shared connection
// stays up: other subsystems may still depend on it, and it is only closed
// at application teardown.
func (co *Coordinator) RemoveClientType(clientType string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.types, clientType)
}

// Status reports a snapshot of the coordinator and its client.
func (co *Coordinator) Status() CoordinatorStatus {
	co.mu.Lock()
	pending := co.pending
	names := make([]string, 0, len(co.types))
	for name := range co.types {
		names = append(names, name)
	}
	co.mu.Unlock()
	sort.Strings(names)

	state := co.client.State()
	return CoordinatorStatus{
		Connected:      state == StateConnected,
		Connecting:     state == StateConnecting || pending,
		ClientTypes:    names,
		AttemptPending: pending,
	}
}

// Service exposes the single underlying transport client for direct event
// subscription.
func (co *Coordinator) Service() *Client {
	return co.client
}

func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for key, value := range params {
		out[key] = value
	}
	return out
}
