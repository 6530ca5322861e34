// Package lifecycle manages the local HTTP model servers ragcore talks
// to for embedding and reranking: detecting whether one is already
// running, starting it if a launch command is configured, and polling
// until it reports healthy.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

const (
	// DefaultStartupTimeout is how long WaitForReady waits by default.
	DefaultStartupTimeout = 30 * time.Second

	// readyPollInterval is the initial polling interval for WaitForReady.
	readyPollInterval = 100 * time.Millisecond

	// maxReadyPollInterval caps the exponential backoff.
	maxReadyPollInterval = 2 * time.Second

	// healthCheckTimeout bounds a single liveness probe.
	healthCheckTimeout = 2 * time.Second
)

// ServerManager manages one local model server (an embedding server or
// a reranker server) identified by a base URL with a /health endpoint.
type ServerManager struct {
	name    string // human-readable, for error messages ("embedding server")
	baseURL string
	client  *http.Client

	// startCommand launches the server if it isn't already running; nil
	// means the server is externally managed and EnsureReady only polls.
	startCommand []string

	execCommand func(name string, args ...string) *exec.Cmd

	// breaker trips after repeated /health failures so a server that's
	// genuinely down stops taking a fresh HTTP round trip on every poll.
	breaker *coreerrors.CircuitBreaker
}

// NewServerManager creates a manager for a server at baseURL. startCommand
// may be nil, in which case Start returns NotRunningError instead of
// attempting to launch anything.
func NewServerManager(name, baseURL string, startCommand []string) *ServerManager {
	return &ServerManager{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: healthCheckTimeout},
		startCommand: startCommand,
		execCommand:  exec.Command,
		breaker:      coreerrors.NewCircuitBreaker(name),
	}
}

// IsRunning reports whether the server responds on its /health endpoint.
// A streak of failures trips the breaker, so a server that's genuinely
// down stops costing a network round trip on every poll until the reset
// timeout elapses and one probe is let through to test recovery.
func (m *ServerManager) IsRunning(ctx context.Context) bool {
	if !m.breaker.Allow() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		m.breaker.RecordFailure()
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.breaker.RecordFailure()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.breaker.RecordFailure()
		return false
	}

	m.breaker.RecordSuccess()
	return true
}

// Start launches the server's configured command in the background. It
// does not wait for readiness; call WaitForReady afterwards.
func (m *ServerManager) Start() error {
	if len(m.startCommand) == 0 {
		return &NotRunningError{Name: m.name}
	}

	cmd := m.execCommand(m.startCommand[0], m.startCommand[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.name, err)
	}

	// Release the process so it doesn't become a zombie; the server
	// itself stays resident after we stop waiting on it.
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

// WaitForReady polls IsRunning with exponential backoff until it
// succeeds or timeout elapses.
func (m *ServerManager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStartupTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := readyPollInterval
	for {
		if m.IsRunning(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s to become ready: %w", m.name, ctx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxReadyPollInterval {
			interval = maxReadyPollInterval
		}
	}
}

// EnsureReady makes sure the server is reachable, starting it via the
// configured launch command if it isn't and one was provided.
func (m *ServerManager) EnsureReady(ctx context.Context, timeout time.Duration) error {
	if m.IsRunning(ctx) {
		return nil
	}

	if err := m.Start(); err != nil {
		return err
	}

	return m.WaitForReady(ctx, timeout)
}

// NotRunningError indicates the server isn't reachable and no launch
// command was configured to start it.
type NotRunningError struct {
	Name string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("%s is not running and no start command is configured", e.Name)
}
