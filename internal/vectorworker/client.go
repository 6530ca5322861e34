package vectorworker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

// dialRetryConfig governs retries of the initial connect only: the
// worker is a local process that can be between an exec and its first
// accept() right after a restart, a window measured in milliseconds,
// not the kind of outage that needs a long backoff.
var dialRetryConfig = coreerrors.RetryConfig{
	MaxRetries:   3,
	InitialDelay: 20 * time.Millisecond,
	MaxDelay:     200 * time.Millisecond,
	Multiplier:   2.0,
	Jitter:       true,
}

// Client is the host-side handle to a running worker process, connecting
// fresh for each call. The worker holds no per-connection state between
// calls, so a new connection per request keeps the client trivially safe
// for concurrent use.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the worker listening on socketPath.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// dial connects to the worker's socket, retrying a short backoff window
// so a call racing the worker's own startup (or a mid-session respawn)
// doesn't fail on the first connection refused.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	return coreerrors.RetryWithResult(ctx, dialRetryConfig, func() (net.Conn, error) {
		return net.DialTimeout("unix", c.socketPath, c.timeout)
	})
}

// IsRunning reports whether a worker is accepting connections on the socket.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to vector worker: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	req := Request{JSONRPC: "2.0", Method: method, Params: params, ID: uuid.NewString()}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("receive response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("vector worker %s failed (code %d): %s", method, resp.Error.Code, resp.Error.Message)
	}
	if result == nil {
		return nil
	}

	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return json.Unmarshal(data, result)
}

func (c *Client) Init(ctx context.Context, p InitParams) error {
	return c.call(ctx, MethodInit, p, &OKResult{})
}

func (c *Client) LoadIndex(ctx context.Context, path string) (int, error) {
	var out CountResult
	err := c.call(ctx, MethodLoadIndex, LoadIndexParams{Path: path}, &out)
	return out.Count, err
}

func (c *Client) SaveIndex(ctx context.Context, path string) error {
	return c.call(ctx, MethodSaveIndex, LoadIndexParams{Path: path}, &OKResult{})
}

func (c *Client) AddVector(ctx context.Context, id uint64, vector []float32) error {
	return c.call(ctx, MethodAddVector, AddVectorParams{ID: id, Vector: vector}, &OKResult{})
}

func (c *Client) AddVectors(ctx context.Context, batch []AddVectorParams) (int, error) {
	var out CountResult
	err := c.call(ctx, MethodAddVectors, AddVectorsParams{Batch: batch}, &out)
	return out.Count, err
}

func (c *Client) Search(ctx context.Context, query []float32, k int) (SearchResult, error) {
	var out SearchResult
	err := c.call(ctx, MethodSearch, SearchParams{QueryVector: query, K: k}, &out)
	return out, err
}

func (c *Client) GetCurrentCount(ctx context.Context) (int, error) {
	var out CountResult
	err := c.call(ctx, MethodGetCurrentCount, nil, &out)
	return out.Count, err
}

func (c *Client) ResizeIndex(ctx context.Context, newMax int) error {
	return c.call(ctx, MethodResizeIndex, ResizeIndexParams{NewMax: newMax}, &OKResult{})
}

func (c *Client) SetEf(ctx context.Context, ef int) error {
	return c.call(ctx, MethodSetEf, SetEfParams{Ef: ef}, &OKResult{})
}

func (c *Client) Reset(ctx context.Context) error {
	return c.call(ctx, MethodReset, nil, &OKResult{})
}

func (c *Client) IndexExists(ctx context.Context, path string) (bool, error) {
	var out ExistsResult
	err := c.call(ctx, MethodIndexExists, IndexExistsParams{Path: path}, &out)
	return out.Exists, err
}

func (c *Client) Stats(ctx context.Context) (StatsResult, error) {
	var out StatsResult
	err := c.call(ctx, MethodStats, nil, &out)
	return out, err
}

// Cleanup tells the worker to release its graph and stop serving; the
// worker process is expected to exit shortly after the response is sent.
func (c *Client) Cleanup(ctx context.Context) error {
	return c.call(ctx, MethodCleanup, nil, &OKResult{})
}
