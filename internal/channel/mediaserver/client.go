package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultCallTimeout = 10 * time.Second
)

// Client speaks JSON-RPC 2.0 over a WebSocket control connection to the
// media server. Calls are serialized on the single connection; the
// per-session strategy state keeps concurrency at the session level.
type Client struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	nextID      uint64
	callTimeout time.Duration
	closed      bool
}

var _ Backend = (*Client)(nil)

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithCallTimeout bounds each control call. Default 10s.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// Dial connects to the media server's control WebSocket.
func Dial(ctx context.Context, wsURI string, opts ...ClientOption) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURI, nil)
	if err != nil {
		return nil, fmt.Errorf("mediaserver: dial %q: %w", wsURI, err)
	}
	// Control answers can carry full SDP bodies.
	conn.SetReadLimit(1 << 20)

	c := &Client{
		conn:        conn,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// RPCError is a JSON-RPC error object returned by the media server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mediaserver: rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// call performs one JSON-RPC round trip. Server-initiated notifications
// (messages without an ID) that arrive between request and response are
// skipped.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("mediaserver: %s: connection closed", method)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	c.nextID++
	id := c.nextID
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mediaserver: marshal %s request: %w", method, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("mediaserver: send %s request: %w", method, err)
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("mediaserver: read %s response: %w", method, err)
		}
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("mediaserver: decode %s response: %w", method, err)
		}
		if resp.ID == nil || *resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("mediaserver: decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

// CreatePipeline implements [Backend].
func (c *Client) CreatePipeline(ctx context.Context) (string, error) {
	var res struct {
		PipelineID string `json:"pipelineId"`
	}
	if err := c.call(ctx, "createPipeline", nil, &res); err != nil {
		return "", err
	}
	return res.PipelineID, nil
}

// ReleasePipeline implements [Backend].
func (c *Client) ReleasePipeline(ctx context.Context, pipelineID string) error {
	params := map[string]string{"pipelineId": pipelineID}
	return c.call(ctx, "releasePipeline", params, nil)
}

// CreateEndpoint implements [Backend].
func (c *Client) CreateEndpoint(ctx context.Context, pipelineID string) (string, error) {
	params := map[string]string{"pipelineId": pipelineID}
	var res struct {
		EndpointID string `json:"endpointId"`
	}
	if err := c.call(ctx, "createEndpoint", params, &res); err != nil {
		return "", err
	}
	return res.EndpointID, nil
}

// ReleaseEndpoint implements [Backend].
func (c *Client) ReleaseEndpoint(ctx context.Context, endpointID string) error {
	params := map[string]string{"endpointId": endpointID}
	return c.call(ctx, "releaseEndpoint", params, nil)
}

// ProcessOffer implements [Backend].
func (c *Client) ProcessOffer(ctx context.Context, endpointID, offer string) (string, error) {
	params := map[string]string{"endpointId": endpointID, "sdpOffer": offer}
	var res struct {
		SDPAnswer string `json:"sdpAnswer"`
	}
	if err := c.call(ctx, "processOffer", params, &res); err != nil {
		return "", err
	}
	return res.SDPAnswer, nil
}

// GatherCandidates implements [Backend].
func (c *Client) GatherCandidates(ctx context.Context, endpointID string) error {
	params := map[string]string{"endpointId": endpointID}
	return c.call(ctx, "gatherCandidates", params, nil)
}

// AddCandidate implements [Backend].
func (c *Client) AddCandidate(ctx context.Context, endpointID, candidate, sdpMid string, sdpMLineIndex int) error {
	params := map[string]any{
		"endpointId":    endpointID,
		"candidate":     candidate,
		"sdpMid":        sdpMid,
		"sdpMLineIndex": sdpMLineIndex,
	}
	return c.call(ctx, "addCandidate", params, nil)
}

// Ping implements [Backend].
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// Close implements [Backend]. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close(websocket.StatusNormalClosure, "client closing")
}
