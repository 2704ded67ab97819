// Package preflight fetches footprint and resource suggestions from an
// external simulation service.
//
// A suggestion is a starting point, never an authority: callers feed the
// suggested SorobanTransactionData back through the resource accountant
// before using it, and pad or reprice as needed. Suggestions are cached
// locally for a short window keyed by the exact operation bytes.
package preflight

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// Client errors.
var (
	// ErrClosed is returned when operating on a closed client.
	ErrClosed = errors.New("preflight client is closed")

	// ErrSimulationFailed is returned when the service reports the
	// simulation itself failed.
	ErrSimulationFailed = errors.New("simulation failed")
)

// RPCError represents a JSON-RPC error response from the service.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Suggestion is the simulation service's proposed resource declaration.
type Suggestion struct {
	// TransactionData is the suggested resource declaration.
	TransactionData xdr.SorobanTransactionData

	// MinResourceFee is the service's fee estimate for the declaration.
	MinResourceFee int64
}

// Client is a JSON-RPC client for the simulation service.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *suggestionCache
	closed     atomic.Bool
}

// NewClient creates a preflight client with the given configuration.
func NewClient(config Config) (*Client, error) {
	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.CachePath != "" {
		cache, err := openSuggestionCache(cfg.CachePath, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Close releases the cache. Close is idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// simulateParams is the simulateTransaction request payload.
type simulateParams struct {
	Operation string `json:"operation"` // base64 XDR of InvokeHostFunctionOp
}

// simulateResult is the simulateTransaction response payload.
type simulateResult struct {
	TransactionData string `json:"transactionData"` // base64 XDR
	MinResourceFee  int64  `json:"minResourceFee,string"`
	Error           string `json:"error,omitempty"`
}

// Simulate asks the service for a resource suggestion for op.
// Cached suggestions within the TTL are served without a request.
func (c *Client) Simulate(ctx context.Context, lim xdr.Limits, op *xdr.InvokeHostFunctionOp) (*Suggestion, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	raw, err := xdr.Marshal(lim, op)
	if err != nil {
		return nil, fmt.Errorf("encode operation: %w", err)
	}

	if c.cache != nil {
		if s, ok := c.cache.Get(raw, lim); ok {
			return s, nil
		}
	}

	var result simulateResult
	err = c.call(ctx, "simulateTransaction", simulateParams{
		Operation: base64.StdEncoding.EncodeToString(raw),
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSimulationFailed, result.Error)
	}

	dataRaw, err := base64.StdEncoding.DecodeString(result.TransactionData)
	if err != nil {
		return nil, fmt.Errorf("decode transaction data: %w", err)
	}
	s := &Suggestion{MinResourceFee: result.MinResourceFee}
	if err := xdr.Unmarshal(lim, dataRaw, &s.TransactionData); err != nil {
		return nil, fmt.Errorf("decode transaction data: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Put(raw, s, lim); err != nil {
			// Cache write failures do not fail the request.
			return s, nil
		}
	}
	return s, nil
}

// call makes a JSON-RPC call to the configured endpoint.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
