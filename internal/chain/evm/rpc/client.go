package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ND68/TipJar/internal/chain/ratelimit"
	"github.com/ND68/TipJar/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const (
	maxResponseBytes  = 8 << 20
	maxErrorBodyBytes = 256
)

// RPCClient is the JSON-RPC surface the EVM adapter consumes.
type RPCClient interface {
	ChainID(ctx context.Context) (int64, error)
	Accounts(ctx context.Context) ([]string, error)
	SendTransaction(ctx context.Context, msg CallMsg) (string, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*TransactionReceipt, error)
	Call(ctx context.Context, msg CallMsg, blockTag string) (string, error)
}

// Client talks JSON-RPC 2.0 over HTTP to one endpoint, usually a node or a
// wallet bridge that signs eth_sendTransaction.
type Client struct {
	url     string
	network string
	http    *http.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	nextID  atomic.Int64
}

var _ RPCClient = (*Client)(nil)

type ClientOption func(*Client)

// WithHTTPClient replaces the transport. The default client has no overall
// timeout since a wallet may hold eth_sendTransaction open while its user decides.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimiter makes every call take a token from l first.
func WithRateLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

func NewClient(url, network string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:     url,
		network: network,
		http:    &http.Client{},
		logger:  logger.With("component", "rpc", "network", network),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call sends one request and returns the raw result. A JSON-RPC error object
// is returned as *RPCError so callers can branch on its code.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (result json.RawMessage, err error) {
	ctx, span := tracing.Tracer("rpc").Start(ctx, method,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(attribute.String("network", c.network)),
	)
	defer func() {
		ratelimit.RecordRPCCall(c.network, method, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if params == nil {
		params = []interface{}{}
	}
	id := int(c.nextID.Add(1))
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	began := time.Now()
	raw, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("%s: response id %d does not match request id %d", method, resp.ID, id)
	}
	c.logger.Debug("rpc call", "method", method, "id", id, "elapsed", time.Since(began))

	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxErrorBodyBytes {
			raw = raw[:maxErrorBodyBytes]
		}
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return raw, nil
}
