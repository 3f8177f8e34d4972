package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ND68/TipJar/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate limiter for RPC calls against one network.
type Limiter struct {
	limiter *rate.Limiter
	network string
}

// NewLimiter creates a rate limiter that allows rps requests per second
// with a burst capacity of burst tokens. A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int, network string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		network: network,
	}
}

// Wait takes one token, sleeping until it is available. A cancelled wait
// hands the token back.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rpc limiter for %s: burst too small", l.network)
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	metrics.RPCRateLimitWaits.WithLabelValues(l.network).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// RecordRPCCall counts one RPC call under its status label.
func RecordRPCCall(network, method string, err error) {
	metrics.RPCCallsTotal.WithLabelValues(network, method, ClassifyRPCError(err)).Inc()
}

// statusTokens is checked in order; the first label with a matching token wins.
var statusTokens = []struct {
	label  string
	tokens []string
}{
	{"user_rejected", []string{"user rejected", "user denied"}},
	{"reverted", []string{"execution reverted"}},
	{"timeout", []string{"timeout", "deadline exceeded"}},
	{"rate_limited", []string{"rate limit", "429", "too many requests"}},
	{"server_error", []string{"500", "502", "503", "internal server error"}},
	{"network_error", []string{"connection refused", "connection reset", "network is unreachable", "no such host", "broken pipe", "eof"}},
}

// ClassifyRPCError maps err to the status label of the rpc_calls metric.
func ClassifyRPCError(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	lower := strings.ToLower(err.Error())
	for _, st := range statusTokens {
		for _, tok := range st.tokens {
			if strings.Contains(lower, tok) {
				return st.label
			}
		}
	}
	return "client_error"
}
