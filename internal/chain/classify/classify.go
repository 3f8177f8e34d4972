package classify

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ND68/TipJar/internal/chain"
	"github.com/ND68/TipJar/internal/chain/evm/rpc"
	"github.com/ND68/TipJar/internal/circuitbreaker"
	"github.com/ND68/TipJar/internal/domain/model"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

// Decision is the outcome of classifying an error returned by the chain port.
type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

func transient(reason string) Decision { return Decision{Class: ClassTransient, Reason: reason} }
func terminal(reason string) Decision  { return Decision{Class: ClassTerminal, Reason: reason} }

// rule returns ok once it has an opinion on err.
type rule func(err error, lower string) (Decision, bool)

// rules run in order. Typed checks come before message matching so a
// wrapped sentinel is never decided by its text.
var rules = []rule{
	func(err error, _ string) (Decision, bool) {
		switch {
		case errors.Is(err, context.Canceled):
			return terminal("context_canceled"), true
		case errors.Is(err, context.DeadlineExceeded):
			return transient("context_deadline_exceeded"), true
		case errors.Is(err, circuitbreaker.ErrCircuitOpen):
			return transient("circuit_open"), true
		}
		return Decision{}, false
	},
	func(err error, _ string) (Decision, bool) {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return transient("net_timeout"), true
		}
		return Decision{}, false
	},
	func(err error, _ string) (Decision, bool) {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) {
			return classifyJSONRPCCode(rpcErr.Code), true
		}
		return Decision{}, false
	},
	func(_ error, lower string) (Decision, bool) {
		if containsAny(lower, terminalMessageTokens) {
			return terminal("message_terminal"), true
		}
		if containsAny(lower, transientMessageTokens) {
			return transient("message_transient"), true
		}
		return Decision{}, false
	},
}

// Classify decides whether err is worth trying again on the next poll tick.
// Nothing in this module retries on its own; the decision feeds logs, sync
// health and the read breaker.
func Classify(err error) Decision {
	if err == nil {
		return terminal("nil_error")
	}
	lower := strings.ToLower(err.Error())
	for _, r := range rules {
		if d, ok := r(err, lower); ok {
			return d
		}
	}
	return terminal("unknown_terminal_default")
}

// Failure maps an error from a write path (signing, broadcast, receipt wait)
// to the failure reason reported on a FAILED state.
func Failure(err error) model.FailureReason {
	if err == nil {
		return model.FailureNone
	}
	if errors.Is(err, chain.ErrUserRejected) {
		return model.FailureUserRejected
	}

	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case rpc.CodeUserRejected:
			return model.FailureUserRejected
		case rpc.CodeUnauthorized:
			return model.FailureUnauthorized
		case rpc.CodeDisconnected, rpc.CodeChainDisconnected:
			return model.FailureNotConnected
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, userRejectedTokens):
		return model.FailureUserRejected
	case containsAny(lower, ownerOnlyTokens):
		return model.FailureUnauthorized
	case strings.Contains(lower, "execution reverted"):
		return model.FailureTransactionReverted
	default:
		return model.FailureTransport
	}
}

// -32005 is the limit-exceeded code several providers use.
func classifyJSONRPCCode(code int) Decision {
	switch {
	case code == rpc.CodeDisconnected || code == rpc.CodeChainDisconnected:
		return transient("provider_disconnected")
	case code == rpc.CodeInternalJSONRPC || code == -32005:
		return transient("jsonrpc_server_transient")
	case code <= rpc.CodeServerErrorDefault && code >= -32099:
		return transient("jsonrpc_server_range")
	default:
		return terminal("jsonrpc_terminal")
	}
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var userRejectedTokens = []string{
	"user rejected",
	"user denied",
	"rejected the request",
}

var ownerOnlyTokens = []string{
	"only owner",
	"only the owner",
	"onlyowner",
	"not the owner",
	"caller is not the owner",
	"ownableunauthorizedaccount",
	"unauthorized",
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"too many requests",
	"rate limit",
	"http status 429",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
}

var terminalMessageTokens = []string{
	"length mismatch",
	"invalid argument",
	"invalid params",
	"method not found",
	"parse error",
	"execution reverted",
	"insufficient funds",
	"abi: ",
}
