package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ND68/TipJar/internal/chain"
	"github.com/ND68/TipJar/internal/chain/evm/rpc"
	"github.com/ND68/TipJar/internal/circuitbreaker"
	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func TestClassify_RepresentativeRuntimeErrors(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		expectedClass Class
	}{
		{
			name:          "context deadline transient",
			err:           context.DeadlineExceeded,
			expectedClass: ClassTransient,
		},
		{
			name:          "context canceled terminal",
			err:           fmt.Errorf("call: %w", context.Canceled),
			expectedClass: ClassTerminal,
		},
		{
			name:          "open breaker transient",
			err:           fmt.Errorf("getTipHistory: %w", circuitbreaker.ErrCircuitOpen),
			expectedClass: ClassTransient,
		},
		{
			name:          "jsonrpc server range transient",
			err:           &rpc.RPCError{Code: -32000, Message: "header not found"},
			expectedClass: ClassTransient,
		},
		{
			name:          "jsonrpc revert terminal",
			err:           &rpc.RPCError{Code: rpc.CodeExecutionReverted, Message: "execution reverted"},
			expectedClass: ClassTerminal,
		},
		{
			name:          "http 503 transient",
			err:           errors.New("http status 503: service unavailable"),
			expectedClass: ClassTransient,
		},
		{
			name:          "abi decode terminal",
			err:           errors.New("abi: cannot marshal in to go slice"),
			expectedClass: ClassTerminal,
		},
		{
			name:          "unknown defaults terminal",
			err:           errors.New("unexpected failure"),
			expectedClass: ClassTerminal,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			decision := Classify(tc.err)
			assert.Equal(t, tc.expectedClass, decision.Class)
		})
	}
}

func TestClassify_NilIsTerminal(t *testing.T) {
	d := Classify(nil)
	assert.False(t, d.IsTransient())
	assert.Equal(t, "nil_error", d.Reason)
}

func TestFailure(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want model.FailureReason
	}{
		{"nil", nil, model.FailureNone},
		{"sentinel rejection", fmt.Errorf("send: %w", chain.ErrUserRejected), model.FailureUserRejected},
		{"eip1193 4001", &rpc.RPCError{Code: rpc.CodeUserRejected, Message: "User rejected the request."}, model.FailureUserRejected},
		{"eip1193 4100", &rpc.RPCError{Code: rpc.CodeUnauthorized, Message: "not authorized"}, model.FailureUnauthorized},
		{"provider disconnected", &rpc.RPCError{Code: rpc.CodeDisconnected, Message: "disconnected"}, model.FailureNotConnected},
		{"user denied message", errors.New("MetaMask Tx Signature: User denied transaction signature."), model.FailureUserRejected},
		{"owner only revert", &rpc.RPCError{Code: rpc.CodeExecutionReverted, Message: "execution reverted: Only owner can withdraw"}, model.FailureUnauthorized},
		{"ownable revert", errors.New("execution reverted: Ownable: caller is not the owner"), model.FailureUnauthorized},
		{"plain revert", errors.New("execution reverted"), model.FailureTransactionReverted},
		{"transport", errors.New("dial tcp 127.0.0.1:8545: connection refused"), model.FailureTransport},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Failure(tc.err))
		})
	}
}
