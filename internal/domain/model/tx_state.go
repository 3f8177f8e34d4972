package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TxPhase is a step of the write-action lifecycle.
type TxPhase string

const (
	TxPhaseIdle              TxPhase = "IDLE"
	TxPhaseAwaitingSignature TxPhase = "AWAITING_SIGNATURE"
	TxPhasePending           TxPhase = "PENDING"
	TxPhaseConfirmed         TxPhase = "CONFIRMED"
	TxPhaseResolvingAddress  TxPhase = "RESOLVING_ADDRESS"
	TxPhaseDeployed          TxPhase = "DEPLOYED"
	TxPhaseFailed            TxPhase = "FAILED"
)

func (p TxPhase) String() string {
	return string(p)
}

// Terminal reports whether the phase ends an action.
func (p TxPhase) Terminal() bool {
	switch p {
	case TxPhaseIdle, TxPhaseConfirmed, TxPhaseDeployed, TxPhaseFailed:
		return true
	default:
		return false
	}
}

// ActionKind names the write action an orchestrator is driving.
type ActionKind string

const (
	ActionTip      ActionKind = "tip"
	ActionWithdraw ActionKind = "withdraw"
	ActionDeploy   ActionKind = "deploy"
)

func (k ActionKind) String() string {
	return string(k)
}

// FailureReason is the error taxonomy surfaced on FAILED states.
type FailureReason string

const (
	FailureNone                    FailureReason = ""
	FailureNotConnected            FailureReason = "NOT_CONNECTED"
	FailureUnauthorized            FailureReason = "UNAUTHORIZED"
	FailureUserRejected            FailureReason = "USER_REJECTED"
	FailureTransactionReverted     FailureReason = "TRANSACTION_REVERTED"
	FailureAddressResolutionFailed FailureReason = "ADDRESS_RESOLUTION_FAILED"
	FailureReadFailed              FailureReason = "READ_FAILED"
	FailureTransport               FailureReason = "TRANSPORT_ERROR"
	FailureInvalidRequest          FailureReason = "INVALID_REQUEST"
)

func (r FailureReason) String() string {
	return string(r)
}

// TxState is one observed state of an orchestrator. TxHash is set from
// PENDING onwards (and kept on a FAILED state reached after submission);
// Address is set only on DEPLOYED.
type TxState struct {
	ActionID string
	Action   ActionKind
	Phase    TxPhase
	TxHash   common.Hash
	Address  common.Address
	Reason   FailureReason
	Detail   string
}

// HasTxHash reports whether the state carries a submitted transaction hash.
func (s TxState) HasTxHash() bool {
	return s.TxHash != (common.Hash{})
}

func (s TxState) String() string {
	switch s.Phase {
	case TxPhasePending, TxPhaseConfirmed, TxPhaseResolvingAddress:
		return fmt.Sprintf("%s(%s)", s.Phase, s.TxHash.Hex())
	case TxPhaseDeployed:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Address.Hex())
	case TxPhaseFailed:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Reason)
	default:
		return s.Phase.String()
	}
}
