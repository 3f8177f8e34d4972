package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ND68/TipJar/internal/cache"
	"github.com/ND68/TipJar/internal/chain"
	"github.com/ND68/TipJar/internal/chain/classify"
	"github.com/ND68/TipJar/internal/contract"
	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/metrics"
	"github.com/ND68/TipJar/internal/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const (
	defaultOwnerCacheSize = 64
	defaultOwnerCacheTTL  = 5 * time.Minute
)

var (
	// ErrActionInFlight is returned when a write is submitted while another
	// one has not reached a terminal state.
	ErrActionInFlight = errors.New("orchestrator: another action is in flight")
	// ErrNoTarget is returned by reads that need a jar before one is known.
	ErrNoTarget = errors.New("orchestrator: no target jar")

	errInvalidAmount = errors.New("tip amount must be positive")
	errNoFactory     = errors.New("no factory address configured")
	errNotOwner      = errors.New("connected account is not the jar owner")
)

// Orchestrator drives one write action at a time against a tip jar and
// reports every lifecycle state to its listeners.
type Orchestrator struct {
	port    chain.AccessPort
	network string
	factory common.Address
	owners  *cache.LRU[common.Address, common.Address]
	logger  *slog.Logger
	newID   func() string

	// deliverMu keeps listener calls in state order across back-to-back
	// actions; it is taken before mu and never while holding it.
	deliverMu sync.Mutex

	mu        sync.Mutex
	target    common.Address
	state     model.TxState
	active    *Action
	listeners []listenerEntry
	nextSubID int
}

type listenerEntry struct {
	id int
	fn Listener
}

type Option func(*Orchestrator)

// WithTarget sets the jar that tips and withdrawals go to.
func WithTarget(jar common.Address) Option {
	return func(o *Orchestrator) { o.target = jar }
}

// WithFactory sets the factory used by DeployNewJar.
func WithFactory(factory common.Address) Option {
	return func(o *Orchestrator) { o.factory = factory }
}

// WithOwnerCacheTTL bounds how long a jar owner read is reused.
func WithOwnerCacheTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.owners = cache.NewLRU[common.Address, common.Address](defaultOwnerCacheSize, ttl)
	}
}

func New(port chain.AccessPort, network string, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		port:    port,
		network: network,
		owners:  cache.NewLRU[common.Address, common.Address](defaultOwnerCacheSize, defaultOwnerCacheTTL),
		logger:  logger.With("component", "orchestrator"),
		newID:   uuid.NewString,
		state:   model.TxState{Phase: model.TxPhaseIdle},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Subscribe registers l for every subsequent state. The returned func removes it.
func (o *Orchestrator) Subscribe(l Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextSubID++
	id := o.nextSubID
	o.listeners = append(o.listeners, listenerEntry{id: id, fn: l})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, e := range o.listeners {
			if e.id == id {
				o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

// State returns the most recently entered state.
func (o *Orchestrator) State() model.TxState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Target returns the jar writes go to; the zero address means none yet.
func (o *Orchestrator) Target() common.Address {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

func (o *Orchestrator) SetTarget(jar common.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.target = jar
}

// SubmitTip sends amount wei to the target jar with a message and nickname.
func (o *Orchestrator) SubmitTip(ctx context.Context, amount *big.Int, message, nickname string) (*Action, error) {
	if amount != nil {
		amount = new(big.Int).Set(amount)
	}
	return o.launch(ctx, model.ActionTip, func(ctx context.Context, r *run) {
		if amount == nil || amount.Sign() <= 0 {
			r.fail(model.FailureInvalidRequest, errInvalidAmount)
			return
		}
		account, target, ok := o.preflight(ctx, r, true)
		if !ok {
			return
		}
		data, err := contract.PackTip(message, nickname)
		if err != nil {
			r.fail(model.FailureInvalidRequest, err)
			return
		}
		if _, ok := o.submit(ctx, r, chain.TxRequest{From: account, To: target, Data: data, Value: amount}); !ok {
			return
		}
		r.enter(model.TxPhaseConfirmed)
	})
}

// SubmitWithdraw drains the target jar to its owner. A connected account that
// is not the owner fails with UNAUTHORIZED before anything is signed.
func (o *Orchestrator) SubmitWithdraw(ctx context.Context) (*Action, error) {
	return o.launch(ctx, model.ActionWithdraw, func(ctx context.Context, r *run) {
		account, target, ok := o.preflight(ctx, r, true)
		if !ok {
			return
		}
		owner, err := o.OwnerOf(ctx, target)
		if err != nil {
			r.fail(model.FailureUnauthorized, fmt.Errorf("owner unknown: %w", err))
			return
		}
		if owner != account {
			r.fail(model.FailureUnauthorized, errNotOwner)
			return
		}
		data, err := contract.PackWithdraw()
		if err != nil {
			r.fail(model.FailureInvalidRequest, err)
			return
		}
		if _, ok := o.submit(ctx, r, chain.TxRequest{From: account, To: target, Data: data}); !ok {
			return
		}
		r.enter(model.TxPhaseConfirmed)
	})
}

// DeployNewJar asks the factory for a jar owned by the connected account.
// On DEPLOYED the new jar becomes the orchestrator's target.
func (o *Orchestrator) DeployNewJar(ctx context.Context) (*Action, error) {
	return o.launch(ctx, model.ActionDeploy, func(ctx context.Context, r *run) {
		account, _, ok := o.preflight(ctx, r, false)
		if !ok {
			return
		}
		if o.factory == (common.Address{}) {
			r.fail(model.FailureInvalidRequest, errNoFactory)
			return
		}
		data, err := contract.PackCreateMyTipJar()
		if err != nil {
			r.fail(model.FailureInvalidRequest, err)
			return
		}
		receipt, ok := o.submit(ctx, r, chain.TxRequest{From: account, To: o.factory, Data: data})
		if !ok {
			return
		}

		r.enter(model.TxPhaseResolvingAddress)
		jar, err := DeployedAddress(receipt.Logs)
		if err != nil {
			r.fail(model.FailureAddressResolutionFailed, err)
			return
		}
		o.SetTarget(jar)
		o.owners.Put(jar, account)
		r.state.Address = jar
		r.enter(model.TxPhaseDeployed)
	})
}

// OwnerOf reads the owner of jar, reusing a cached answer when fresh.
// Concurrent callers for the same jar share one read.
func (o *Orchestrator) OwnerOf(ctx context.Context, jar common.Address) (common.Address, error) {
	if jar == (common.Address{}) {
		return common.Address{}, ErrNoTarget
	}
	return o.owners.GetOrLoad(ctx, jar, o.readOwner)
}

func (o *Orchestrator) readOwner(ctx context.Context, jar common.Address) (common.Address, error) {
	data, err := contract.PackOwner()
	if err != nil {
		return common.Address{}, err
	}
	out, err := o.port.Call(ctx, jar, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("read owner of %s: %w", jar.Hex(), err)
	}
	return contract.UnpackOwner(out)
}

// IsOwner reports whether the connected account owns the target jar. With no
// connected account it reports false without reading the owner.
func (o *Orchestrator) IsOwner(ctx context.Context) (bool, error) {
	account, ok, err := o.port.CurrentAccount(ctx)
	if err != nil {
		return false, fmt.Errorf("current account: %w", err)
	}
	if !ok {
		return false, nil
	}
	owner, err := o.OwnerOf(ctx, o.Target())
	if err != nil {
		return false, err
	}
	return owner == account, nil
}

func (o *Orchestrator) launch(ctx context.Context, kind model.ActionKind, body func(context.Context, *run)) (*Action, error) {
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		metrics.TxRejectedBusy.WithLabelValues(o.network, kind.String()).Inc()
		return nil, ErrActionInFlight
	}
	act := newAction(o.newID(), kind)
	o.active = act
	o.mu.Unlock()

	metrics.TxSubmissionsTotal.WithLabelValues(o.network, kind.String()).Inc()
	log := o.logger.With("action", kind.String(), "action_id", act.ID)
	log.Info("action submitted")

	// The action outlives the submitting request; only values are inherited.
	ctx = context.WithoutCancel(ctx)

	go func() {
		start := time.Now()
		spanCtx, span := tracing.Tracer("orchestrator").Start(ctx, "orchestrator."+kind.String(),
			otelTrace.WithAttributes(
				attribute.String("network", o.network),
				attribute.String("action_id", act.ID),
			),
		)

		r := &run{o: o, act: act, state: model.TxState{ActionID: act.ID, Action: kind}}
		r.enter(model.TxPhaseIdle)
		body(spanCtx, r)
		final := r.state

		if final.Phase == model.TxPhaseFailed {
			span.SetStatus(codes.Error, final.Reason.String())
			log.Warn("action failed", "reason", final.Reason, "detail", final.Detail, "tx_hash", hashAttr(final))
		} else {
			log.Info("action completed", "state", final.String())
		}
		span.SetAttributes(attribute.String("phase", final.Phase.String()))
		span.End()

		metrics.TxOutcomesTotal.WithLabelValues(o.network, kind.String(), final.Phase.String(), final.Reason.String()).Inc()
		metrics.TxLatency.WithLabelValues(o.network, kind.String()).Observe(time.Since(start).Seconds())

		o.release(act)
		act.finish(final)
	}()
	return act, nil
}

// preflight resolves the connected account and, when needTarget, the jar.
func (o *Orchestrator) preflight(ctx context.Context, r *run, needTarget bool) (common.Address, common.Address, bool) {
	account, ok, err := o.port.CurrentAccount(ctx)
	if err != nil || !ok {
		r.fail(model.FailureNotConnected, err)
		return common.Address{}, common.Address{}, false
	}
	target := o.Target()
	if needTarget && target == (common.Address{}) {
		r.fail(model.FailureNotConnected, ErrNoTarget)
		return common.Address{}, common.Address{}, false
	}
	return account, target, true
}

// submit signs and broadcasts req and waits for a successful receipt.
func (o *Orchestrator) submit(ctx context.Context, r *run, req chain.TxRequest) (*chain.Receipt, bool) {
	r.enter(model.TxPhaseAwaitingSignature)
	hash, err := o.port.SendTransaction(ctx, req)
	if err != nil {
		r.fail(classify.Failure(err), err)
		return nil, false
	}

	r.state.TxHash = hash
	r.enter(model.TxPhasePending)
	receipt, err := o.port.WaitForReceipt(ctx, hash)
	if err != nil {
		r.fail(classify.Failure(err), err)
		return nil, false
	}
	if !receipt.Succeeded() {
		r.fail(model.FailureTransactionReverted, nil)
		return nil, false
	}
	return receipt, true
}

// publish records st and hands it to every listener. A terminal state frees
// the slot before any listener sees it, so a listener may submit right away.
func (o *Orchestrator) publish(act *Action, st model.TxState) {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	o.state = st
	if st.Phase != model.TxPhaseIdle && st.Phase.Terminal() && o.active == act {
		o.active = nil
	}
	listeners := make([]Listener, len(o.listeners))
	for i, e := range o.listeners {
		listeners[i] = e.fn
	}
	o.mu.Unlock()

	for _, l := range listeners {
		l(st)
	}
}

// release frees the slot if act still holds it.
func (o *Orchestrator) release(act *Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == act {
		o.active = nil
	}
}

// run carries the state of one action between its steps.
type run struct {
	o     *Orchestrator
	act   *Action
	state model.TxState
}

func (r *run) enter(phase model.TxPhase) {
	r.state.Phase = phase
	r.o.publish(r.act, r.state)
}

func (r *run) fail(reason model.FailureReason, err error) {
	r.state.Phase = model.TxPhaseFailed
	r.state.Reason = reason
	if err != nil {
		r.state.Detail = err.Error()
	}
	r.o.publish(r.act, r.state)
}

func hashAttr(st model.TxState) string {
	if !st.HasTxHash() {
		return ""
	}
	return st.TxHash.Hex()
}
