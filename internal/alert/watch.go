package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/synchronizer"
	"github.com/ethereum/go-ethereum/common"
)

// Watcher turns core events into alerts: tips that appear in a new snapshot,
// write actions that fail on chain, and sync health transitions.
type Watcher struct {
	alerter Alerter
	network string
	logger  *slog.Logger

	mu       sync.Mutex
	jar      common.Address
	seeded   bool
	seenTips map[tipKey]struct{}
}

type tipKey struct {
	sender    common.Address
	timestamp int64
	amount    string
}

func NewWatcher(alerter Alerter, network string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		alerter:  alerter,
		network:  network,
		logger:   logger.With("component", "alert_watcher"),
		seenTips: make(map[tipKey]struct{}),
	}
}

// SnapshotListener alerts once per tip not present in any earlier snapshot
// of the same jar. The first snapshot of a jar only sets the baseline.
func (w *Watcher) SnapshotListener(ctx context.Context) synchronizer.SnapshotListener {
	return func(snap model.SyncSnapshot) {
		for _, tip := range w.newTips(snap) {
			w.send(ctx, Alert{
				Type:    AlertTypeTipReceived,
				Network: w.network,
				Jar:     snap.Jar.Hex(),
				Key:     fmt.Sprintf("%s:%d", tip.Sender.Hex(), tip.Timestamp),
				Title:   fmt.Sprintf("%s ETH from %s", model.FormatEther(tip.Amount, 3), model.DisplayName(tip.Nickname, tip.Sender)),
				Message: tip.Message,
				Fields: map[string]string{
					"sender":     tip.Sender.Hex(),
					"amount_wei": amountString(tip),
					"timestamp":  time.Unix(tip.Timestamp, 0).UTC().Format(time.RFC3339),
				},
			})
		}
	}
}

func (w *Watcher) newTips(snap model.SyncSnapshot) []model.TipRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	if snap.Jar != w.jar {
		w.jar = snap.Jar
		w.seeded = false
		w.seenTips = make(map[tipKey]struct{})
	}
	if !snap.HasData() {
		return nil
	}

	var fresh []model.TipRecord
	for _, tip := range snap.Tips {
		k := tipKey{sender: tip.Sender, timestamp: tip.Timestamp, amount: amountString(tip)}
		if _, ok := w.seenTips[k]; ok {
			continue
		}
		w.seenTips[k] = struct{}{}
		if w.seeded {
			fresh = append(fresh, tip)
		}
	}
	w.seeded = true
	return fresh
}

// ActionListener alerts on writes that failed after reaching the chain.
// Wallet rejections and precondition failures are the user's own doing and
// are not reported.
func (w *Watcher) ActionListener(ctx context.Context) func(model.TxState) {
	return func(st model.TxState) {
		if st.Phase != model.TxPhaseFailed {
			return
		}
		switch st.Reason {
		case model.FailureTransactionReverted, model.FailureAddressResolutionFailed, model.FailureTransport:
		default:
			return
		}
		fields := map[string]string{
			"action_id": st.ActionID,
			"reason":    st.Reason.String(),
		}
		if st.HasTxHash() {
			fields["tx_hash"] = st.TxHash.Hex()
			if url := model.Network(w.network).ExplorerTxURL(st.TxHash.Hex()); url != "" {
				fields["explorer"] = url
			}
		}
		// a blocking alert post must not hold up the action goroutine
		go w.send(ctx, Alert{
			Type:    AlertTypeActionFailed,
			Network: w.network,
			Key:     st.ActionID,
			Title:   fmt.Sprintf("%s failed: %s", st.Action, st.Reason),
			Message: st.Detail,
			Fields:  fields,
		})
	}
}

// WatchHealth polls health every interval and alerts when the synchronizer
// becomes unhealthy or recovers. A loop that is already unhealthy at the
// first tick is reported. It returns when ctx is done.
func (w *Watcher) WatchHealth(ctx context.Context, health *synchronizer.Health, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := string(synchronizer.HealthStatusUnknown)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := health.Snapshot()
			w.healthTransition(ctx, prev, snap)
			prev = snap.Status
		}
	}
}

func (w *Watcher) healthTransition(ctx context.Context, prev string, snap synchronizer.HealthSnapshot) {
	unhealthy := string(synchronizer.HealthStatusUnhealthy)
	switch {
	case snap.Status == unhealthy && prev != unhealthy:
		w.send(ctx, Alert{
			Type:    AlertTypeSyncUnhealthy,
			Network: w.network,
			Title:   "tip feed is not refreshing",
			Message: snap.LastError,
			Fields: map[string]string{
				"consecutive_failures": strconv.Itoa(snap.ConsecutiveFailures),
			},
		})
	case prev == unhealthy && snap.Status != unhealthy:
		w.send(ctx, Alert{
			Type:    AlertTypeSyncRecovered,
			Network: w.network,
			Title:   "tip feed refreshing again",
			Message: "status " + snap.Status,
		})
	}
}

func (w *Watcher) send(ctx context.Context, a Alert) {
	if err := w.alerter.Send(ctx, a); err != nil {
		w.logger.Warn("alert delivery failed", "type", a.Type, "error", err)
	}
}

func amountString(tip model.TipRecord) string {
	if tip.Amount == nil {
		return "0"
	}
	return tip.Amount.String()
}
