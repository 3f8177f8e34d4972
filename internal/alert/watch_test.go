package alert

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/synchronizer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *captureAlerter) Send(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func (c *captureAlerter) sent() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

var (
	jarA  = common.HexToAddress("0x32423a9f5b042672022e5e312d82addfe9b15830")
	jarB  = common.HexToAddress("0x9999999999999999999999999999999999999999")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func tip(ts int64, wei int64, msg string) model.TipRecord {
	return model.TipRecord{Sender: alice, Nickname: "alice", Message: msg, Amount: big.NewInt(wei), Timestamp: ts}
}

func snapshotOf(jar common.Address, tips ...model.TipRecord) model.SyncSnapshot {
	return model.SyncSnapshot{Jar: jar, Tips: tips, LastRefreshedAt: time.Unix(1700001000, 0)}
}

func TestWatcher_SnapshotListener_AlertsOnlyNewTips(t *testing.T) {
	c := &captureAlerter{}
	w := NewWatcher(c, "sepolia", testLogger())
	listen := w.SnapshotListener(context.Background())

	listen(snapshotOf(jarA, tip(100, 1, "old")))
	assert.Empty(t, c.sent(), "first snapshot is the baseline")

	listen(snapshotOf(jarA, tip(200, 10_000_000_000_000_000, "new"), tip(100, 1, "old")))
	alerts := c.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeTipReceived, alerts[0].Type)
	assert.Equal(t, "0.010 ETH from alice", alerts[0].Title)
	assert.Equal(t, "new", alerts[0].Message)
	assert.Equal(t, "10000000000000000", alerts[0].Fields["amount_wei"])
	assert.Equal(t, jarA.Hex(), alerts[0].Jar)

	listen(snapshotOf(jarA, tip(200, 10_000_000_000_000_000, "new"), tip(100, 1, "old")))
	assert.Len(t, c.sent(), 1, "repeated snapshot sends nothing")
}

func TestWatcher_SnapshotListener_RetargetResetsBaseline(t *testing.T) {
	c := &captureAlerter{}
	w := NewWatcher(c, "sepolia", testLogger())
	listen := w.SnapshotListener(context.Background())

	listen(snapshotOf(jarA, tip(100, 1, "a")))
	listen(model.SyncSnapshot{Jar: jarB})
	listen(snapshotOf(jarB, tip(50, 1, "b-history")))
	assert.Empty(t, c.sent(), "history of a newly selected jar is not announced")

	listen(snapshotOf(jarB, tip(60, 2, "b-new"), tip(50, 1, "b-history")))
	require.Len(t, c.sent(), 1)
	assert.Equal(t, "b-new", c.sent()[0].Message)
}

func TestWatcher_ActionListener(t *testing.T) {
	c := &captureAlerter{}
	w := NewWatcher(c, "sepolia", testLogger())
	listen := w.ActionListener(context.Background())

	hash := common.HexToHash("0xabcdef0000000000000000000000000000000000000000000000000000000001")
	listen(model.TxState{Phase: model.TxPhaseFailed, Reason: model.FailureUserRejected, Action: model.ActionTip})
	listen(model.TxState{Phase: model.TxPhaseConfirmed, Action: model.ActionTip, TxHash: hash})
	listen(model.TxState{
		ActionID: "act-1",
		Action:   model.ActionWithdraw,
		Phase:    model.TxPhaseFailed,
		Reason:   model.FailureTransactionReverted,
		TxHash:   hash,
		Detail:   "execution reverted",
	})

	require.Eventually(t, func() bool { return len(c.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	a := c.sent()[0]
	assert.Equal(t, AlertTypeActionFailed, a.Type)
	assert.Equal(t, "withdraw failed: TRANSACTION_REVERTED", a.Title)
	assert.Equal(t, "act-1", a.Key)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+hash.Hex(), a.Fields["explorer"])
}

func TestWatcher_HealthTransition(t *testing.T) {
	c := &captureAlerter{err: errors.New("delivery down")}
	w := NewWatcher(c, "sepolia", testLogger())
	ctx := context.Background()

	w.healthTransition(ctx, "HEALTHY", synchronizer.HealthSnapshot{Status: "DEGRADED"})
	assert.Empty(t, c.sent())

	w.healthTransition(ctx, "DEGRADED", synchronizer.HealthSnapshot{Status: "UNHEALTHY", ConsecutiveFailures: 5, LastError: "boom"})
	w.healthTransition(ctx, "UNHEALTHY", synchronizer.HealthSnapshot{Status: "UNHEALTHY"})
	w.healthTransition(ctx, "UNHEALTHY", synchronizer.HealthSnapshot{Status: "HEALTHY"})

	alerts := c.sent()
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertTypeSyncUnhealthy, alerts[0].Type)
	assert.Equal(t, "boom", alerts[0].Message)
	assert.Equal(t, "5", alerts[0].Fields["consecutive_failures"])
	assert.Equal(t, AlertTypeSyncRecovered, alerts[1].Type)
}

func TestWatcher_WatchHealth(t *testing.T) {
	c := &captureAlerter{}
	w := NewWatcher(c, "sepolia", testLogger())
	health := synchronizer.NewHealth("sepolia")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.WatchHealth(ctx, health, 5*time.Millisecond)
		close(done)
	}()

	for i := 0; i < synchronizer.DefaultUnhealthyThreshold; i++ {
		health.RecordFailure(errors.New("rpc down"))
	}
	require.Eventually(t, func() bool { return len(c.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, AlertTypeSyncUnhealthy, c.sent()[0].Type)

	cancel()
	<-done
}
