package synchronizer

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ND68/TipJar/internal/chain"
	"github.com/ND68/TipJar/internal/contract"
	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testJar      = common.HexToAddress("0x32423a9f5b042672022e5e312d82addfe9b15830")
	testOtherJar = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
)

// fakePort answers getTipHistory/getContributors reads. When gate is set,
// tip history reads block until a value is sent on (or the gate is closed).
type fakePort struct {
	mu           sync.Mutex
	history      []byte
	contributors []byte
	readErr      error
	gate         chan struct{}
	entered      chan struct{}
	historyCalls atomic.Int32
	lastTo       common.Address
}

func (f *fakePort) CurrentAccount(context.Context) (common.Address, bool, error) {
	return common.Address{}, false, nil
}

func (f *fakePort) SendTransaction(context.Context, chain.TxRequest) (common.Hash, error) {
	return common.Hash{}, errors.New("not supported")
}

func (f *fakePort) WaitForReceipt(context.Context, common.Hash) (*chain.Receipt, error) {
	return nil, errors.New("not supported")
}

func (f *fakePort) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	historySel, _ := contract.PackGetTipHistory()
	if bytes.Equal(data, historySel) {
		f.historyCalls.Add(1)
		f.mu.Lock()
		f.lastTo = to
		gate, entered := f.gate, f.entered
		f.mu.Unlock()
		if entered != nil {
			entered <- struct{}{}
		}
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if bytes.Equal(data, historySel) {
		return f.history, nil
	}
	return f.contributors, nil
}

func (f *fakePort) setGate() (gate chan struct{}, entered chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 8)
	return f.gate, f.entered
}

func (f *fakePort) setReadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func mustJarABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(contract.JarABI))
	require.NoError(t, err)
	return parsed
}

func encodeHistory(t *testing.T, messages []string, timestamps []int64) []byte {
	t.Helper()
	n := len(messages)
	senders := make([]common.Address, n)
	amounts := make([]*big.Int, n)
	names := make([]string, n)
	stamps := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		senders[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
		amounts[i] = big.NewInt(int64(i+1) * 1000)
		names[i] = ""
		stamps[i] = big.NewInt(timestamps[i])
	}
	out, err := mustJarABI(t).Methods[contract.MethodGetTipHistory].Outputs.Pack(senders, amounts, messages, names, stamps)
	require.NoError(t, err)
	return out
}

func encodeContributors(t *testing.T, addrs []common.Address, totals []int64, names []string) []byte {
	t.Helper()
	amounts := make([]*big.Int, len(totals))
	for i, v := range totals {
		amounts[i] = big.NewInt(v)
	}
	out, err := mustJarABI(t).Methods[contract.MethodGetContributors].Outputs.Pack(addrs, amounts, names)
	require.NoError(t, err)
	return out
}

func newFixturePort(t *testing.T) *fakePort {
	return &fakePort{
		history: encodeHistory(t, []string{"idx0", "idx1", "idx2", "idx3"}, []int64{100, 300, 300, 50}),
		contributors: encodeContributors(t,
			[]common.Address{
				common.HexToAddress("0x00000000000000000000000000000000000000c0"),
				common.HexToAddress("0x00000000000000000000000000000000000000b0"),
				common.HexToAddress("0x00000000000000000000000000000000000000a0"),
				common.HexToAddress("0x00000000000000000000000000000000000000d0"),
			},
			[]int64{5, 20, 20, 1},
			[]string{"five", "twenty-b", "twenty-a", "one"},
		),
	}
}

func messages(snap model.SyncSnapshot) []string {
	var out []string
	for _, tip := range snap.Tips {
		out = append(out, tip.Message)
	}
	return out
}

func nicknames(snap model.SyncSnapshot) []string {
	var out []string
	for _, c := range snap.Contributors {
		out = append(out, c.Nickname)
	}
	return out
}

func waitChan[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting on channel")
		var zero T
		return zero
	}
}

func TestRefresh_PublishesSortedSnapshot(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, testJar, "sepolia", nil)

	require.NoError(t, s.Refresh(context.Background(), false))

	snap := s.Snapshot()
	assert.True(t, snap.HasData())
	assert.False(t, snap.IsRefreshing)
	assert.Equal(t, testJar, snap.Jar)
	assert.Equal(t, []string{"idx1", "idx2", "idx0", "idx3"}, messages(snap))
	assert.Equal(t, []string{"twenty-a", "twenty-b", "five", "one"}, nicknames(snap))
	assert.Equal(t, testJar, port.lastTo)
	assert.Equal(t, string(HealthStatusHealthy), s.Health().Snapshot().Status)
}

func TestRefresh_SnapshotIsACopy(t *testing.T) {
	s := New(newFixturePort(t), testJar, "sepolia", nil)
	require.NoError(t, s.Refresh(context.Background(), true))

	snap := s.Snapshot()
	snap.Tips[0].Amount.SetInt64(-1)
	snap.Tips[0].Message = "mutated"

	again := s.Snapshot()
	assert.Equal(t, "idx1", again.Tips[0].Message)
	assert.Equal(t, int64(2000), again.Tips[0].Amount.Int64())
}

func TestRefresh_NonForcedCoalescesIntoInFlightFetch(t *testing.T) {
	port := newFixturePort(t)
	gate, entered := port.setGate()
	s := New(port, testJar, "sepolia", nil)

	first := make(chan error, 1)
	go func() { first <- s.Refresh(context.Background(), false) }()
	waitChan(t, entered)

	assert.True(t, s.Snapshot().IsRefreshing)
	require.NoError(t, s.Refresh(context.Background(), false))
	require.NoError(t, s.Refresh(context.Background(), false))

	close(gate)
	require.NoError(t, waitChan(t, first))
	assert.Equal(t, int32(1), port.historyCalls.Load())
	assert.False(t, s.Snapshot().IsRefreshing)
}

func TestRefresh_ForcedWaitsForInFlightFetch(t *testing.T) {
	port := newFixturePort(t)
	gate, entered := port.setGate()
	s := New(port, testJar, "sepolia", nil)

	first := make(chan error, 1)
	go func() { first <- s.Refresh(context.Background(), false) }()
	waitChan(t, entered)

	second := make(chan error, 1)
	go func() { second <- s.Refresh(context.Background(), true) }()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), port.historyCalls.Load(), "forced refresh must not overlap the running fetch")

	gate <- struct{}{}
	require.NoError(t, waitChan(t, first))
	waitChan(t, entered)
	assert.Equal(t, int32(2), port.historyCalls.Load())

	close(gate)
	require.NoError(t, waitChan(t, second))
}

func TestRefresh_ForcedHonoursContext(t *testing.T) {
	port := newFixturePort(t)
	gate, entered := port.setGate()
	s := New(port, testJar, "sepolia", nil)

	go func() { _ = s.Refresh(context.Background(), true) }()
	waitChan(t, entered)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Refresh(ctx, true), context.DeadlineExceeded)
	close(gate)
}

func TestRefresh_ReadFailureKeepsPreviousSnapshot(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, testJar, "sepolia", nil)
	require.NoError(t, s.Refresh(context.Background(), true))
	before := s.Snapshot()

	port.setReadErr(errors.New("http status 502: bad gateway"))
	err := s.Refresh(context.Background(), true)
	require.ErrorIs(t, err, ErrReadFailed)

	after := s.Snapshot()
	assert.Equal(t, before.LastRefreshedAt, after.LastRefreshedAt)
	assert.Equal(t, messages(before), messages(after))
	assert.False(t, after.IsRefreshing)
	assert.Equal(t, 1, s.Health().Snapshot().ConsecutiveFailures)
}

func TestRefresh_DecodeFailureIsReadFailed(t *testing.T) {
	port := newFixturePort(t)
	port.history = []byte{0x01, 0x02}
	s := New(port, testJar, "sepolia", nil)

	err := s.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.False(t, s.Snapshot().HasData())
}

func TestRefresh_NoJar(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, common.Address{}, "sepolia", nil)

	assert.ErrorIs(t, s.Refresh(context.Background(), true), ErrNoJar)
	assert.Equal(t, int32(0), port.historyCalls.Load())
}

func TestStart_InitialRefreshThenSchedule(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, testJar, "sepolia", nil)

	sch, err := s.Start(10 * time.Millisecond)
	require.NoError(t, err)
	defer sch.Stop()

	require.NoError(t, waitChan(t, sch.Initial()))
	assert.True(t, s.Snapshot().HasData())

	require.Eventually(t, func() bool { return port.historyCalls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestStart_FirstFailureReportsNoData(t *testing.T) {
	port := newFixturePort(t)
	port.setReadErr(errors.New("connection refused"))
	s := New(port, testJar, "sepolia", nil)

	sch, err := s.Start(time.Hour)
	require.NoError(t, err)
	defer sch.Stop()

	initErr := waitChan(t, sch.Initial())
	assert.ErrorIs(t, initErr, ErrNoData)
	assert.ErrorIs(t, initErr, ErrReadFailed)
	assert.False(t, s.Snapshot().HasData())
}

func TestStart_FailureWithPriorSnapshotIsSilent(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, testJar, "sepolia", nil)
	require.NoError(t, s.Refresh(context.Background(), true))

	port.setReadErr(errors.New("connection refused"))
	sch, err := s.Start(time.Hour)
	require.NoError(t, err)
	defer sch.Stop()

	assert.NoError(t, waitChan(t, sch.Initial()))
	assert.True(t, s.Snapshot().HasData())
}

func TestStart_RejectsBadIntervalAndDoubleStart(t *testing.T) {
	s := New(newFixturePort(t), testJar, "sepolia", nil)

	_, err := s.Start(0)
	assert.Error(t, err)

	sch, err := s.Start(time.Hour)
	require.NoError(t, err)
	defer sch.Stop()

	_, err = s.Start(time.Hour)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStop_DiscardsInFlightResult(t *testing.T) {
	port := newFixturePort(t)
	gate, entered := port.setGate()
	s := New(port, testJar, "sepolia", nil)

	var published atomic.Int32
	s.Subscribe(func(model.SyncSnapshot) { published.Add(1) })

	// a manual refresh whose context Stop cannot cancel
	manual := make(chan error, 1)
	go func() { manual <- s.Refresh(context.Background(), true) }()
	waitChan(t, entered)

	s.Stop()
	stopped := s.Snapshot()
	assert.False(t, stopped.IsRefreshing)

	close(gate)
	require.NoError(t, waitChan(t, manual))

	after := s.Snapshot()
	assert.False(t, after.HasData())
	assert.Equal(t, stopped, after)
	assert.Equal(t, int32(0), published.Load())

	assert.ErrorIs(t, s.Refresh(context.Background(), true), ErrStopped)
}

func TestStop_CancelsScheduleDuringInitialFetch(t *testing.T) {
	port := newFixturePort(t)
	_, entered := port.setGate()
	s := New(port, testJar, "sepolia", nil)

	sch, err := s.Start(time.Hour)
	require.NoError(t, err)
	waitChan(t, entered)

	sch.Stop()
	assert.ErrorIs(t, waitChan(t, sch.Initial()), ErrStopped)
	waitChan(t, sch.Done())
	assert.False(t, s.Snapshot().HasData())
}

func TestStart_AfterStopResumes(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, testJar, "sepolia", nil)

	sch, err := s.Start(time.Hour)
	require.NoError(t, err)
	require.NoError(t, waitChan(t, sch.Initial()))
	sch.Stop()

	sch, err = s.Start(time.Hour)
	require.NoError(t, err)
	defer sch.Stop()
	require.NoError(t, waitChan(t, sch.Initial()))
	assert.Equal(t, int32(2), port.historyCalls.Load())
}

func TestRetarget_SwapsJarAndRefreshes(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, common.Address{}, "sepolia", nil)

	var seen []model.SyncSnapshot
	var mu sync.Mutex
	s.Subscribe(func(snap model.SyncSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, snap)
	})

	require.NoError(t, s.Retarget(context.Background(), testOtherJar))
	assert.Equal(t, testOtherJar, s.Jar())
	assert.Equal(t, testOtherJar, port.lastTo)

	snap := s.Snapshot()
	assert.Equal(t, testOtherJar, snap.Jar)
	assert.True(t, snap.HasData())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.False(t, seen[0].HasData(), "empty snapshot for the new jar is published first")
	assert.True(t, seen[1].HasData())
}

func TestRetarget_AfterStopChangesNothing(t *testing.T) {
	port := newFixturePort(t)
	s := New(port, testJar, "sepolia", nil)

	var published atomic.Int32
	s.Subscribe(func(model.SyncSnapshot) { published.Add(1) })

	s.Stop()
	before := s.Snapshot()

	assert.ErrorIs(t, s.Retarget(context.Background(), testOtherJar), ErrStopped)
	assert.Equal(t, testJar, s.Jar())
	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, int32(0), published.Load())
	assert.Equal(t, int32(0), port.historyCalls.Load())
}

func TestNotify_DropsSnapshotOfEndedGeneration(t *testing.T) {
	s := New(newFixturePort(t), testJar, "sepolia", nil)

	var published atomic.Int32
	s.Subscribe(func(model.SyncSnapshot) { published.Add(1) })

	s.mu.Lock()
	gen := s.gen
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	// Stop lands between the swap and the delivery
	s.Stop()
	s.notify(gen, seq, &model.SyncSnapshot{Jar: testJar})
	assert.Equal(t, int32(0), published.Load())
}

func TestStop_WaitsForDeliveryInProgress(t *testing.T) {
	s := New(newFixturePort(t), testJar, "sepolia", nil)

	delivering := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.Subscribe(func(model.SyncSnapshot) {
		once.Do(func() { close(delivering) })
		<-release
	})

	refreshed := make(chan error, 1)
	go func() { refreshed <- s.Refresh(context.Background(), true) }()
	waitChan(t, delivering)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a listener was still receiving")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitChan(t, stopped)
	require.NoError(t, waitChan(t, refreshed))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := New(newFixturePort(t), testJar, "sepolia", nil)

	var calls atomic.Int32
	unsubscribe := s.Subscribe(func(model.SyncSnapshot) { calls.Add(1) })
	require.NoError(t, s.Refresh(context.Background(), true))
	unsubscribe()
	require.NoError(t, s.Refresh(context.Background(), true))

	assert.Equal(t, int32(1), calls.Load())
}
