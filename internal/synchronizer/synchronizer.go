package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ND68/TipJar/internal/chain"
	"github.com/ND68/TipJar/internal/chain/classify"
	"github.com/ND68/TipJar/internal/contract"
	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/metrics"
	"github.com/ND68/TipJar/internal/tracing"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrReadFailed wraps any failure of a refresh's contract reads.
	ErrReadFailed = errors.New("read failed")
	// ErrNoData is reported by a schedule whose first refresh failed while
	// no snapshot existed yet.
	ErrNoData = errors.New("no data available yet")
	// ErrNoJar is returned when there is no jar to read from.
	ErrNoJar = errors.New("no jar to synchronize")
	// ErrStopped is returned by Refresh after Stop until the next Start.
	ErrStopped = errors.New("synchronizer stopped")
	// ErrAlreadyStarted is returned by Start while a schedule is running.
	ErrAlreadyStarted = errors.New("synchronizer already started")
)

// SnapshotListener receives a copy of every newly published snapshot.
type SnapshotListener func(model.SyncSnapshot)

// Synchronizer keeps a local copy of a jar's tip history and contributor
// totals. At most one fetch runs at a time and each published snapshot is
// replaced wholesale.
type Synchronizer struct {
	port    chain.AccessPort
	network string
	health  *Health
	logger  *slog.Logger
	nowFn   func() time.Time

	mu       sync.Mutex
	jar      common.Address
	snapshot *model.SyncSnapshot
	inflight chan struct{} // closed when the running fetch returns
	gen      uint64        // bumped by Stop and Retarget; stale fetches are dropped
	seq      uint64
	stopped  bool
	schedule *Schedule

	notifyMu     sync.Mutex
	notifiedSeq  uint64
	listeners    []listenerEntry
	nextListener int
}

type listenerEntry struct {
	id int
	fn SnapshotListener
}

func New(port chain.AccessPort, jar common.Address, network string, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		port:     port,
		network:  network,
		health:   NewHealth(network),
		logger:   logger.With("component", "synchronizer"),
		nowFn:    time.Now,
		jar:      jar,
		snapshot: &model.SyncSnapshot{Jar: jar},
	}
}

// Snapshot returns a copy of the latest published snapshot.
func (s *Synchronizer) Snapshot() model.SyncSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Health returns the tracker fed by every refresh.
func (s *Synchronizer) Health() *Health {
	return s.health
}

// Jar returns the jar currently synchronized.
func (s *Synchronizer) Jar() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar
}

// Subscribe registers l for every new snapshot. The returned func removes it.
func (s *Synchronizer) Subscribe(l SnapshotListener) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: l})
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Refresh fetches tip history and contributors and publishes a new snapshot.
// A non-forced call while a fetch is running returns immediately. A forced
// call waits for the running fetch and then runs its own. On failure the
// previous snapshot stays in place and the error wraps ErrReadFailed.
func (s *Synchronizer) Refresh(ctx context.Context, force bool) error {
	done, gen, jar, err := s.acquire(ctx, force)
	if err != nil || done == nil {
		return err
	}

	start := time.Now()
	tips, contributors, fetchErr := s.fetch(ctx, jar)
	latency := time.Since(start)

	s.mu.Lock()
	s.inflight = nil
	close(done)

	if gen != s.gen {
		s.mu.Unlock()
		metrics.SyncRefreshesTotal.WithLabelValues(s.network, "discarded").Inc()
		s.logger.Debug("discarding stale refresh result", "jar", jar.Hex())
		return nil
	}

	if fetchErr != nil {
		if s.snapshot.IsRefreshing {
			next := *s.snapshot
			next.IsRefreshing = false
			s.snapshot = &next
		}
		s.mu.Unlock()

		metrics.SyncRefreshesTotal.WithLabelValues(s.network, "error").Inc()
		decision := classify.Classify(fetchErr)
		if s.health.RecordFailure(fetchErr) {
			s.logger.Error("synchronizer unhealthy", "jar", jar.Hex(), "error", fetchErr)
		} else {
			s.logger.Warn("refresh failed, keeping previous snapshot",
				"jar", jar.Hex(), "error", fetchErr, "transient", decision.IsTransient(), "class_reason", decision.Reason)
		}
		return fmt.Errorf("%w: %w", ErrReadFailed, fetchErr)
	}

	s.seq++
	seq := s.seq
	published := &model.SyncSnapshot{
		Jar:             jar,
		Tips:            tips,
		Contributors:    contributors,
		LastRefreshedAt: s.nowFn(),
	}
	s.snapshot = published
	s.mu.Unlock()

	metrics.SyncRefreshesTotal.WithLabelValues(s.network, "ok").Inc()
	metrics.SyncRefreshLatency.WithLabelValues(s.network).Observe(latency.Seconds())
	metrics.SyncTipRecords.WithLabelValues(s.network).Set(float64(len(tips)))
	metrics.SyncContributorRecords.WithLabelValues(s.network).Set(float64(len(contributors)))
	metrics.SyncLastSuccessTimestamp.WithLabelValues(s.network).Set(float64(published.LastRefreshedAt.Unix()))
	if s.health.RecordSuccess(latency) {
		s.logger.Info("synchronizer recovered", "jar", jar.Hex())
	}

	s.notify(gen, seq, published)
	return nil
}

// acquire claims the fetch slot. A nil channel with a nil error means the
// call was coalesced into a running fetch.
func (s *Synchronizer) acquire(ctx context.Context, force bool) (chan struct{}, uint64, common.Address, error) {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil, 0, common.Address{}, ErrStopped
		}
		if s.jar == (common.Address{}) {
			s.mu.Unlock()
			return nil, 0, common.Address{}, ErrNoJar
		}
		if s.inflight == nil {
			done := make(chan struct{})
			s.inflight = done
			if !s.snapshot.IsRefreshing {
				next := *s.snapshot
				next.IsRefreshing = true
				s.snapshot = &next
			}
			gen, jar := s.gen, s.jar
			s.mu.Unlock()
			return done, gen, jar, nil
		}

		running := s.inflight
		s.mu.Unlock()
		if !force {
			metrics.SyncCoalescedTotal.WithLabelValues(s.network).Inc()
			return nil, 0, common.Address{}, nil
		}
		select {
		case <-running:
		case <-ctx.Done():
			return nil, 0, common.Address{}, ctx.Err()
		}
	}
}

func (s *Synchronizer) fetch(ctx context.Context, jar common.Address) ([]model.TipRecord, []model.ContributorRecord, error) {
	ctx, span := tracing.Tracer("synchronizer").Start(ctx, "synchronizer.fetch",
		otelTrace.WithAttributes(
			attribute.String("network", s.network),
			attribute.String("jar", jar.Hex()),
		),
	)
	defer span.End()

	var (
		tips         []model.TipRecord
		contributors []model.ContributorRecord
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := contract.PackGetTipHistory()
		if err != nil {
			return err
		}
		out, err := s.port.Call(gCtx, jar, data)
		if err != nil {
			return fmt.Errorf("%s: %w", contract.MethodGetTipHistory, err)
		}
		history, err := contract.UnpackTipHistory(out)
		if err != nil {
			return err
		}
		tips, err = DecodeTips(history)
		return err
	})
	g.Go(func() error {
		data, err := contract.PackGetContributors()
		if err != nil {
			return err
		}
		out, err := s.port.Call(gCtx, jar, data)
		if err != nil {
			return fmt.Errorf("%s: %w", contract.MethodGetContributors, err)
		}
		raw, err := contract.UnpackContributors(out)
		if err != nil {
			return err
		}
		contributors, err = DecodeContributors(raw)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	span.SetAttributes(
		attribute.Int("tips", len(tips)),
		attribute.Int("contributors", len(contributors)),
	)
	return tips, contributors, nil
}

// Retarget points the synchronizer at jar, drops any snapshot of the previous
// jar and forces a refresh. After Stop it changes nothing and returns ErrStopped.
func (s *Synchronizer) Retarget(ctx context.Context, jar common.Address) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if jar == s.jar {
		s.mu.Unlock()
		return s.Refresh(ctx, true)
	}
	s.jar = jar
	s.gen++
	gen := s.gen
	s.seq++
	seq := s.seq
	empty := &model.SyncSnapshot{Jar: jar}
	s.snapshot = empty
	s.mu.Unlock()

	s.logger.Info("synchronizer retargeted", "jar", jar.Hex())
	s.notify(gen, seq, empty)
	return s.Refresh(ctx, true)
}

// Start runs an immediate forced refresh and then a non-forced refresh every
// interval until the returned schedule (or the synchronizer) is stopped.
func (s *Synchronizer) Start(interval time.Duration) (*Schedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	s.mu.Lock()
	if s.schedule != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	sch := &Schedule{
		s:        s,
		interval: interval,
		cancel:   cancel,
		initial:  make(chan error, 1),
		done:     make(chan struct{}),
	}
	s.schedule = sch
	s.stopped = false
	s.mu.Unlock()
	s.health.expectEvery(interval)

	s.logger.Info("synchronizer started", "interval", interval, "jar", s.Jar().Hex())
	go sch.run(ctx)
	return sch, nil
}

// Stop cancels the schedule. Once Stop returns no snapshot change is
// observable; a fetch still running has its result discarded.
func (s *Synchronizer) Stop() {
	// notifyMu first: a delivery in progress finishes before the gen moves,
	// and every later one sees the new gen.
	s.notifyMu.Lock()
	s.mu.Lock()
	sch := s.schedule
	s.schedule = nil
	s.stopped = true
	s.gen++
	if s.snapshot.IsRefreshing {
		next := *s.snapshot
		next.IsRefreshing = false
		s.snapshot = &next
	}
	s.mu.Unlock()
	s.notifyMu.Unlock()

	if sch != nil {
		sch.cancel()
		s.logger.Info("synchronizer stopped")
	}
}

func (s *Synchronizer) hasData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.HasData()
}

// notify delivers snap unless a newer snapshot went out already or the
// generation it was published under has ended. Listeners must not call Stop.
func (s *Synchronizer) notify(gen, seq uint64, snap *model.SyncSnapshot) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	current := s.gen
	s.mu.Unlock()
	if gen != current || seq <= s.notifiedSeq {
		return
	}
	s.notifiedSeq = seq
	for _, e := range s.listeners {
		e.fn(snap.Clone())
	}
}
