package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ND68/TipJar/internal/alert"
	"github.com/ND68/TipJar/internal/api"
	"github.com/ND68/TipJar/internal/chain/classify"
	"github.com/ND68/TipJar/internal/chain/evm"
	"github.com/ND68/TipJar/internal/chain/evm/rpc"
	"github.com/ND68/TipJar/internal/chain/ratelimit"
	"github.com/ND68/TipJar/internal/circuitbreaker"
	"github.com/ND68/TipJar/internal/config"
	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/metrics"
	"github.com/ND68/TipJar/internal/orchestrator"
	storeredis "github.com/ND68/TipJar/internal/store/redis"
	"github.com/ND68/TipJar/internal/synchronizer"
	"github.com/ND68/TipJar/internal/tracing"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// runtime is the wired core: one port shared by the orchestrator and the
// synchronizer.
type runtime struct {
	port *evm.Adapter
	orch *orchestrator.Orchestrator
	sync *synchronizer.Synchronizer
}

// syncTarget is what the orchestrator's state hints drive.
type syncTarget interface {
	Refresh(ctx context.Context, force bool) error
	Retarget(ctx context.Context, jar common.Address) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	jar, hasJar := cfg.Jar()
	network := cfg.NetworkName()
	logger.Info("starting tipjar",
		"rpc", cfg.Chain.RPCURL,
		"network", network,
		"chain_id", cfg.Chain.ChainID,
		"jar", jar.Hex(),
		"has_jar", hasJar,
		"factory", cfg.Factory().Hex(),
		"poll_interval", cfg.PollInterval(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		ServiceName: "tipjar",
		Network:     network.String(),
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	client := rpc.NewClient(cfg.Chain.RPCURL, network.String(), logger,
		rpc.WithRateLimiter(ratelimit.NewLimiter(cfg.RPC.RateLimitRPS, cfg.RPC.RateLimitBurst, network.String())),
	)

	if err := checkChainID(ctx, client, cfg.Chain.ChainID); err != nil {
		logger.Error("chain id preflight failed", "error", err)
		os.Exit(1)
	}

	rt := buildRuntime(cfg, client, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// Snapshot mirror
	if cfg.Redis.URL != "" {
		redisClient, err := storeredis.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		pub := storeredis.NewSnapshotPublisher(redisClient, cfg.Redis.KeyPrefix, network.String(), logger)
		unsubscribe := rt.sync.Subscribe(pub.Listener(gCtx))
		defer func() {
			unsubscribe()
			if err := pub.Close(); err != nil {
				logger.Warn("redis close error", "error", err)
			}
		}()
		logger.Info("redis snapshot publisher enabled", "channel", pub.Channel())
	}

	// Alerting
	if alerter := buildAlerter(cfg, logger); alerter != nil {
		watcher := alert.NewWatcher(alerter, network.String(), logger)
		unwatchSnap := rt.sync.Subscribe(watcher.SnapshotListener(gCtx))
		defer unwatchSnap()
		unwatchAct := rt.orch.Subscribe(watcher.ActionListener(gCtx))
		defer unwatchAct()
		g.Go(func() error {
			watcher.WatchHealth(gCtx, rt.sync.Health(), cfg.AlertHealthInterval())
			return nil
		})
		logger.Info("alerting enabled", "channels", alerter.Len(), "cooldown", cfg.AlertCooldown())
	}

	// Orchestrator outcomes drive the synchronizer
	unhint := rt.orch.Subscribe(txHintListener(gCtx, rt.sync, logger))
	defer unhint()

	srv := api.NewServer(rt.orch, rt.sync, network, logger)
	limiter := api.NewRateLimiter(logger)
	defer limiter.Stop()
	handler := limiter.Wrap(api.AuditMiddleware(logger, srv.Handler()))

	g.Go(func() error {
		return runHTTPServer(gCtx, cfg.Server.Port, handler, logger)
	})

	g.Go(func() error {
		srv.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		return runSynchronizer(gCtx, rt.sync, cfg.PollInterval(), logger)
	})

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tipjar exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("tipjar shut down gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildRuntime(cfg *config.Config, client rpc.RPCClient, logger *slog.Logger) *runtime {
	network := cfg.NetworkName().String()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.RPC.BreakerFailureThreshold,
		OpenTimeout:      time.Duration(cfg.RPC.BreakerOpenTimeoutSec) * time.Second,
		Trips: func(err error) bool {
			return classify.Classify(err).IsTransient()
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			metrics.RPCCircuitBreakerState.WithLabelValues(network).Set(float64(to))
			logger.Warn("rpc circuit breaker state change", "network", network, "from", from.String(), "to", to.String())
		},
	})

	port := evm.NewAdapter(client, logger,
		evm.WithBreaker(breaker),
		evm.WithReceiptPollInterval(cfg.ReceiptPollInterval()),
	)

	jar, _ := cfg.Jar()
	orch := orchestrator.New(port, network, logger,
		orchestrator.WithTarget(jar),
		orchestrator.WithFactory(cfg.Factory()),
		orchestrator.WithOwnerCacheTTL(cfg.OwnerCacheTTL()),
	)
	sync := synchronizer.New(port, jar, network, logger)

	return &runtime{port: port, orch: orch, sync: sync}
}

// buildAlerter returns nil when no alert channel is configured.
func buildAlerter(cfg *config.Config, logger *slog.Logger) *alert.MultiAlerter {
	var alerters []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		alerters = append(alerters, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(alerters) == 0 {
		return nil
	}
	return alert.NewMultiAlerter(cfg.AlertCooldown(), logger, alerters...)
}

func checkChainID(ctx context.Context, client rpc.RPCClient, want int64) error {
	if want == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	got, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if got != want {
		return fmt.Errorf("rpc endpoint serves chain %d, configured %d", got, want)
	}
	return nil
}

// txHintListener refreshes the feed after a confirmed write and follows a
// freshly deployed jar. The work runs off the action goroutine.
func txHintListener(ctx context.Context, target syncTarget, logger *slog.Logger) orchestrator.Listener {
	return func(st model.TxState) {
		switch st.Phase {
		case model.TxPhaseConfirmed:
			go func() {
				if err := target.Refresh(ctx, true); err != nil {
					logger.Warn("post-confirmation refresh failed", "action_id", st.ActionID, "error", err)
				}
			}()
		case model.TxPhaseDeployed:
			jar := st.Address
			go func() {
				if err := target.Retarget(ctx, jar); err != nil {
					logger.Warn("retarget to deployed jar failed", "jar", jar.Hex(), "error", err)
				}
			}()
		}
	}
}

func runSynchronizer(ctx context.Context, s *synchronizer.Synchronizer, interval time.Duration, logger *slog.Logger) error {
	sch, err := s.Start(interval)
	if err != nil {
		return fmt.Errorf("start synchronizer: %w", err)
	}
	defer s.Stop()

	select {
	case err := <-sch.Initial():
		switch {
		case err == nil:
			logger.Info("initial snapshot loaded", "tips", len(s.Snapshot().Tips))
		case errors.Is(err, synchronizer.ErrNoData):
			logger.Warn("no data available yet, polling continues", "error", err)
		default:
			logger.Warn("initial refresh ended", "error", err)
		}
	case <-ctx.Done():
		return nil
	}

	select {
	case <-ctx.Done():
	case <-sch.Done():
	}
	return nil
}

func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("http server shutdown error", "error", err)
		}
	}()

	logger.Info("http server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
