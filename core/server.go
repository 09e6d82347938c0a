package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fede1024/kafka-view-sub000/core/config"
	"github.com/fede1024/kafka-view-sub000/core/handlers"
	"github.com/fede1024/kafka-view-sub000/core/kafka"
	"github.com/fede1024/kafka-view-sub000/core/live"
	"github.com/fede1024/kafka-view-sub000/core/logging"
	"github.com/fede1024/kafka-view-sub000/core/metrics"
	"github.com/fede1024/kafka-view-sub000/core/offsets"
	"github.com/fede1024/kafka-view-sub000/core/scheduler"
	"github.com/fede1024/kafka-view-sub000/core/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const jolokiaTimeout = 10 * time.Second

// StartServer wires every component, replays the caches and serves HTTP until
// SIGINT or SIGTERM. Configuration and replay errors are returned before any
// background work starts.
func StartServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("path", cfg.Path),
		zap.Int("clusters", len(cfg.Clusters)),
		zap.String("caching_cluster", string(cfg.Caching.Cluster)),
		zap.String("caching_topic", cfg.Caching.Topic))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cachingCluster, _ := cfg.Cluster(cfg.Caching.Cluster)
	replicationLog, err := store.NewKafkaReplicationLog(cachingCluster.BrokerList, cfg.Caching, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize replication log: %w", err)
	}

	cache := store.NewCache(replicationLog, logger)
	defer cache.Close()

	replay, err := cache.Replay(ctx)
	if err != nil {
		return err
	}

	clients := kafka.NewClientRegistry(cfg.Clusters, logger)
	defer clients.Close()

	metadataScheduler, err := newMetadataScheduler(cfg, cache, logger)
	if err != nil {
		return err
	}
	metricsScheduler := newMetricsScheduler(cfg, cache, logger)

	pool := live.NewPool(live.KgoFactory{ClientID: cfg.ConsumerOffsetsGroupID + "_live"}, live.DefaultIdleTimeout, logger)
	defer pool.Close()

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	metadataScheduler.Start(ctx)
	metricsScheduler.Start(ctx)

	for _, id := range cfg.ClusterIDs() {
		tailer, err := offsets.NewTailer(cfg.Clusters[id], cfg.ConsumerOffsetsGroupID, cache, cfg.Refresh.OffsetsFlush, logger)
		if err != nil {
			logger.Error("Failed to start offsets tailer", zap.String("cluster", string(id)), zap.Error(err))
			continue
		}
		run(func() { tailer.Run(ctx) })
	}
	run(func() { pool.Run(ctx, live.DefaultSweepInterval) })
	run(func() { cache.RunExpiry(ctx, cfg.Refresh.ExpirySweep, cfg.TTL) })

	handler := handlers.NewHandler(cfg, cache, clients, pool, replay, logger)
	routes := NewRoutes(handler)

	err = httpServerReliableStart(ctx, cfg.Server.Host, cfg.Server.Port, routes.Router, logger)

	stop()
	metadataScheduler.Stop()
	metricsScheduler.Stop()
	wg.Wait()
	logger.Info("Server exited")

	return err
}

func newMetadataScheduler(cfg *config.Config, cache *store.Cache, logger *zap.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New("metadata", cfg.Refresh.Metadata, logger)
	for _, id := range cfg.ClusterIDs() {
		admin, err := kafka.NewAdmin(cfg.Clusters[id].BrokerList, kafka.DefaultMetadataTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create admin client for %s: %w", id, err)
		}
		s.Add(string(id), kafka.NewMetadataFetcher(id, admin, cache, logger))
	}
	return s, nil
}

func newMetricsScheduler(cfg *config.Config, cache *store.Cache, logger *zap.Logger) *scheduler.Scheduler {
	s := scheduler.New("metrics", cfg.Refresh.Metrics, logger)
	fetcher := metrics.NewFetcher(cfg.Clusters, cache, metrics.NewJolokiaClient(jolokiaTimeout), logger)
	s.Add("jolokia", fetcher.Task(cfg.Refresh.MetricsWorkers))
	return s
}

func httpServerReliableStart(ctx context.Context, address, port string, router *mux.Router, logger *zap.Logger) error {
	addr := fmt.Sprintf("%s:%s", address, port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
