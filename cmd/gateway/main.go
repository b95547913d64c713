package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/redirectgate/internal/awsauth"
	"github.com/ignite/redirectgate/internal/blacklist"
	"github.com/ignite/redirectgate/internal/classify"
	"github.com/ignite/redirectgate/internal/config"
	"github.com/ignite/redirectgate/internal/decision"
	"github.com/ignite/redirectgate/internal/gateway"
	"github.com/ignite/redirectgate/internal/hotcache"
	"github.com/ignite/redirectgate/internal/ipintel"
	"github.com/ignite/redirectgate/internal/pkg/distlock"
	"github.com/ignite/redirectgate/internal/pkg/logger"
	"github.com/ignite/redirectgate/internal/repository/postgres"
	redirectsvc "github.com/ignite/redirectgate/internal/service/redirect"
	"github.com/ignite/redirectgate/internal/writebehind"
)

// checkPortAvailable verifies that the target port is not already in
// use, the same pre-flight check the reference service runs before
// binding its listener.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	logger.Info("starting redirect gateway")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		logger.Error("pre-flight port check failed", "error", err.Error())
		os.Exit(1)
	}

	dsn := cfg.Store.DatabaseURL
	if cfg.Store.UseIAMAuth {
		tokenCtx, tokenCancel := context.WithTimeout(context.Background(), 5*time.Second)
		token, err := awsauth.ResolveToken(tokenCtx, cfg.Store.AWSRegion, cfg.Store.GetAWSProfile())
		tokenCancel()
		if err != nil {
			logger.Error("failed to resolve iam database token", "error", err.Error())
			os.Exit(1)
		}
		dsn, err = awsauth.WithToken(dsn, token)
		if err != nil {
			logger.Error("failed to apply iam database token", "error", err.Error())
			os.Exit(1)
		}
		logger.Info("resolved iam database credentials", "region", cfg.Store.AWSRegion)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("failed to open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Store.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Store.ConnLifetime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		logger.Error("database ping failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rCtx, rCancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(rCtx).Err()
		rCancel()
		if err != nil {
			logger.Warn("redis connection failed, falling back to postgres advisory locks", "error", err.Error())
			redisClient.Close()
			redisClient = nil
		} else {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
	}

	// Blacklist: in-memory structure seeded from its local snapshot file
	// and from the shared ip_ranges table, so a freshly started replica
	// inherits convictions learned by every other replica.
	bl := blacklist.New()
	blRepo := postgres.NewBlacklistRepo(db)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if rows, err := blRepo.LoadAll(loadCtx); err != nil {
		logger.Warn("failed to load cidr ranges from postgres", "error", err.Error())
	} else {
		bl.Import(rows)
		logger.Info("cidr blacklist loaded from postgres", "ranges", len(rows))
	}
	loadCancel()

	blStore := blacklist.NewStore(bl, cfg.Blacklist.SnapshotPath, cfg.Blacklist.DebounceInterval(), cfg.Blacklist.HitCounterModulus)
	if err := blStore.Load(); err != nil {
		logger.Warn("failed to load cidr blacklist snapshot", "path", cfg.Blacklist.SnapshotPath, "error", err.Error())
	}

	// Write-behind leader election: only the replica holding this lock
	// performs the debounced snapshot write, so a horizontally scaled
	// deployment doesn't thrash the shared file. Every replica still
	// classifies and serves redirects regardless of leadership.
	var isLeader atomic.Bool
	leaderLock := distlock.NewLock(redisClient, db, "blacklist-snapshot-leader", 30*time.Second)
	startLeaderElection(leaderLock, &isLeader)
	blStore.SetLeaderCheck(isLeader.Load)

	// IP intelligence.
	intelCache := ipintel.NewCache()
	intelClient := ipintel.New(cfg.IP2Location.BaseURL, cfg.IP2Location.APIKey, cfg.IP2Location.Timeout(), cfg.IP2Location.MaxRetries)

	ipCacheRepo := postgres.NewIPCacheRepo(db)
	cacheLoadCtx, cacheLoadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if rows, err := ipCacheRepo.LoadAll(cacheLoadCtx); err != nil {
		logger.Warn("failed to load ip cache from postgres", "error", err.Error())
	} else {
		intelCache.Import(rows)
		logger.Info("ip cache loaded from postgres", "entries", len(rows))
	}
	cacheLoadCancel()

	classifier := classify.New(classify.Signatures{
		Headless:     cfg.Signatures.Headless,
		GenericBot:   cfg.Signatures.GenericBot,
		SocialPreview: cfg.Signatures.SocialPreview,
		SearchEngine: cfg.Signatures.SearchEngine,
		KnownBrowser: cfg.Signatures.KnownBrowser,
		OS:           cfg.Signatures.OS,
		Device:       cfg.Signatures.Device,
	})

	// Write-behind logging. Constructed before the decision engine so
	// the engine can enqueue CIDR range and IP cache convictions
	// through it, durably, alongside visitor logs and events.
	wbRepo := postgres.NewWriteBehindRepo(db)
	wbLogger := writebehind.New(wbRepo, writebehind.Config{
		QueueCapacity:  cfg.WriteBehind.QueueCapacity,
		BatchSize:      cfg.WriteBehind.BatchSize,
		FlushInterval:  cfg.WriteBehind.FlushInterval(),
		MaxRequeueRows: cfg.WriteBehind.MaxRequeueRows,
	})
	wbCtx, wbCancel := context.WithCancel(context.Background())
	wbLogger.Start(wbCtx)

	engine := decision.New(bl, blStore, classifier, intelCache, intelClient, wbLogger, cfg.IP2Location.Timeout())

	// Redirect lookup.
	redirectRepo := postgres.NewRedirectRepo(db)
	hot := hotcache.New(cfg.RedirectCache.TTL())
	redirectService := redirectsvc.NewService(redirectRepo, hot)

	sweeperStop := make(chan struct{})
	hot.StartSweeper(cfg.RedirectCache.SweepInterval(), sweeperStop)

	handler := gateway.New(redirectService, engine, wbLogger, os.Getenv("FALLBACK_URL"), cfg.Dispatch.CrawlerBlockList)
	health := gateway.NewHealthChecker(db, redisClient)
	router := gateway.NewRouter(handler, health)

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	logger.Info("gateway ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down gateway")

	close(sweeperStop)
	wbLogger.Stop()
	wbCancel()
	blStore.FlushNow()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("gateway stopped")
}

// startLeaderElection launches a background goroutine that repeatedly
// attempts to acquire leaderLock, refreshing isLeader with the result.
// Losing the lock (e.g. a network partition) demotes this replica on
// the next tick rather than immediately, since the lock's own TTL is
// the authoritative expiry.
func startLeaderElection(lock distlock.DistLock, isLeader *atomic.Bool) {
	attempt := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		ok, err := lock.Acquire(ctx)
		if err != nil {
			logger.Warn("leader election attempt failed", "error", err.Error())
			isLeader.Store(false)
			return
		}
		isLeader.Store(ok)
	}

	attempt()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			attempt()
		}
	}()
}
