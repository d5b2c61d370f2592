package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/doron007/realtechee-notify/internal/api"
	"github.com/doron007/realtechee-notify/internal/config"
	"github.com/doron007/realtechee-notify/internal/directory"
	"github.com/doron007/realtechee-notify/internal/events"
	"github.com/doron007/realtechee-notify/internal/hooks"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
	"github.com/doron007/realtechee-notify/internal/queue"
	"github.com/doron007/realtechee-notify/internal/repository/postgres"
	"github.com/doron007/realtechee-notify/internal/reputation"
	"github.com/doron007/realtechee-notify/internal/secrets"
	"github.com/doron007/realtechee-notify/internal/suppression"
	"github.com/doron007/realtechee-notify/internal/template"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	logger.Info("starting notification API server")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("loading configuration failed", "path", configPath, "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("opening database failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		logger.Error("database ping failed", "error", err.Error())
		os.Exit(1)
	}

	// The API resolves only the directory key; channel provider credentials
	// stay with the worker.
	dirKey, _ := secrets.EnvSource{}.Get(cfg.Directory.APIKeyEnv)

	queueRepo := postgres.NewQueueRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	suppRepo := postgres.NewSuppressionRepo(db)
	hookRepo := postgres.NewHookRepo(db)
	signalRepo := postgres.NewSignalRepo(db)
	templateRepo := postgres.NewTemplateRepo(db)
	metricsRepo := postgres.NewReputationRepo(db)

	queueSvc := queue.NewService(queueRepo, queue.Options{
		MaxRetries:   cfg.Dispatch.MaxRetries,
		BackoffBase:  cfg.Dispatch.BackoffBase(),
		BackoffCap:   cfg.Dispatch.BackoffCap(),
		ClaimTimeout: cfg.Dispatch.ClaimTimeout(),
	})
	suppSvc := suppression.NewService(suppRepo)
	eventSvc := events.NewService(eventRepo, suppSvc)
	renderer := template.NewRenderer(cfg.SMS.MaxSegmentChars)
	templates := template.NewStore(templateRepo, renderer)

	var resolver directory.Resolver
	if cfg.Directory.BaseURL != "" {
		resolver = directory.NewClient(cfg.Directory.BaseURL, dirKey,
			cfg.Directory.Timeout(), time.Duration(cfg.Directory.CacheSeconds)*time.Second)
	}
	matcher := hooks.NewMatcher(hookRepo, signalRepo, queueSvc, resolver)

	// The API's monitor instance serves reads only; the worker owns the
	// collection loop, alerting, and quota checks.
	monitor := reputation.NewMonitor(metricsRepo, eventRepo, nil, nil, nil, reputation.Thresholds{
		BounceRate:    cfg.Reputation.BounceRateThreshold,
		ComplaintRate: cfg.Reputation.ComplaintRateThreshold,
	})

	server := api.NewServer(matcher, hookRepo, queueSvc, templates, suppSvc, eventSvc, monitor)

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		logger.Error("port check failed", "error", err.Error())
		os.Exit(1)
	}
	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server exited", "error", err.Error())
		os.Exit(1)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}
	logger.Info("server stopped")
}
