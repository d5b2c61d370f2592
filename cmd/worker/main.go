package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/doron007/realtechee-notify/internal/alerts"
	"github.com/doron007/realtechee-notify/internal/archive"
	"github.com/doron007/realtechee-notify/internal/config"
	"github.com/doron007/realtechee-notify/internal/delivery"
	"github.com/doron007/realtechee-notify/internal/directory"
	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/events"
	"github.com/doron007/realtechee-notify/internal/hooks"
	"github.com/doron007/realtechee-notify/internal/pkg/distlock"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
	"github.com/doron007/realtechee-notify/internal/queue"
	"github.com/doron007/realtechee-notify/internal/repository/postgres"
	"github.com/doron007/realtechee-notify/internal/reputation"
	"github.com/doron007/realtechee-notify/internal/secrets"
	"github.com/doron007/realtechee-notify/internal/suppression"
	"github.com/doron007/realtechee-notify/internal/template"
)

func main() {
	logger.Info("starting notification worker")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("loading configuration failed", "path", configPath, "error", err.Error())
		os.Exit(1)
	}

	// Credentials resolve once at start. A missing required secret aborts the
	// process before any queue item is touched, so nothing gets marked failed
	// over a deploy mistake.
	creds, err := secrets.Resolve(secrets.EnvSource{}, secrets.Names{
		SESAccessKey:    cfg.SES.AccessKeyEnv,
		SESSecretKey:    cfg.SES.SecretKeyEnv,
		SMSAPIKey:       smsKeyName(cfg),
		DirectoryAPIKey: cfg.Directory.APIKeyEnv,
	})
	if err != nil {
		logger.Error("resolving provider credentials failed", "error", err.Error())
		// No AWS credentials yet, so this alert can only go to the log sink.
		alerts.NewPublisher(nil, "").Publish(context.Background(), alerts.Alert{
			Severity: alerts.SeverityCritical,
			Kind:     alerts.KindCredentials,
			Message:  "worker cannot resolve provider credentials, queue items stay PENDING",
		})
		os.Exit(1)
	}
	logger.Info("provider credentials resolved",
		"ses_access_key", secrets.Mask(creds.SESAccessKey),
		"sms_api_key", secrets.Mask(creds.SMSAPIKey))

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories and services.
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
		resolver = directory.NewClient(cfg.Directory.BaseURL, creds.DirectoryAPIKey,
			cfg.Directory.Timeout(), time.Duration(cfg.Directory.CacheSeconds)*time.Second)
	}
	matcher := hooks.NewMatcher(hookRepo, signalRepo, queueSvc, resolver)

	// Channel senders. One AWS config serves SES sends, quota checks, alert
	// publishing, and the archiver.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.SES.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.SESAccessKey, creds.SESSecretKey, "")),
	)
	if err != nil {
		logger.Error("loading AWS config failed", "error", err.Error())
		os.Exit(1)
	}
	sesClient := sesv2.NewFromConfig(awsCfg)

	senders := map[domain.Channel]delivery.Sender{
		domain.ChannelEmail: delivery.NewSESSenderWithClient(sesClient, cfg.SES.FromEmail, cfg.SES.FromName),
	}
	if cfg.SMS.Enabled {
		senders[domain.ChannelSMS] = delivery.NewSMSSender(cfg.SMS, creds.SMSAPIKey)
	}

	dispatcher := delivery.NewDispatcher(senders, templates, renderer, suppSvc, eventSvc, queueSvc,
		cfg.Dispatch.SendTimeout(), cfg.Archive.Retention())

	var alerter *alerts.Publisher
	if cfg.Reputation.AlertQueueURL != "" {
		alerter = alerts.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.Reputation.AlertQueueURL)
	} else {
		alerter = alerts.NewPublisher(nil, "")
	}
	monitor := reputation.NewMonitor(metricsRepo, eventRepo, sesClient, alerter,
		providerNames(senders), reputation.Thresholds{
			BounceRate:    cfg.Reputation.BounceRateThreshold,
			ComplaintRate: cfg.Reputation.ComplaintRateThreshold,
		})
	go monitor.Run(ctx, cfg.Reputation.Interval())

	if cfg.Archive.Enabled {
		archiver := archive.NewArchiver(s3.NewFromConfig(awsCfg), eventRepo,
			cfg.Archive.S3Bucket, cfg.Archive.S3Prefix)
		go runArchiver(ctx, archiver)
	}

	// Redis sweep lock. Optional: without it every instance sweeps, which is
	// wasteful but safe (the claim query is the correctness boundary).
	var sweepLock *distlock.Lock
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		sweepLock = distlock.New(rdb, "notify:sweep", cfg.Dispatch.SweepInterval())
	}

	logger.Info("worker ready",
		"sweep_interval", cfg.Dispatch.SweepInterval().String(),
		"batch_size", cfg.Dispatch.BatchSize,
		"channels", len(senders))

	sw := &sweeper{
		cfg:        cfg,
		queue:      queueSvc,
		dispatcher: dispatcher,
		matcher:    matcher,
		lock:       sweepLock,
		alerter:    alerter,
	}
	sw.run(ctx)
	logger.Info("worker stopped")
}

// sweeper is the worker's main loop: release due retries, reap stale claims,
// claim a batch, dispatch it, then pick up any signals a crashed ingest left
// unprocessed.
type sweeper struct {
	cfg        *config.Config
	queue      *queue.Service
	dispatcher *delivery.Dispatcher
	matcher    *hooks.Matcher
	lock       *distlock.Lock
	alerter    *alerts.Publisher

	lastDeadLetters int
}

func (s *sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Dispatch.SweepInterval())
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			logger.Warn("sweep lock unavailable, proceeding unlocked", "error", err.Error())
		} else if !ok {
			return
		} else {
			defer s.lock.Release(ctx)
		}
	}

	if err := s.queue.Maintain(ctx); err != nil {
		logger.Error("queue maintenance failed", "error", err.Error())
	}

	items, err := s.queue.Claim(ctx, s.cfg.Dispatch.BatchSize)
	if err != nil {
		logger.Error("claiming queue batch failed", "error", err.Error())
		return
	}
	if len(items) > 0 {
		logger.Info("dispatching claimed batch", "count", len(items))
		if err := s.dispatcher.DispatchBatch(ctx, items); err != nil {
			logger.Error("batch dispatch interrupted", "error", err.Error())
			return
		}
	}

	if n, err := s.matcher.SweepUnprocessed(ctx, s.cfg.Dispatch.BatchSize); err != nil {
		logger.Error("unprocessed signal sweep failed", "error", err.Error())
	} else if n > 0 {
		logger.Info("recovered unprocessed signals", "notifications_enqueued", n)
	}

	s.watchDeadLetters(ctx)
}

// watchDeadLetters raises an operator alert when the dead-letter count grew
// since the previous sweep. Growth, not presence: a standing backlog only
// alerts once until it grows again.
func (s *sweeper) watchDeadLetters(ctx context.Context) {
	depth, err := s.queue.Depth(ctx)
	if err != nil {
		logger.Error("queue depth check failed", "error", err.Error())
		return
	}
	dead := depth[domain.StatusDeadLetter]
	if dead > s.lastDeadLetters {
		s.alerter.Publish(ctx, alerts.Alert{
			Severity: alerts.SeverityCritical,
			Kind:     alerts.KindDeadLetter,
			Message:  fmt.Sprintf("%d notifications in the dead-letter queue (%d new)", dead, dead-s.lastDeadLetters),
			Metrics:  map[string]string{"dead_letter_total": fmt.Sprintf("%d", dead)},
		})
	}
	s.lastDeadLetters = dead
}

// runArchiver drains expired event rows once a day.
func runArchiver(ctx context.Context, archiver *archive.Archiver) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if n, err := archiver.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("archive run failed", "error", err.Error())
		} else if n > 0 {
			logger.Info("archive run complete", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func smsKeyName(cfg *config.Config) string {
	if !cfg.SMS.Enabled {
		return ""
	}
	return cfg.SMS.APIKeyEnv
}

func providerNames(senders map[domain.Channel]delivery.Sender) []string {
	var out []string
	for _, s := range senders {
		out = append(out, s.Provider())
	}
	return out
}
