package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PawDesk/app/controllers"
	"github.com/ManuelReschke/PawDesk/app/repository"
	"github.com/ManuelReschke/PawDesk/internal/pkg/billing"
	"github.com/ManuelReschke/PawDesk/internal/pkg/billing/stripeprovider"
	"github.com/ManuelReschke/PawDesk/internal/pkg/cache"
	"github.com/ManuelReschke/PawDesk/internal/pkg/database"
	"github.com/ManuelReschke/PawDesk/internal/pkg/env"
	"github.com/ManuelReschke/PawDesk/internal/pkg/eventarchive"
	"github.com/ManuelReschke/PawDesk/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PawDesk/internal/pkg/mail"
)

// Runtime holds the wired billing service.
type Runtime struct {
	Config   billing.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Repos    *repository.Repositories
	Engine   *billing.Engine
	Queue    *jobqueue.Queue
	Manager  *jobqueue.Manager
	Retries  *jobqueue.InvoiceRetryScheduler
	Billing  *controllers.BillingController
	APIKey   string
	// LimiterStorage backs the API rate limiter; nil means in-memory.
	LimiterStorage fiber.Storage
	closeFns       []func()
}

// Options are the already-connected dependencies Wire builds on.
type Options struct {
	Config         billing.Config
	DB             *gorm.DB
	Redis          *redis.Client
	Provider       billing.PaymentProviderClient
	Mailer         jobqueue.Mailer
	Archive        jobqueue.EventArchive
	Workers        int
	RetryWindow    time.Duration
	ReplayInterval time.Duration
	WebhookSecret  string
	APIKey         string
	RequestTimeout time.Duration
}

// NewRuntime connects database, cache, provider and archive from the
// environment and wires them.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg := billing.ConfigFromEnv()

	db, err := database.SetupDatabase()
	if err != nil {
		return nil, err
	}
	provider, err := stripeprovider.NewFromEnv()
	if err != nil {
		return nil, err
	}

	var archive jobqueue.EventArchive
	archiveCfg, err := eventarchive.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("event archive config: %w", err)
	}
	if archiveCfg.IsEnabled() {
		client, err := eventarchive.NewClient(ctx, archiveCfg)
		if err != nil {
			return nil, fmt.Errorf("event archive: %w", err)
		}
		archive = client
	} else {
		log.Info("[Bootstrap] Event archive disabled")
	}

	rt := Wire(Options{
		Config:         cfg,
		DB:             db,
		Redis:          cache.SetupCache(),
		Provider:       provider,
		Mailer:         mail.NewSMTPMailer(mail.ConfigFromEnv()),
		Archive:        archive,
		Workers:        env.GetEnvInt("JOB_QUEUE_WORKERS", 3),
		RetryWindow:    env.GetEnvDuration("BILLING_INVOICE_RETRY_WINDOW", jobqueue.DefaultInvoiceRetryWindow),
		ReplayInterval: env.GetEnvDuration("BILLING_REPLAY_INTERVAL", 5*time.Minute),
		WebhookSecret:  env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		APIKey:         env.GetEnv("BILLING_API_KEY", ""),
		RequestTimeout: env.GetEnvDuration("BILLING_REQUEST_TIMEOUT", 15*time.Second),
	})
	if storage, err := cache.NewLimiterStorage(); err != nil {
		log.Warnf("[Bootstrap] Rate limiter falls back to memory: %v", err)
	} else {
		rt.LimiterStorage = storage
		rt.closeFns = append(rt.closeFns, func() { _ = storage.Close() })
	}
	rt.closeFns = append(rt.closeFns, func() {
		if err := cache.Close(); err != nil {
			log.Warnf("[Bootstrap] Closing cache: %v", err)
		}
	}, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return rt, nil
}

// Wire builds stores, queue, engine and controllers on top of opts.
// Optional ports stay nil when their dependency is missing.
func Wire(opts Options) *Runtime {
	cfg := opts.Config
	repos := repository.NewFactory(opts.DB, cfg.Provider).GetRepositories()
	queue := jobqueue.NewQueue(opts.Redis, opts.Workers)
	retries := jobqueue.NewInvoiceRetryScheduler(queue, opts.RetryWindow)

	deps := billing.Deps{
		Events:         repos.Events,
		Subscriptions:  repos.Subscriptions,
		History:        repos.History,
		Customers:      repos.Customers,
		Provider:       opts.Provider,
		RetryScheduler: retries,
		Logger:         billing.NewFiberLogger("Billing"),
		Config:         cfg,
	}
	if opts.Mailer != nil {
		queue.Handle(jobqueue.JobTypeSendEmail, jobqueue.SendEmailHandler(opts.Mailer))
		deps.Notifier = jobqueue.NewMailNotifier(queue)
	}
	if opts.Archive != nil {
		queue.Handle(jobqueue.JobTypeArchiveEvent, jobqueue.ArchiveEventHandler(opts.Archive))
		deps.Archiver = jobqueue.NewArchiveScheduler(queue)
	}

	engine := billing.NewEngine(deps)
	queue.Handle(jobqueue.JobTypeInvoiceRetry, jobqueue.InvoiceRetryHandler(engine.Rotation))

	return &Runtime{
		Config:  cfg,
		DB:      opts.DB,
		Redis:   opts.Redis,
		Repos:   repos,
		Engine:  engine,
		Queue:   queue,
		Manager: jobqueue.NewManager(queue, engine.Dispatcher, opts.ReplayInterval),
		Retries: retries,
		Billing: controllers.NewBillingController(engine, retries, opts.WebhookSecret, opts.RequestTimeout),
		APIKey:  opts.APIKey,
	}
}

// Start runs the job workers and the replay sweep.
func (r *Runtime) Start() {
	r.Manager.Start()
}

// Close stops background work and releases connections.
func (r *Runtime) Close() {
	if r.Manager.IsRunning() {
		r.Manager.Stop()
	}
	for i := len(r.closeFns) - 1; i >= 0; i-- {
		r.closeFns[i]()
	}
}
