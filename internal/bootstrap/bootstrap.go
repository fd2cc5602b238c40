package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/phase-edms/internal/config"
	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/forms"
	"github.com/kirillkom/phase-edms/internal/core/jobs"
	"github.com/kirillkom/phase-edms/internal/core/ports"
	"github.com/kirillkom/phase-edms/internal/core/trsimport"
	"github.com/kirillkom/phase-edms/internal/core/usecase"
	"github.com/kirillkom/phase-edms/internal/infrastructure/choices"
	"github.com/kirillkom/phase-edms/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/phase-edms/internal/infrastructure/mail/smtp"
	"github.com/kirillkom/phase-edms/internal/infrastructure/manifest/csvfile"
	"github.com/kirillkom/phase-edms/internal/infrastructure/pdfinfo"
	"github.com/kirillkom/phase-edms/internal/infrastructure/queue/local"
	"github.com/kirillkom/phase-edms/internal/infrastructure/queue/nats"
	"github.com/kirillkom/phase-edms/internal/infrastructure/repository/memory"
	"github.com/kirillkom/phase-edms/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/phase-edms/internal/infrastructure/resilience"
	"github.com/kirillkom/phase-edms/internal/infrastructure/search/elastic"
	"github.com/kirillkom/phase-edms/internal/infrastructure/storage/localfs"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Catalog *config.Catalog

	Store         ports.Store
	Queue         ports.JobQueue
	Statuses      ports.JobStatusStore
	Choices       *choices.Cache
	Activities    ports.ActivityReader
	Notifications ports.NotificationReader

	Reviews      *usecase.ReviewService
	Batch        *usecase.BatchReviewRunner
	Transmittals *usecase.TransmittalService
	Outgoing     *usecase.OutgoingService
	Importer     *trsimport.Importer
	Jobs         *usecase.JobService

	closeFn func()
}

type auditLog interface {
	ports.AuditSink
	ports.ActivityReader
}

type notificationBox interface {
	ports.Notifier
	ports.NotificationReader
}

type persistence struct {
	store         ports.Store
	statuses      ports.JobStatusStore
	choices       ports.ChoiceRepository
	audit         auditLog
	notifications notificationBox
	close         func()
}

type Option func(*options)

type options struct {
	observer resilience.Observer
}

// WithResilienceObserver exports retry and breaker events of external calls.
func WithResilienceObserver(o resilience.Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	catalog, err := config.LoadCategoriesFile(cfg.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	p, err := openPersistence(ctx, cfg)
	if err != nil {
		return nil, err
	}

	roots := localfs.Roots{
		Incoming:    cfg.IncomingRoot,
		ToBeChecked: cfg.ToBeCheckedRoot,
		Accepted:    cfg.AcceptedRoot,
		Rejected:    cfg.RejectedRoot,
	}
	fs, err := localfs.New(roots)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("init transmittal roots: %w", err)
	}
	register, err := xlsx.New(cfg.OutgoingRoot)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("init register export: %w", err)
	}

	executor := newExecutor(cfg, logger, o.observer)

	var queue ports.JobQueue
	closeQueue := func() {}
	if cfg.StoreDriver == StoreMemory {
		q := local.New(0)
		queue, closeQueue = q, q.Close
	} else {
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			p.close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		queue, closeQueue = q, q.Close
	}

	var index ports.SearchIndex = elastic.Nop{}
	if cfg.SearchURL != "" {
		index = elastic.New(cfg.SearchURL, cfg.SearchIndex, executor)
	}

	choiceCache := choices.NewCache(p.choices, time.Duration(cfg.ChoiceCacheTTLSeconds)*time.Second)
	form := forms.New(choiceCache)
	mailer := smtp.New(smtp.Config{
		Addr:       cfg.SMTPAddr,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		From:       cfg.SMTPFrom,
		Recipients: cfg.ImportErrorRecipients,
		PerMinute:  cfg.MailRatePerMinute,
	}, executor, logger)

	jobService := usecase.NewJobService(queue, p.statuses)
	reviews := usecase.NewReviewService(p.store, p.audit, index, logger, cfg.ReviewDurationDays)
	batch := usecase.NewBatchReviewRunner(
		p.store,
		reviews,
		catalog.Registry(),
		p.notifications,
		index,
		usecase.LinkBuilder{SiteURL: cfg.SiteURL},
		logger,
	)
	transmittals := usecase.NewTransmittalService(p.store, fs, form, catalog, jobService, p.audit, index, logger)
	outgoing := usecase.NewOutgoingService(
		p.store,
		catalog.Registry(),
		catalog,
		register,
		p.audit,
		index,
		logger,
		cfg.ExternalReviewDurationDays,
	)
	importer := trsimport.NewImporter(
		p.store,
		fs,
		csvfile.New(),
		pdfinfo.New(),
		form,
		catalog,
		mailer,
		p.audit,
		logger,
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Catalog: catalog,

		Store:         p.store,
		Queue:         queue,
		Statuses:      p.statuses,
		Choices:       choiceCache,
		Activities:    p.audit,
		Notifications: p.notifications,

		Reviews:      reviews,
		Batch:        batch,
		Transmittals: transmittals,
		Outgoing:     outgoing,
		Importer:     importer,
		Jobs:         jobService,

		closeFn: func() {
			closeQueue()
			p.close()
		},
	}, nil
}

func openPersistence(ctx context.Context, cfg config.Config) (*persistence, error) {
	switch cfg.StoreDriver {
	case StoreMemory:
		return &persistence{
			store:         memory.NewStore(),
			statuses:      memory.NewJobStatusStore(),
			choices:       memory.NewChoiceRepository(),
			audit:         memory.NewAuditLog(),
			notifications: memory.NewNotificationBox(),
			close:         func() {},
		}, nil
	case StorePostgres, "":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return &persistence{
			store:         postgres.NewStore(db),
			statuses:      postgres.NewJobRepository(db),
			choices:       postgres.NewChoiceRepository(db),
			audit:         postgres.NewAuditLog(db),
			notifications: postgres.NewNotificationBox(db),
			close:         func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewRunner builds the job runner executing every job kind against the app's use cases.
func (a *App) NewRunner(observer jobs.Observer) *jobs.Runner {
	handlers := usecase.JobHandlers(a.Batch, a.Transmittals, a.Importer)
	return jobs.NewRunner(a.Statuses, handlers, a.Config.JobConcurrency, observer, a.Logger)
}

// RunWorker consumes the queue and executes jobs until ctx is done.
func (a *App) RunWorker(ctx context.Context, runner *jobs.Runner) error {
	return a.Queue.SubscribeJobs(ctx, func(ctx context.Context, req domain.JobRequest) error {
		_, err := runner.Submit(ctx, req)
		return err
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newExecutor(cfg config.Config, logger *slog.Logger, observer resilience.Observer) *resilience.Executor {
	base := resilience.DefaultPolicy()
	base.Retry.MaxAttempts = cfg.RetryMaxAttempts
	base.Retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	base.Retry.MaxBackoff = time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
	base.Breaker.Enabled = cfg.BreakerEnabled
	base.Breaker.OpenTimeout = time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second

	mail := resilience.MailPolicy()
	mail.Breaker.Enabled = cfg.BreakerEnabled

	opts := []resilience.Option{resilience.WithPolicy(resilience.OpSMTPSend, mail)}
	if observer != nil {
		opts = append(opts, resilience.WithObserver(observer))
	}
	return resilience.NewExecutor(base, logger, opts...)
}
