package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/acunetix-report-sender/internal/application"
	appai "github.com/bryanwahyu/acunetix-report-sender/internal/application/ai"
	"github.com/bryanwahyu/acunetix-report-sender/internal/application/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/application/reports"
	appscans "github.com/bryanwahyu/acunetix-report-sender/internal/application/scans"
	"github.com/bryanwahyu/acunetix-report-sender/internal/config"
	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/infra/acunetix"
	"github.com/bryanwahyu/acunetix-report-sender/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/acunetix-report-sender/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/acunetix-report-sender/internal/infra/db/postgres"
	"github.com/bryanwahyu/acunetix-report-sender/internal/infra/mail"
	"github.com/bryanwahyu/acunetix-report-sender/internal/infra/storage"
	"github.com/bryanwahyu/acunetix-report-sender/internal/middleware"
)

type app struct {
	Cycles  *appscans.Service
	Metrics *middleware.Metrics
	Health  map[string]middleware.HealthChecker
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

type pingStore interface {
	domreg.Store
	Ping(ctx context.Context) error
}

func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{Metrics: middleware.NewMetrics(), Health: map[string]middleware.HealthChecker{}}

	store, err := openStore(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("registry store (%s): %w", cfg.Registry.Driver, err)
	}
	a.Health["registry"] = middleware.PingChecker{Target: store}
	reg := registry.Load(ctx, store, log.Named("registry"))

	timeout := cfg.Acunetix.Timeout
	if timeout <= 0 {
		timeout = cfg.Settings.RequestTimeout
	}
	gw, err := acunetix.New(acunetix.Options{
		BaseURL:       cfg.Acunetix.URL,
		APIKey:        cfg.Acunetix.APIKey,
		VerifySSL:     cfg.Acunetix.VerifySSL,
		Timeout:       timeout,
		MaxRetries:    cfg.Acunetix.MaxRetries,
		BackoffFactor: cfg.Acunetix.BackoffFactor,
	}, log.Named("acunetix"))
	if err != nil {
		a.Close()
		return nil, err
	}

	var summary mail.SummaryWriter
	if cfg.AI.Enabled {
		summary = appai.NewService(openai.NewClient(cfg.AI.APIKey, cfg.AI.Model), cfg.Settings.RequestTimeout, log.Named("ai"))
	}
	notifier := mail.New(mail.Options{
		Host:       cfg.Email.SMTPServer,
		Port:       cfg.Email.SMTPPort,
		Username:   cfg.Email.Username,
		Password:   cfg.Email.Password,
		From:       cfg.Email.From,
		Recipients: cfg.Email.Recipients,
		UseTLS:     cfg.Email.UseTLS,
	}, summary, log.Named("mail"))

	a.Cycles = &appscans.Service{
		Gateway:   gw,
		Generator: reports.NewGenerator(gw, log.Named("reports")),
		Notifier:  notifier,
		Registry:  reg,
		Clock:     application.SystemClock{},
		Log:       log.Named("cycle"),
		Options: appscans.Options{
			Report: reports.Options{
				TemplateID: cfg.Acunetix.ReportTemplateID,
				MaxRetries: cfg.Settings.ReportMaxRetries,
				RetryDelay: cfg.Settings.ReportRetryDelay,
			},
			CleanupReports: cfg.Settings.CleanupReports,
		},
	}
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, a *app) (pingStore, error) {
	switch cfg.Registry.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		s, err := mysqlp.NewRegistryStore(db, cfg.Registry.Table)
		if err != nil {
			return nil, err
		}
		return s, s.EnsureSchema(ctx)
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		s, err := pgp.NewRegistryStore(db, cfg.Registry.Table)
		if err != nil {
			return nil, err
		}
		return s, s.EnsureSchema(ctx)
	case "minio":
		return storage.NewMinio(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Registry.ObjectKey,
			cfg.Minio.UseSSL,
		)
	default:
		return storage.NewFileStore(cfg.Registry.Path), nil
	}
}
