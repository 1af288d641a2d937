// Package app is the automation node's composition root (spec.md
// COMPONENT MAP): it builds every component (C1-C10) and the admin
// callback loop (C11 node side) and wires them into the HTTP server.
// Grounded on the teacher's internal/app.App, narrowed from a single
// god-object holding every service field to a builder that hands each
// package its own Deps struct, matching how internal/server and
// internal/adminserver already take narrow dependency structs.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/adminclient"
	"github.com/formflow/automation/internal/ai"
	"github.com/formflow/automation/internal/browser"
	"github.com/formflow/automation/internal/captcha"
	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/domainmap"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/normalizer"
	"github.com/formflow/automation/internal/pipeline"
	"github.com/formflow/automation/internal/resolver"
	"github.com/formflow/automation/internal/scheduler"
	"github.com/formflow/automation/internal/server"
	"github.com/formflow/automation/internal/services/events"
	"github.com/formflow/automation/internal/storage/badgerstore"
)

// App holds every node-side component for the lifetime of the process.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB *badgerstore.DB

	Scheduler   *scheduler.Scheduler
	Server      *server.Server
	AdminClient *adminclient.Client

	cancel context.CancelFunc
}

// New builds the node application: storage, the nine pipeline components,
// the job scheduler, the HTTP server, and the admin callback loop client.
// It does not start any of them; call Run for that.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badgerstore.Open(cfg.Storage.Badger, logger)
	if err != nil {
		return nil, fmt.Errorf("open node database: %w", err)
	}

	profiles := badgerstore.NewProfileRepo(db, logger)
	sites := badgerstore.NewSiteRepo(db, logger)
	domainRepo := badgerstore.NewDomainMappingRepo(db, logger)
	history := badgerstore.NewHistoryRepo(db, logger)

	eventSvc := events.NewService(logger)
	if err := events.SubscribeLoggerToAllEvents(eventSvc, logger); err != nil {
		return nil, fmt.Errorf("subscribe logger to events: %w", err)
	}

	browserCap := browser.New(cfg.Browser, logger)
	aiFactory := ai.NewFactory(cfg.AI, logger)
	domainStore := domainmap.New(domainRepo, logger)
	fieldResolver := resolver.New(domainStore, aiFactory, cfg.AI.Provider, cfg.AI.MinConfidence, logger)

	// A missing provider key is not fatal: spec.md §4.4 requires the
	// captcha phase to proceed without a solution when none is configured.
	var captchaSolverClient interfaces.CaptchaSolver
	if client, err := captcha.NewClient(cfg.Captcha, logger); err != nil {
		logger.Warn().Err(err).Msg("captcha provider not configured, captcha phase will proceed unsolved")
	} else {
		captchaSolverClient = client
	}
	visionAnalyzer, err := aiFactory.Get(cfg.AI.Provider)
	if err != nil {
		logger.Warn().Err(err).Msg("captcha vision fallback analyzer unavailable, falling back disabled")
		visionAnalyzer = nil
	}
	captchaSolver := captcha.NewSolver(cfg.Captcha, captchaSolverClient, visionAnalyzer, logger)

	executor := pipeline.New(
		browserCap,
		fieldResolver,
		profiles,
		sites,
		domainStore,
		history,
		eventSvc,
		captchaSolver,
		cfg.Browser,
		cfg.Pipeline,
		cfg.Resolver,
		logger,
	)

	sched := scheduler.New(executor, eventSvc, cfg.Scheduler, logger)

	srv := server.New(server.Deps{
		Profiles:   profiles,
		Sites:      sites,
		Scheduler:  sched,
		Events:     eventSvc,
		Normalizer: normalizer.New(normalizer.DefaultDefaults()),
		Config:     cfg,
		Logger:     logger,
	})

	adminC := adminclient.New(cfg, sched, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Scheduler:   sched,
		Server:      srv,
		AdminClient: adminC,
	}, nil
}

// Run starts the scheduler, HTTP server, and admin callback loop as
// background goroutines. It returns immediately; callers drive shutdown
// via Close.
func (a *App) Run(shutdownChan chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Scheduler.Run(ctx)
	go a.AdminClient.Run(ctx)

	a.Server.SetShutdownChannel(shutdownChan)
	go func() {
		if err := a.Server.Start(); err != nil {
			a.Logger.Error().Err(err).Msg("node HTTP server stopped unexpectedly")
		}
	}()
}

// Close stops all background work and closes the database. Safe to call
// once, after Run.
func (a *App) Close(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.Scheduler.Stop()
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("node HTTP server shutdown error")
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("close node database: %w", err)
	}
	return nil
}
