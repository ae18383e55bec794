package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/valuesreport/internal/api"
	"github.com/soaringjerry/valuesreport/internal/db"
	"github.com/soaringjerry/valuesreport/internal/flow"
	"github.com/soaringjerry/valuesreport/internal/metrics"
	"github.com/soaringjerry/valuesreport/internal/middleware"
	"github.com/soaringjerry/valuesreport/internal/narrative"
	"github.com/soaringjerry/valuesreport/internal/render"
	"github.com/soaringjerry/valuesreport/internal/services"
	"github.com/soaringjerry/valuesreport/internal/transport/telegram"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	catalog, err := services.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("load value catalog: %w", err)
	}
	sections, err := services.DefaultSections()
	if err != nil {
		return fmt.Errorf("load report sections: %w", err)
	}
	gen, err := narrative.New(ctx, cfg.Narrative, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	assembler := services.NewReportAssembler(gen, catalog, sections, logger).WithObserver(m.ObserveSection)
	renderer, err := render.NewPDFRenderer(cfg.Report.ArtifactDir, logger, render.WithFallbackFont(cfg.Report.FallbackFont))
	if err != nil {
		return err
	}

	botAPI, err := telegram.Connect(cfg.Telegram.Token, cfg.Telegram.Debug)
	if err != nil {
		return err
	}
	outbox := telegram.NewOutbox(botAPI)

	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		titles = append(titles, s.Title)
	}
	deps := flow.Deps{
		Gate: services.NewAccessGate(store, services.AccessPolicy{
			FailOpen:       cfg.Access.FailOpen,
			BootstrapCodes: cfg.Access.BootstrapCodes,
		}, logger),
		Categories:    catalog,
		Submissions:   store,
		Reports:       assembler,
		Delivery:      services.NewDelivery(renderer, outbox, logger),
		Outbox:        outbox,
		Observer:      m,
		Logger:        logger,
		SectionTitles: titles,
	}

	var share *middleware.ShareSigner
	if cfg.Report.ShareSecret != "" {
		share, err = middleware.NewShareSigner(cfg.Report.ShareSecret, cfg.Report.ShareTTL, cfg.HTTP.PublicURL)
		if err != nil {
			return err
		}
		if cfg.HTTP.PublicURL != "" {
			deps.Links = share
		}
	}

	machine := flow.NewMachine(deps)
	bot := telegram.NewBot(botAPI, machine, cfg.Telegram.PollTimeout, logger)

	routes := api.Deps{
		Reports:           store,
		Admin:             store,
		Renderer:          renderer,
		Share:             share,
		AdminPasswordHash: cfg.Admin.PasswordHash,
		Metrics:           m.Handler(),
		Commit:            versionCommit(),
		BuildTime:         versionBuildTime(),
		Logger:            logger,
	}
	webhook := cfg.Telegram.WebhookURL != ""
	if webhook {
		routes.Webhook = bot.WebhookHandler()
		routes.WebhookPath = telegram.WebhookPath(cfg.Telegram.Token)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(routes).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if webhook {
		if _, err := bot.RegisterWebhook(cfg.Telegram.WebhookURL); err != nil {
			stop()
			_ = g.Wait()
			return err
		}
	} else {
		g.Go(func() error { return bot.RunPolling(gctx) })
	}

	logger.Info("values report bot ready",
		zap.String("commit", versionCommit()),
		zap.Bool("webhook", webhook),
		zap.String("store", cfg.Store.Driver),
		zap.String("narrative", gen.Name()),
		zap.Bool("fail_open", cfg.Access.FailOpen),
	)

	err = g.Wait()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Telegram.DrainTimeout)
	defer cancelDrain()
	if derr := bot.Shutdown(drainCtx); derr != nil {
		logger.Warn("update drain cut short", zap.Error(derr))
	}
	logger.Info("shutdown complete", zap.Int("open_sessions", machine.Active()))
	return err
}
