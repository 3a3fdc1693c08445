package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/server"
	"github.com/alanyoungcy/billvault/internal/server/handler"
	"github.com/alanyoungcy/billvault/internal/server/ws"
	"github.com/alanyoungcy/billvault/internal/service"
)

// services bundles the three vault services built from wired dependencies.
type services struct {
	series *service.SeriesService
	subs   *service.SubscriptionService
	repos  *service.RepoService
}

// buildServices constructs the vault services. The issuer and treasury
// addresses were validated with the config, so parse failures are wiring bugs.
func (a *App) buildServices(deps *Dependencies) (*services, error) {
	issuer, err := domain.ParsePrincipal(a.cfg.Vault.Issuer)
	if err != nil {
		return nil, fmt.Errorf("build services: issuer: %w", err)
	}
	treasury, err := domain.ParsePrincipal(a.cfg.Vault.Treasury)
	if err != nil {
		return nil, fmt.Errorf("build services: treasury: %w", err)
	}

	clock := service.SystemClock{}
	bus := deps.Bus()

	return &services{
		series: service.NewSeriesService(
			deps.Series, issuer, clock, deps.Locker, bus, deps.Audit, a.logger,
		),
		subs: service.NewSubscriptionService(
			deps.Series, deps.Positions, deps.Balances, deps.Cash, deps.Accounting,
			treasury, clock, deps.Locker, bus, deps.Audit, a.logger,
		),
		repos: service.NewRepoService(
			deps.Series, deps.Repos, deps.Balances, deps.Cash, deps.Accounting,
			treasury, a.cfg.Vault.HaircutBps, a.cfg.Vault.SpreadBps,
			clock, deps.Locker, bus, deps.Audit, a.logger,
		),
	}, nil
}

// ServerMode runs the full vault: Postgres-backed stores, Redis coordination,
// the HTTP + WebSocket API, event notifications, and (when enabled) periodic
// audit archival.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub bridges the Redis event stream to clients.
	var hub *ws.Hub
	if deps.EventBus != nil {
		hub = ws.NewHub(deps.EventBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	// Notifier tails the same event stream.
	if deps.EventBus != nil {
		g.Go(func() error {
			err := deps.Notifier.Run(ctx, deps.EventBus)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	// Periodic audit archival when enabled.
	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		interval := a.cfg.Archive.Interval.Duration
		g.Go(func() error {
			err := deps.Archiver.Run(ctx, interval, retention)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	a.startHTTPServer(ctx, g, deps, svcs, hub)

	return g.Wait()
}

// PaperMode runs the vault entirely in process memory: no Postgres, Redis, or
// S3. State is lost on exit. Useful for demos and integration testing against
// the real HTTP API.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode",
		slog.String("note", "in-memory state, lost on exit"),
	)

	svcs, err := a.buildServices(deps)
	if err != nil {
		return fmt.Errorf("paper mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svcs, nil)

	return g.Wait()
}

// ArchiveMode performs a single audit-log archival run and exits. Intended
// for cron-style scheduling.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not wired (enable [archive] in config)")
	}

	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	cutoff := time.Now().UTC().Add(-retention)

	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Time("cutoff", cutoff),
	)

	count, err := deps.Archiver.ArchiveAuditLog(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("archived", count),
	)
	return nil
}

// startHTTPServer adds the API server goroutines to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *services,
	hub *ws.Hub,
) {
	// The typed nil must not leak into the handler's interface field.
	var prices handler.PriceCache
	if deps.PriceCache != nil {
		prices = deps.PriceCache
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Series:        handler.NewSeriesHandler(svcs.series, prices, a.logger),
		Subscriptions: handler.NewSubscriptionHandler(svcs.subs, a.logger),
		Repos:         handler.NewRepoHandler(svcs.repos, a.logger),
		Accounting:    handler.NewAccountingHandler(deps.Accounting, deps.Audit, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKeys:     a.cfg.Server.APIKeys,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
