package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nftbay/marketd/internal/server"
	"github.com/nftbay/marketd/internal/server/handler"
	"github.com/nftbay/marketd/internal/server/ws"
)

// ServeMode runs the long-lived daemon: an initial marketplace refresh,
// a periodic refresh loop, the WebSocket hub, and the HTTP API server.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	// Warm the mirror before serving. A failure here is not fatal; the
	// refresh loop and on-demand reads will fill in the gaps.
	if _, err := deps.Mirror.RefreshAll(ctx); err != nil {
		a.logger.WarnContext(ctx, "initial refresh failed",
			slog.String("error", err.Error()),
		)
	}

	// Periodic refresh loop.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Market.RefreshInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				report, err := deps.Mirror.RefreshAll(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "periodic refresh failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				a.logger.DebugContext(ctx, "periodic refresh complete",
					slog.Int("refreshed_subsets", len(report.Refreshed)),
					slog.Int("failed_subsets", len(report.Failed)),
				)
			}
		}
	})

	// WebSocket hub, fed by the Redis signal bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Pingers),
		Catalog: handler.NewCatalogHandler(deps.Catalog, a.logger),
		Tx:      handler.NewTxHandler(deps.TxMgr, a.logger),
	}
	if deps.Activity != nil {
		handlers.Activity = handler.NewActivityHandler(deps.Activity, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ArchiveMode runs a one-shot export of write history older than the
// configured retention window to object storage, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Time("cutoff", cutoff),
		slog.Bool("prune", a.cfg.Archive.Prune),
	)

	result, err := deps.Activity.Archive(ctx, cutoff, a.cfg.Archive.Prune)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	a.logger.InfoContext(ctx, "archive complete",
		slog.Int("entries", result.Entries),
		slog.String("path", result.Path),
		slog.Int64("pruned", result.Pruned),
	)
	return nil
}
