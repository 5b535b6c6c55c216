package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/dagfactory/internal/api"
	"github.com/shaiso/dagfactory/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Rebuild workflows periodically and serve them over HTTP",
		Long: `Rebuilds the workflow document every refresh interval and serves the
current set on /api/v1/workflows. When DAGFACTORY_DB_URL is set, every
rebuilt set is registered in PostgreSQL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := scheduler.Config{
				Compiler: app.Compiler(),
				Interval: app.Settings.RefreshInterval,
				Metrics:  app.Metrics,
				Logger:   app.Logger,
			}

			if app.Settings.DBURL != "" {
				reg, closeFn, err := app.openRegistrar(ctx)
				if err != nil {
					return err
				}
				defer closeFn()

				cfg.OnRefresh = func(ctx context.Context, snap *scheduler.Snapshot) {
					if _, err := reg.Register(ctx, snap.Workflows); err != nil {
						app.Logger.Error("registration failed", "error", err)
					}
				}
			}

			refresher := scheduler.New(cfg)
			handler := api.NewHandler(api.Config{
				Source:  refresher,
				Metrics: app.Metrics,
				Logger:  app.Logger,
			})
			srv := api.NewServer(app.Settings.HTTPAddr, handler)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return refresher.Run(gctx)
			})
			g.Go(func() error {
				app.Logger.Info("http server started", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				app.Logger.Info("shutting down http server")
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}
