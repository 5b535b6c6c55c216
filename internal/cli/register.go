package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/dagfactory/internal/mq"
	"github.com/shaiso/dagfactory/internal/registrar"
	"github.com/shaiso/dagfactory/internal/repo"
)

// ErrNoBroker — не задан DAGFACTORY_AMQP_URL.
var ErrNoBroker = errors.New("amqp url is not configured (set DAGFACTORY_AMQP_URL)")

func newRegisterCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Store workflow snapshots in PostgreSQL and announce new versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			result, err := app.Compile(ctx)
			if err != nil {
				return err
			}

			reg, closeFn, err := app.openRegistrar(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			regs, regErr := reg.Register(ctx, result.Workflows)

			rows := make([][]string, 0, len(regs))
			for _, r := range regs {
				status := "unchanged"
				if r.Created {
					status = "created"
				}
				rows = append(rows, []string{r.Name, strconv.Itoa(r.Version), status, shortChecksum(r.Checksum)})
			}
			if err := app.Out.Print([]string{"WORKFLOW", "VERSION", "STATUS", "CHECKSUM"}, rows, regs); err != nil {
				return err
			}
			return regErr
		},
	}
}

// openRegistrar подключается к базе и, если задан брокер, к RabbitMQ.
func (a *App) openRegistrar(ctx context.Context) (*registrar.Registrar, func(), error) {
	pool, err := repo.NewPool(ctx, a.Settings.DBURL)
	if err != nil {
		return nil, nil, err
	}

	store := repo.NewWorkflowRepo(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cfg := registrar.Config{
		Store:   store,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	}

	closers := []func(){pool.Close}
	if a.Settings.AMQPURL != "" {
		conn, err := a.openBroker(ctx)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				a.Logger.Warn("failed to close amqp connection", "error", err)
			}
		})
		cfg.Notifier = mq.NewPublisher(conn, a.Logger)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return registrar.New(cfg), closeAll, nil
}

// openBroker подключается к RabbitMQ и объявляет топологию.
func (a *App) openBroker(ctx context.Context) (*mq.Connection, error) {
	if a.Settings.AMQPURL == "" {
		return nil, ErrNoBroker
	}
	conn, err := mq.NewConnection(a.Settings.AMQPURL, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
