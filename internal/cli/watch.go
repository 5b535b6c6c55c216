package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/dagfactory/internal/mq"
)

func newWatchCmd(app *App) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print workflow registration events from RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := app.openBroker(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			consumer := mq.NewConsumer(conn, app.Logger, mq.ConsumerConfig{
				Queue:   queue,
				Handler: registeredEventHandler(app.Out),
			})
			return consumer.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&queue, "queue", mq.QueueWorkflowsRegistered, "Queue to consume")
	return cmd
}

// registeredEventHandler печатает событие workflow.registered.
// Сообщения других типов пропускаются.
func registeredEventHandler(out *Output) mq.Handler {
	return func(_ context.Context, msg *mq.Message) error {
		if msg.Type != mq.MessageTypeWorkflowRegistered {
			return nil
		}
		payload, err := mq.ParsePayload[mq.WorkflowRegisteredPayload](msg)
		if err != nil {
			return err
		}

		if out.JSONMode() {
			return out.JSON(payload)
		}
		out.Line(fmt.Sprintf("%s  %s v%d  tasks=%d  checksum=%s",
			msg.Timestamp.UTC().Format(time.RFC3339),
			payload.Name,
			payload.Version,
			payload.Tasks,
			shortChecksum(payload.Checksum),
		))
		return nil
	}
}
