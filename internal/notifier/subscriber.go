// Package notifier consumes order-created events and delivers the
// "new order" notification to the administrative back office.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/armorline/storefront/internal/config"
	"github.com/armorline/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// Sink receives the rendered notification. Delivery is fire-and-forget
// from the storefront's perspective; a failing sink only logs.
type Sink interface {
	Notify(ctx context.Context, message string, orderID uuid.UUID) error
}

// LogSink records notifications in the structured log. Stands in for a
// mail or chat integration.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, message string, orderID uuid.UUID) error {
	s.Logger.InfoContext(ctx, "admin notification", "order_id", orderID, "message", message)
	return nil
}

// ackableMsg is the subset of jetstream.Msg the worker needs; narrowed
// for testability.
type ackableMsg interface {
	Data() []byte
	Ack() error
	Nak() error
}

// Start initializes the JetStream consumer and runs the worker pool
// until the context is cancelled.
func Start(ctx context.Context, js jetstream.JetStream, subscriberCfg config.SubscriberConfig, sink Sink, logger *slog.Logger) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: subscriberCfg.Subject,
		Durable:       subscriberCfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, subscriberCfg.Stream, cfg)
	if err != nil {
		return err
	}
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < subscriberCfg.Workers; i++ {
		g.Go(func() error {
			return runWorker(gCtx, consumer, subscriberCfg.Timeout, subscriberCfg.Interval, sink, logger)
		})
	}
	return g.Wait()
}

// runWorker fetches messages from the JetStream consumer and processes them.
func runWorker(ctx context.Context, consumer jetstream.Consumer, timeout, interval time.Duration, sink Sink, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := consumer.Fetch(1, jetstream.FetchMaxWait(timeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				logger.Error("failed to fetch messages", "error", err)
				time.Sleep(interval)
				continue
			}
			for msg := range batch.Messages() {
				handleMessage(ctx, msg, sink, logger)
			}
		}
	}
}

// handleMessage decodes one order-created event and hands it to the sink.
func handleMessage(ctx context.Context, msg ackableMsg, sink Sink, logger *slog.Logger) {
	if msg == nil {
		logger.Error("received nil message")
		return
	}
	var event events.OrderCreatedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		logger.Error("failed to unmarshal message", "error", err)
		if err := msg.Nak(); err != nil {
			logger.Error("failed to nack message", "error", err)
		}
		return
	}

	// Resume the publisher's trace so the notification logs under it.
	if event.Carrier != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, event.Carrier)
	}

	message := fmt.Sprintf("New order %s placed for %d", event.OrderNumber, event.TotalAmount)
	if err := sink.Notify(ctx, message, event.OrderID); err != nil {
		// Best-effort delivery: the order stands either way.
		logger.Error("notification sink failed", "order_id", event.OrderID, "error", err)
	}

	if err := msg.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
}
