package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tovian/tovian/internal/dispatcher"

// instruments are created from the global meter, which is a no-op until an
// SDK meter provider is installed.
type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
}

func newInstruments(queueLens func(observe func(command string, n int))) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	i := &instruments{}

	var err error
	i.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			queueLens(func(command string, n int) {
				o.ObserveInt64(i.queueSize, int64(n), metric.WithAttributes(attribute.String("command", command)))
			})
			return nil
		},
		i.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if i.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Total events processed")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if i.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Buffered events whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if i.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return i, nil
}

func (i *instruments) recordHandled(ctx context.Context, command string, err error) {
	attrs := metric.WithAttributes(attribute.String("command", command))
	i.processed.Add(ctx, 1, attrs)
	if err != nil {
		i.failed.Add(ctx, 1, attrs)
	}
}

func (i *instruments) recordDropped(ctx context.Context, command string) {
	i.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}
