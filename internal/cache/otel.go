package cache

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tovian/tovian/internal/cache"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	lookups       metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	m := meter()

	lookups, err := m.Int64Counter(
		"frame_cache.lookups",
		metric.WithDescription("Frame lookups by result (hit or miss)"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lookups counter: %w", err)
	}

	fetchDuration, err := m.Float64Histogram(
		"frame_cache.fetch.duration",
		metric.WithDescription("Duration of data source fetches"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch duration histogram: %w", err)
	}

	return &instruments{lookups: lookups, fetchDuration: fetchDuration}, nil
}

var (
	hitAttr  = metric.WithAttributes(attribute.String("result", "hit"))
	missAttr = metric.WithAttributes(attribute.String("result", "miss"))
)

func (i *instruments) recordLookup(ctx context.Context, hit bool) {
	if hit {
		i.lookups.Add(ctx, 1, hitAttr)
		return
	}
	i.lookups.Add(ctx, 1, missAttr)
}

func (i *instruments) recordFetch(ctx context.Context, d time.Duration, err error) {
	i.fetchDuration.Record(ctx, float64(d.Microseconds())/1000,
		metric.WithAttributes(attribute.Bool("error", err != nil)))
}
