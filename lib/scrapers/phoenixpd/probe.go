package phoenixpd

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// The portal's markup changes without notice, so nothing in this
// package addresses the page with a single correct selector. Every
// lookup is an ordered list of known shapes tried until one matches:
// breadth of patterns is the only contract we have with the page.

type probe[T any] struct {
	name string
	run  func() (T, bool)
}

// firstMatch evaluates probes in priority order and returns the first
// hit along with the name of the probe that produced it.
func firstMatch[T any](ctx context.Context, label string, probes []probe[T]) (T, string, bool) {
	span := trace.SpanFromContext(ctx)

	for _, p := range probes {
		value, ok := p.run()
		if !ok {
			continue
		}
		span.AddEvent("probe matched", trace.WithAttributes(
			attribute.String("target", label),
			attribute.String("probe", p.name),
		))
		return value, p.name, true
	}

	span.AddEvent("no probe matched", trace.WithAttributes(
		attribute.String("target", label),
		attribute.Int("probes", len(probes)),
	))
	var zero T
	return zero, "", false
}
