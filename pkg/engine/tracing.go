package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "recall.engine"

const (
	spanSearch         = "search.query"
	spanStrategyRun    = "search.strategy"
	spanFilter         = "search.filter"
	spanReloadStrategy = "search.reload_strategy"
)

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
