package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/goclaw/recall/pkg/cache"
	"github.com/goclaw/recall/pkg/filter"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/resilience"
	"github.com/goclaw/recall/pkg/search"
)

// Search runs the query through the applicable strategies, highest
// priority first, at most MaxStrategiesPerQuery of them concurrently. Hits
// are merged by id keeping the best score, then filtered, sorted and
// paginated. It fails only when every selected strategy fails.
func (e *Engine) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	q, err := e.prepare(q)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer().Start(ctx, spanSearch, trace.WithAttributes(
		attribute.String("query.complexity", string(q.Complexity())),
		attribute.Int("query.limit", q.EffectiveLimit()),
		attribute.Bool("query.filtered", q.FilterExpression != ""),
	))
	defer span.End()

	selected := e.selectStrategies(q)
	if len(selected) == 0 {
		err := &NoStrategyError{Query: q.Text}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	names := make([]string, len(selected))
	for i, ent := range selected {
		names[i] = ent.strategy.Name()
	}
	span.SetAttributes(attribute.StringSlice("search.strategies", names))

	results, err := e.fanOut(ctx, q, selected)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out, err := e.finish(ctx, q, results)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.results", len(out)))
	return out, nil
}

// SearchWithStrategy runs a single named strategy, bypassing automatic
// selection. A disabled strategy can still be invoked this way.
func (e *Engine) SearchWithStrategy(ctx context.Context, q search.Query, name string) ([]search.Result, error) {
	ent, ok := e.lookup(name)
	if !ok {
		return nil, &search.StrategyNotFoundError{Name: name}
	}
	q, err := e.prepare(q)
	if err != nil {
		return nil, err
	}
	if !ent.strategy.CanHandle(q) {
		return nil, search.NewValidationError("query", "strategy %s cannot handle this query", name)
	}

	ctx, span := tracer().Start(ctx, spanSearch, trace.WithAttributes(
		attribute.String("query.complexity", string(q.Complexity())),
		attribute.StringSlice("search.strategies", []string{name}),
	))
	defer span.End()

	results, err := e.runStrategy(ctx, q, ent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out, err := e.finish(ctx, q, merge(results))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

// prepare clones q, expands its filter template into FilterExpression and
// validates the result.
func (e *Engine) prepare(q search.Query) (search.Query, error) {
	q = q.Clone()
	if err := q.Validate(); err != nil {
		return q, err
	}
	if ref := q.FilterTemplate; ref != nil {
		expr, err := e.filter.ExpandTemplate(ref.Name, ref.Args)
		if err != nil {
			return q, err
		}
		if strings.TrimSpace(q.FilterExpression) != "" {
			expr = "(" + expr + ") AND (" + q.FilterExpression + ")"
		}
		q.FilterExpression = expr
		q.FilterTemplate = nil
	}
	return q, e.validate(q)
}

func (e *Engine) validate(q search.Query) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.FilterExpression != "" {
		if err := filter.Validate(q.FilterExpression); err != nil {
			return search.NewValidationError("filter_expression", "%v", err)
		}
	}
	return nil
}

// selectStrategies returns the enabled, valid strategies that can handle
// q, in priority order, truncated to MaxStrategiesPerQuery.
func (e *Engine) selectStrategies(q search.Query) []*entry {
	var out []*entry
	for _, ent := range e.snapshot() {
		if !ent.cfg.Enabled || ent.invalid != nil {
			continue
		}
		if !ent.strategy.CanHandle(q) {
			continue
		}
		out = append(out, ent)
		if len(out) == e.cfg.MaxStrategiesPerQuery {
			break
		}
	}
	return out
}

// fanOut executes the selected strategies and merges their hits. A
// strategy configured without parallel execution serialises the round.
func (e *Engine) fanOut(ctx context.Context, q search.Query, selected []*entry) ([]search.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, ent := range selected {
		if !ent.cfg.Performance.ParallelExecution {
			g.SetLimit(1)
			break
		}
	}

	var (
		mu     sync.Mutex
		merged []search.Result
		errs   []error
	)
	for _, ent := range selected {
		g.Go(func() error {
			results, err := e.runStrategy(gctx, q.Clone(), ent)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			merged = append(merged, results...)
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(selected) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(errs) == 1 {
			return nil, errs[0]
		}
		return nil, &AllStrategiesFailedError{Errors: errs}
	}
	for _, err := range errs {
		e.logger.Debug("strategy failed; continuing with remaining results", "error", err)
	}
	return merge(merged), nil
}

// runStrategy executes one strategy behind the cache and the error
// handler and records the outcome with the monitor.
func (e *Engine) runStrategy(ctx context.Context, q search.Query, ent *entry) ([]search.Result, error) {
	name := ent.strategy.Name()
	ctx, span := tracer().Start(ctx, spanStrategyRun, trace.WithAttributes(attribute.String("strategy", name)))
	defer span.End()

	started := e.now()
	rec := monitor.QueryRecord{Strategy: name, Complexity: q.Complexity(), Timestamp: started}

	caching := ent.cfg.Performance.EnableCaching
	key := cache.Key(name, q)
	if caching {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("result cache read failed", "strategy", name, "error", err)
		}
		if ok {
			rec.Duration = e.now().Sub(started)
			rec.Results = len(cached)
			rec.Success = true
			rec.CacheHit = true
			e.monitor.RecordQuery(rec)
			span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Int("results", len(cached)))
			return cached, nil
		}
	}

	results, err := e.handler.Execute(ctx, resilience.Call{
		Strategy:  name,
		Operation: "search",
		Query:     q,
		Timeout:   ent.cfg.Timeout(),
		Run: func(ctx context.Context) ([]search.Result, error) {
			return ent.strategy.Execute(ctx, q)
		},
	})
	rec.Duration = e.now().Sub(started)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Caller cancellation is not a strategy failure.
			return nil, err
		}
		rec.Error = err.Error()
		e.monitor.RecordQuery(rec)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rec.Success = true
	rec.Results = len(results)
	e.monitor.RecordQuery(rec)
	span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Int("results", len(results)))

	if caching {
		if err := e.cache.Set(ctx, key, results); err != nil {
			e.logger.Warn("result cache write failed", "strategy", name, "error", err)
		}
	}
	return results, nil
}

// merge deduplicates hits by id keeping the highest score. In-band error
// results are dropped. The order of first appearance is preserved so the
// later stable sort is deterministic.
func merge(results []search.Result) []search.Result {
	index := make(map[string]int, len(results))
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		if r.IsError() {
			continue
		}
		if i, ok := index[r.ID]; ok {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// finish applies the filter expression, sorts and paginates.
func (e *Engine) finish(ctx context.Context, q search.Query, results []search.Result) ([]search.Result, error) {
	if q.FilterExpression != "" {
		fctx, span := tracer().Start(ctx, spanFilter, trace.WithAttributes(
			attribute.Int("filter.input", len(results)),
		))
		started := time.Now()
		filtered, err := e.filter.Apply(fctx, results, q.FilterExpression)
		span.SetAttributes(
			attribute.Int("filter.output", len(filtered)),
			attribute.Int64("filter.duration_us", time.Since(started).Microseconds()),
		)
		span.End()
		if err != nil {
			if ctx.Err() != nil || search.IsValidation(err) {
				return nil, err
			}
			return nil, search.NewValidationError("filter_expression", "%v", err)
		}
		results = filtered
	}

	search.SortResults(results, q.Sort)
	return search.Paginate(results, q.Offset, q.EffectiveLimit()), nil
}
