// Package reconcile keeps the derived rating aggregate on each coffee shop
// in line with the shop's reviews. Reviews are the source of truth; the
// aggregate is a cache that is corrected whenever a read observes drift.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
	"github.com/omendivilg/CoffeeBox/pkg/tracing"
)

// DefaultTolerance is the largest average drift left uncorrected.
const DefaultTolerance = 0.1

// epsilon absorbs float error so a drift of exactly the tolerance is not
// corrected (3.9 vs 4.0 differs by 0.10000000000000009).
const epsilon = 1e-9

// State is the outcome of one reconciliation.
type State string

const (
	// StateConsistent means the stored aggregate was within tolerance.
	StateConsistent State = "consistent"
	// StateCorrected means drift was found and a corrective write issued.
	StateCorrected State = "corrected"
	// StateDegraded means reviews could not be queried; the stored
	// aggregate is returned untouched.
	StateDegraded State = "degraded"
	// StateUnavailable means the review fetch failed for another reason.
	StateUnavailable State = "unavailable"
)

// ReviewSource fetches every review of a shop in no particular order.
type ReviewSource interface {
	ListByCoffee(ctx context.Context, coffeeID string) ([]domain.Review, error)
}

// AggregateWriter persists the three aggregate fields of a shop.
type AggregateWriter interface {
	UpdateAggregate(ctx context.Context, coffeeID string, a domain.Aggregate) error
}

// CorrectionPublisher announces corrected aggregates.
type CorrectionPublisher interface {
	PublishAggregateCorrected(ctx context.Context, shop domain.CoffeeShop, previous domain.Aggregate) error
}

// Result is the outcome of reconciling one shop. Shop always holds the
// aggregate the caller should display.
type Result struct {
	Shop     domain.CoffeeShop
	Reviews  []domain.Review
	State    State
	Previous domain.Aggregate
}

// Degraded reports whether the review set could not be read.
func (r Result) Degraded() bool {
	return r.State == StateDegraded || r.State == StateUnavailable
}

// Config tunes a Reconciler. Zero values fall back to defaults.
type Config struct {
	Tolerance    float64
	Concurrency  int
	WriteTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{Tolerance: DefaultTolerance, Concurrency: 4, WriteTimeout: 5 * time.Second}
}

// Reconciler recomputes aggregates and writes corrections. It holds no
// per-shop state between calls.
type Reconciler struct {
	reviews   ReviewSource
	writer    AggregateWriter
	publisher CorrectionPublisher
	cfg       Config
	logger    *slog.Logger

	inflight sync.WaitGroup
}

// New creates a Reconciler. publisher may be nil.
func New(reviews ReviewSource, writer AggregateWriter, publisher CorrectionPublisher, cfg Config, logger *slog.Logger) *Reconciler {
	def := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Reconciler{
		reviews:   reviews,
		writer:    writer,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// IsStale reports whether stored must be replaced by computed: the counts
// differ, or the averages differ by strictly more than tolerance.
func IsStale(stored, computed domain.Aggregate, tolerance float64) bool {
	if stored.Count != computed.Count {
		return true
	}
	return math.Abs(computed.Average-stored.Average) > tolerance+epsilon
}

// FetchReviewsFor returns the shop's reviews, unordered. A missing index
// comes back as an error matching apperrors.ErrDegradedQuery.
func (r *Reconciler) FetchReviewsFor(ctx context.Context, coffeeID string) ([]domain.Review, error) {
	return r.reviews.ListByCoffee(ctx, coffeeID)
}

// Reconcile compares shop against the aggregate of reviews. When stale, it
// issues a corrective write in the background and returns the corrected
// shop immediately; the write outcome never changes the returned value.
func (r *Reconciler) Reconcile(ctx context.Context, shop domain.CoffeeShop, reviews []domain.Review) Result {
	stored := shop.Aggregate()
	computed := domain.ComputeAggregate(reviews)

	if !IsStale(stored, computed, r.cfg.Tolerance) {
		reconciliationsTotal.WithLabelValues(string(StateConsistent)).Inc()
		return Result{Shop: shop, Reviews: reviews, State: StateConsistent, Previous: stored}
	}

	corrected := shop.WithAggregate(computed)
	reconciliationsTotal.WithLabelValues(string(StateCorrected)).Inc()
	r.logger.InfoContext(ctx, "aggregate drift detected",
		slog.String("coffee_id", shop.ID),
		slog.Int("stored_count", stored.Count),
		slog.Int("actual_count", computed.Count),
		slog.Float64("stored_average", stored.Average),
		slog.Float64("actual_average", computed.Average),
	)

	r.writeInBackground(ctx, corrected, stored)
	return Result{Shop: corrected, Reviews: reviews, State: StateCorrected, Previous: stored}
}

// writeInBackground persists a correction on a context detached from the
// request so the write outlives it, bounded by the write timeout.
func (r *Reconciler) writeInBackground(ctx context.Context, shop domain.CoffeeShop, previous domain.Aggregate) {
	detached := context.WithoutCancel(ctx)

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		ctx, cancel := context.WithTimeout(detached, r.cfg.WriteTimeout)
		defer cancel()

		ctx, span := tracing.Start(ctx, "reconcile.corrective_write", attribute.String("coffee.id", shop.ID))
		defer span.End()

		aggregateWritesTotal.WithLabelValues(pathCorrective).Inc()
		if err := r.writer.UpdateAggregate(ctx, shop.ID, shop.Aggregate()); err != nil {
			tracing.RecordError(span, err)
			aggregateWriteFailuresTotal.WithLabelValues(pathCorrective).Inc()
			r.logger.WarnContext(ctx, "corrective aggregate write failed",
				slog.String("coffee_id", shop.ID),
				slog.String("error", err.Error()),
			)
			return
		}

		if r.publisher == nil {
			return
		}
		if err := r.publisher.PublishAggregateCorrected(ctx, shop, previous); err != nil {
			r.logger.WarnContext(ctx, "publish aggregate correction failed",
				slog.String("coffee_id", shop.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// ApplyIncrementalReview adds one review to the stored aggregate without
// re-reading the review set. Drift already present is carried forward; a
// later reconciliation fixes it. Write failures are logged and dropped.
func (r *Reconciler) ApplyIncrementalReview(ctx context.Context, shop domain.CoffeeShop, review domain.Review) domain.CoffeeShop {
	ctx, span := tracing.Start(ctx, "reconcile.incremental", attribute.String("coffee.id", shop.ID))
	defer span.End()

	updated := shop.WithAggregate(shop.Aggregate().Add(review.Rating))

	aggregateWritesTotal.WithLabelValues(pathIncremental).Inc()
	if err := r.writer.UpdateAggregate(ctx, shop.ID, updated.Aggregate()); err != nil {
		tracing.RecordError(span, err)
		aggregateWriteFailuresTotal.WithLabelValues(pathIncremental).Inc()
		r.logger.WarnContext(ctx, "incremental aggregate write failed",
			slog.String("coffee_id", shop.ID),
			slog.String("error", err.Error()),
		)
	}
	return updated
}

// ReconcileShop fetches the shop's reviews and reconciles against them.
// Reviews in the result are sorted newest first. A degraded query yields
// StateDegraded and a nil error; any other fetch failure yields
// StateUnavailable and a SERVICE_UNAVAILABLE AppError. No write is issued
// in either case.
func (r *Reconciler) ReconcileShop(ctx context.Context, shop domain.CoffeeShop) (Result, error) {
	ctx, span := tracing.Start(ctx, "reconcile.shop", attribute.String("coffee.id", shop.ID))
	defer span.End()

	reviews, err := r.FetchReviewsFor(ctx, shop.ID)
	if err != nil {
		if apperrors.IsDegraded(err) {
			reconciliationsTotal.WithLabelValues(string(StateDegraded)).Inc()
			r.logger.WarnContext(ctx, "review query degraded",
				slog.String("coffee_id", shop.ID),
				slog.String("error", err.Error()),
			)
			span.SetAttributes(attribute.String("reconcile.state", string(StateDegraded)))
			return Result{Shop: shop, State: StateDegraded, Previous: shop.Aggregate()}, nil
		}

		tracing.RecordError(span, err)
		reconciliationsTotal.WithLabelValues(string(StateUnavailable)).Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{Shop: shop, State: StateUnavailable, Previous: shop.Aggregate()}, err
		}
		return Result{Shop: shop, State: StateUnavailable, Previous: shop.Aggregate()},
			apperrors.Unavailable("reviews are temporarily unavailable", err)
	}

	domain.SortNewestFirst(reviews)
	res := r.Reconcile(ctx, shop, reviews)
	span.SetAttributes(attribute.String("reconcile.state", string(res.State)))
	return res, nil
}

// ReconcileMany reconciles each shop independently with bounded
// concurrency. Results keep the input order; a shop whose reviews cannot be
// read keeps its stored aggregate.
func (r *Reconciler) ReconcileMany(ctx context.Context, shops []domain.CoffeeShop) []Result {
	results := make([]Result, len(shops))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, shop := range shops {
		g.Go(func() error {
			res, err := r.ReconcileShop(ctx, shop)
			if err != nil {
				r.logger.WarnContext(ctx, "reconcile in listing failed",
					slog.String("coffee_id", shop.ID),
					slog.String("error", err.Error()),
				)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Wait blocks until every background corrective write has finished.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}
