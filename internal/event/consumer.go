package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/reconcile"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
	pkgkafka "github.com/omendivilg/CoffeeBox/pkg/kafka"
	"github.com/omendivilg/CoffeeBox/pkg/logger"
)

// ShopGetter loads a coffee shop.
type ShopGetter interface {
	Get(ctx context.Context, id string) (*domain.CoffeeShop, error)
}

// ShopReconciler runs a full reconciliation for one shop.
type ShopReconciler interface {
	ReconcileShop(ctx context.Context, shop domain.CoffeeShop) (reconcile.Result, error)
}

// NewReconcileHandler returns a handler for review.submitted that fully
// reconciles the reviewed shop. The submission path only increments the
// stored aggregate, so this heals drift it carried forward and any lost
// update from concurrent submissions.
//
// Only transient failures are returned, so that the consumer retries them.
// Unknown shops, malformed payloads and degraded queries are logged and
// acknowledged.
func NewReconcileHandler(shops ShopGetter, reconciler ShopReconciler, log *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, evt *pkgkafka.Event) error {
		if evt.EventType != TypeReviewSubmitted {
			return nil
		}

		var data ReviewSubmittedData
		if err := evt.UnmarshalData(&data); err != nil || data.CoffeeID == "" {
			log.ErrorContext(ctx, "discarding malformed review.submitted event",
				slog.String("event_id", evt.EventID),
				slog.Any("error", err),
			)
			return nil
		}

		ctx = logger.WithCoffeeID(ctx, data.CoffeeID)
		if evt.CorrelationID != "" {
			ctx = logger.WithCorrelationID(ctx, evt.CorrelationID)
		}

		shop, err := shops.Get(ctx, data.CoffeeID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				log.WarnContext(ctx, "reviewed shop no longer exists",
					slog.String("coffee_id", data.CoffeeID),
					slog.String("event_id", evt.EventID),
				)
				return nil
			}
			return fmt.Errorf("load shop %s: %w", data.CoffeeID, err)
		}

		res, err := reconciler.ReconcileShop(ctx, *shop)
		if err != nil {
			return fmt.Errorf("reconcile shop %s: %w", data.CoffeeID, err)
		}

		log.InfoContext(ctx, "post-submission reconciliation",
			slog.String("coffee_id", data.CoffeeID),
			slog.String("state", string(res.State)),
			slog.Int("review_count", res.Shop.ReviewCount),
		)
		return nil
	}
}
