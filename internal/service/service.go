package service

import (
	"context"
	"errors"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/reconcile"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

// Notices shown to clients when a result is served in degraded mode.
const (
	NoticeListingUnavailable = "The coffee shop list is temporarily limited while the database finishes preparing. Please try again in a few minutes."
	NoticeReviewsUnavailable = "Reviews for this shop are temporarily unavailable. Ratings shown may be slightly out of date."
	NoticeProfileUnavailable = "Your reviews are temporarily unavailable while the database finishes preparing. Please try again in a few minutes."
)

// CoffeeReader reads coffee shops.
type CoffeeReader interface {
	Get(ctx context.Context, id string) (*domain.CoffeeShop, error)
	ListTopRated(ctx context.Context, limit int) ([]domain.CoffeeShop, error)
}

// ReviewStore persists and lists reviews.
type ReviewStore interface {
	Create(ctx context.Context, review *domain.Review) error
	ListByUser(ctx context.Context, userID string) ([]domain.Review, error)
}

// Reconciler is the part of *reconcile.Reconciler the services use.
type Reconciler interface {
	ReconcileShop(ctx context.Context, shop domain.CoffeeShop) (reconcile.Result, error)
	ReconcileMany(ctx context.Context, shops []domain.CoffeeShop) []reconcile.Result
	ApplyIncrementalReview(ctx context.Context, shop domain.CoffeeShop, review domain.Review) domain.CoffeeShop
}

// EventPublisher announces submitted reviews.
type EventPublisher interface {
	PublishReviewSubmitted(ctx context.Context, review domain.Review, shop domain.CoffeeShop) error
}

// shopLookupError keeps NOT_FOUND and reports any other store failure as
// SERVICE_UNAVAILABLE.
func shopLookupError(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return apperrors.Unavailable("coffee shops are temporarily unavailable", err)
}
