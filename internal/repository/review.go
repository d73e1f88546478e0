package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/store"
)

// ReviewRepository maps review documents. Queries use a single equality
// filter and no store-side sort, so only single-field indexes are needed;
// callers order results with domain.SortNewestFirst.
type ReviewRepository struct {
	store store.DocumentStore
	now   func() time.Time
}

// NewReviewRepository creates a repository over s.
func NewReviewRepository(s store.DocumentStore) *ReviewRepository {
	return &ReviewRepository{store: s, now: time.Now}
}

// ListByCoffee returns every review of the shop, unordered. A missing index
// surfaces as store.ErrDegradedQuery.
func (r *ReviewRepository) ListByCoffee(ctx context.Context, coffeeID string) ([]domain.Review, error) {
	return r.list(ctx, fieldCoffeeID, coffeeID)
}

// ListByUser returns every review written by the user, unordered.
func (r *ReviewRepository) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	return r.list(ctx, fieldUserID, userID)
}

// Create stores review and sets its ID.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	id, err := r.store.Insert(ctx, store.CollectionReviews, map[string]any{
		fieldCoffeeID:  review.CoffeeID,
		fieldUserID:    review.UserID,
		fieldUserName:  review.UserName,
		fieldUserPhoto: review.UserPhoto,
		fieldRating:    review.Rating,
		fieldText:      review.Text,
		fieldCreatedAt: review.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	review.ID = id
	return nil
}

func (r *ReviewRepository) list(ctx context.Context, field, value string) ([]domain.Review, error) {
	docs, err := r.store.Query(ctx, store.CollectionReviews, store.Query{}.Where(field, value))
	if err != nil {
		return nil, fmt.Errorf("list reviews by %s: %w", field, err)
	}

	now := r.now().UTC()
	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, reviewFromDocument(doc, now))
	}
	return reviews, nil
}

func reviewFromDocument(doc store.Document, now time.Time) domain.Review {
	f := doc.Fields
	return domain.Review{
		ID:        doc.ID,
		CoffeeID:  str(f, fieldCoffeeID),
		UserID:    str(f, fieldUserID),
		UserName:  str(f, fieldUserName),
		UserPhoto: str(f, fieldUserPhoto),
		Rating:    integer(f, fieldRating),
		Text:      str(f, fieldText),
		CreatedAt: ParseTimestamp(f[fieldCreatedAt]).OrNow(now),
	}
}
