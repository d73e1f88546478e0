package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/store"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

// CoffeeRepository maps coffee shop documents.
type CoffeeRepository struct {
	store store.DocumentStore
}

// NewCoffeeRepository creates a repository over s.
func NewCoffeeRepository(s store.DocumentStore) *CoffeeRepository {
	return &CoffeeRepository{store: s}
}

// Get returns the shop with id, or a NOT_FOUND AppError.
func (r *CoffeeRepository) Get(ctx context.Context, id string) (*domain.CoffeeShop, error) {
	doc, err := r.store.Get(ctx, store.CollectionCoffees, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("coffee shop", id)
		}
		return nil, fmt.Errorf("get coffee shop %s: %w", id, err)
	}
	shop := coffeeFromDocument(doc)
	return &shop, nil
}

// ListTopRated returns up to limit shops, best rated first.
func (r *CoffeeRepository) ListTopRated(ctx context.Context, limit int) ([]domain.CoffeeShop, error) {
	docs, err := r.store.Query(ctx, store.CollectionCoffees,
		store.Query{}.Sort(fieldAverageRating, true).Take(limit))
	if err != nil {
		return nil, fmt.Errorf("list coffee shops: %w", err)
	}

	shops := make([]domain.CoffeeShop, 0, len(docs))
	for _, doc := range docs {
		shops = append(shops, coffeeFromDocument(doc))
	}
	return shops, nil
}

// UpdateAggregate writes only the three aggregate fields.
func (r *CoffeeRepository) UpdateAggregate(ctx context.Context, id string, a domain.Aggregate) error {
	err := r.store.Update(ctx, store.CollectionCoffees, id, map[string]any{
		fieldReviewCount:   a.Count,
		fieldTotalRating:   a.Total,
		fieldAverageRating: a.Average,
	})
	if err != nil {
		return fmt.Errorf("update aggregate for %s: %w", id, err)
	}
	return nil
}

func coffeeFromDocument(doc store.Document) domain.CoffeeShop {
	f := doc.Fields
	shop := domain.CoffeeShop{
		ID:            doc.ID,
		Name:          str(f, fieldName),
		Location:      str(f, fieldLocation),
		Description:   str(f, fieldDescription),
		ImageURL:      str(f, fieldImageURL),
		Tags:          stringList(f, fieldTags),
		AverageRating: float(f, fieldAverageRating),
		ReviewCount:   integer(f, fieldReviewCount),
		TotalRating:   float(f, fieldTotalRating),
	}
	if ts := ParseTimestamp(f[fieldCreatedAt]); ts.Kind != TimestampMissing {
		shop.CreatedAt = &ts.Time
	}
	return shop
}
