package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/store"
	"github.com/omendivilg/CoffeeBox/internal/store/memory"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

func TestCoffeeRepository_Get(t *testing.T) {
	s := memory.New()
	s.Put(store.CollectionCoffees, "c1", map[string]any{
		"name":          "Blue Door",
		"location":      "Mission",
		"tags":          []any{"espresso", 7, "wifi"},
		"averageRating": 4.5,
		"reviewCount":   float64(2),
		"totalRating":   9,
		"createdAt":     "2024-01-02T03:04:05Z",
	})
	repo := NewCoffeeRepository(s)

	shop, err := repo.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Door", shop.Name)
	assert.Equal(t, []string{"espresso", "wifi"}, shop.Tags)
	assert.Equal(t, domain.Aggregate{Count: 2, Total: 9, Average: 4.5}, shop.Aggregate())
	require.NotNil(t, shop.CreatedAt)
	assert.Equal(t, 2024, shop.CreatedAt.Year())
}

func TestCoffeeRepository_GetMissingFieldsDefault(t *testing.T) {
	s := memory.New()
	s.Put(store.CollectionCoffees, "bare", map[string]any{})
	repo := NewCoffeeRepository(s)

	shop, err := repo.Get(context.Background(), "bare")
	require.NoError(t, err)
	assert.Equal(t, []string{}, shop.Tags)
	assert.Equal(t, domain.Aggregate{}, shop.Aggregate())
	assert.Nil(t, shop.CreatedAt)
}

func TestCoffeeRepository_GetNotFound(t *testing.T) {
	repo := NewCoffeeRepository(memory.New())

	_, err := repo.Get(context.Background(), "nope")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCoffeeRepository_ListTopRated(t *testing.T) {
	s := memory.New()
	s.Put(store.CollectionCoffees, "a", map[string]any{"name": "A", "averageRating": 3.0})
	s.Put(store.CollectionCoffees, "b", map[string]any{"name": "B", "averageRating": 4.9})
	s.Put(store.CollectionCoffees, "c", map[string]any{"name": "C", "averageRating": 4.1})
	repo := NewCoffeeRepository(s)

	shops, err := repo.ListTopRated(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, shops, 2)
	assert.Equal(t, "B", shops[0].Name)
	assert.Equal(t, "C", shops[1].Name)
}

func TestCoffeeRepository_ListTopRatedDegraded(t *testing.T) {
	repo := NewCoffeeRepository(memory.New(memory.WithIndexes()))

	_, err := repo.ListTopRated(context.Background(), 20)
	assert.ErrorIs(t, err, store.ErrDegradedQuery)
}

func TestCoffeeRepository_UpdateAggregateIsPartial(t *testing.T) {
	s := memory.New()
	s.Put(store.CollectionCoffees, "c1", map[string]any{"name": "Blue Door", "reviewCount": 1})
	repo := NewCoffeeRepository(s)

	require.NoError(t, repo.UpdateAggregate(context.Background(), "c1", domain.Aggregate{Count: 4, Total: 17, Average: 4.25}))

	shop, err := repo.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Door", shop.Name)
	assert.Equal(t, domain.Aggregate{Count: 4, Total: 17, Average: 4.25}, shop.Aggregate())

	err = repo.UpdateAggregate(context.Background(), "missing", domain.Aggregate{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReviewRepository_CreateAndList(t *testing.T) {
	s := memory.New()
	repo := NewReviewRepository(s)
	ctx := context.Background()
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	review := &domain.Review{CoffeeID: "c1", UserID: "u1", UserName: "Ada", Rating: 5, Text: "great", CreatedAt: created}
	require.NoError(t, repo.Create(ctx, review))
	require.NotEmpty(t, review.ID)
	require.NoError(t, repo.Create(ctx, &domain.Review{CoffeeID: "c2", UserID: "u1", Rating: 3, CreatedAt: created}))

	byCoffee, err := repo.ListByCoffee(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, byCoffee, 1)
	assert.Equal(t, review.ID, byCoffee[0].ID)
	assert.Equal(t, "Ada", byCoffee[0].UserName)
	assert.Equal(t, created, byCoffee[0].CreatedAt)

	byUser, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
}

func TestReviewRepository_MissingCreatedAtDefaultsToNow(t *testing.T) {
	s := memory.New()
	s.Put(store.CollectionReviews, "r1", map[string]any{"coffeeId": "c1", "rating": 4})
	s.Put(store.CollectionReviews, "r2", map[string]any{"coffeeId": "c1", "rating": 2, "createdAt": "not a date"})
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewReviewRepository(s)
	repo.now = func() time.Time { return now }

	reviews, err := repo.ListByCoffee(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	for _, r := range reviews {
		assert.Equal(t, now, r.CreatedAt, r.ID)
	}
}

func TestReviewRepository_DegradedQuery(t *testing.T) {
	repo := NewReviewRepository(memory.New(memory.WithIndexes("idx_reviews_userid")))

	_, err := repo.ListByCoffee(context.Background(), "c1")
	assert.ErrorIs(t, err, store.ErrDegradedQuery)
	assert.True(t, apperrors.IsDegraded(err))

	_, err = repo.ListByUser(context.Background(), "u1")
	assert.NoError(t, err)
}
