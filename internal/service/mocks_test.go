package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/reconcile"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock CoffeeReader ---

type mockCoffees struct {
	mock.Mock
}

func (m *mockCoffees) Get(ctx context.Context, id string) (*domain.CoffeeShop, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CoffeeShop), args.Error(1)
}

func (m *mockCoffees) ListTopRated(ctx context.Context, limit int) ([]domain.CoffeeShop, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CoffeeShop), args.Error(1)
}

// --- Mock ReviewStore ---

type mockReviews struct {
	mock.Mock
}

func (m *mockReviews) Create(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockReviews) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Review), args.Error(1)
}

// --- Mock Reconciler ---

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) ReconcileShop(ctx context.Context, shop domain.CoffeeShop) (reconcile.Result, error) {
	args := m.Called(ctx, shop)
	return args.Get(0).(reconcile.Result), args.Error(1)
}

func (m *mockReconciler) ReconcileMany(ctx context.Context, shops []domain.CoffeeShop) []reconcile.Result {
	args := m.Called(ctx, shops)
	return args.Get(0).([]reconcile.Result)
}

func (m *mockReconciler) ApplyIncrementalReview(ctx context.Context, shop domain.CoffeeShop, review domain.Review) domain.CoffeeShop {
	args := m.Called(ctx, shop, review)
	return args.Get(0).(domain.CoffeeShop)
}

// --- Mock EventPublisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishReviewSubmitted(ctx context.Context, review domain.Review, shop domain.CoffeeShop) error {
	args := m.Called(ctx, review, shop)
	return args.Error(0)
}
