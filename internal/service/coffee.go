// Package service implements the operations behind the HTTP API.
package service

import (
	"context"
	"log/slog"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

// DefaultListingLimit caps the number of shops on the listing.
const DefaultListingLimit = 20

// ShopList is the listing page.
type ShopList struct {
	Shops    []domain.CoffeeShop `json:"shops"`
	Degraded bool                `json:"-"`
	Notice   string              `json:"-"`
}

// ShopDetail is a single shop with its reviews, newest first.
type ShopDetail struct {
	Shop     domain.CoffeeShop `json:"shop"`
	Reviews  []domain.Review   `json:"reviews"`
	Degraded bool              `json:"-"`
	Notice   string            `json:"-"`
}

// CoffeeService serves the listing and detail pages.
type CoffeeService struct {
	coffees      CoffeeReader
	reconciler   Reconciler
	listingLimit int
	logger       *slog.Logger
}

// NewCoffeeService creates a CoffeeService. A non-positive listingLimit
// uses DefaultListingLimit.
func NewCoffeeService(coffees CoffeeReader, reconciler Reconciler, listingLimit int, logger *slog.Logger) *CoffeeService {
	if listingLimit <= 0 {
		listingLimit = DefaultListingLimit
	}
	return &CoffeeService{
		coffees:      coffees,
		reconciler:   reconciler,
		listingLimit: listingLimit,
		logger:       logger,
	}
}

// ListShops returns the top rated shops with reconciled aggregates,
// filtered by search. Ordering follows the stored ratings; corrections
// found during this call do not reorder the page.
func (s *CoffeeService) ListShops(ctx context.Context, search string) (*ShopList, error) {
	shops, err := s.coffees.ListTopRated(ctx, s.listingLimit)
	if err != nil {
		if apperrors.IsDegraded(err) {
			s.logger.WarnContext(ctx, "coffee listing degraded", slog.String("error", err.Error()))
			return &ShopList{Shops: []domain.CoffeeShop{}, Degraded: true, Notice: NoticeListingUnavailable}, nil
		}
		return nil, apperrors.Unavailable("coffee shops are temporarily unavailable", err)
	}

	results := s.reconciler.ReconcileMany(ctx, shops)

	list := &ShopList{Shops: make([]domain.CoffeeShop, 0, len(results))}
	for _, res := range results {
		if !res.Shop.MatchesSearch(search) {
			continue
		}
		list.Shops = append(list.Shops, res.Shop)
		if res.Degraded() && !list.Degraded {
			list.Degraded = true
			list.Notice = NoticeReviewsUnavailable
		}
	}
	return list, nil
}

// GetShop returns the shop, its reviews newest first, and the reconciled
// aggregate. When the reviews cannot be read the stored aggregate is shown
// with a degraded notice instead of failing the page.
func (s *CoffeeService) GetShop(ctx context.Context, id string) (*ShopDetail, error) {
	shop, err := s.coffees.Get(ctx, id)
	if err != nil {
		return nil, shopLookupError(err)
	}

	res, err := s.reconciler.ReconcileShop(ctx, *shop)
	if err != nil {
		s.logger.WarnContext(ctx, "shop detail served without reviews",
			slog.String("coffee_id", id),
			slog.String("error", err.Error()),
		)
	}

	detail := &ShopDetail{Shop: res.Shop, Reviews: res.Reviews}
	if detail.Reviews == nil {
		detail.Reviews = []domain.Review{}
	}
	if res.Degraded() {
		detail.Degraded = true
		detail.Notice = NoticeReviewsUnavailable
	}
	return detail, nil
}
