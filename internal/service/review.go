package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

// Placeholders used when a profile review points at a shop that cannot be
// shown.
const (
	MissingShopName     = "Coffee Shop (Not Found)"
	UnknownShopName     = "Coffee Shop"
	UnknownShopLocation = "Unknown Location"
)

// SubmitReviewInput holds the parameters for a new review.
type SubmitReviewInput struct {
	CoffeeID string
	Rating   int
	Text     string
}

// SubmitResult is the stored review and the shop's updated aggregate.
type SubmitResult struct {
	Review domain.Review     `json:"review"`
	Shop   domain.CoffeeShop `json:"shop"`
}

// ProfileReview is a review joined with the shop it is about.
type ProfileReview struct {
	domain.Review
	CoffeeName     string `json:"coffeeName"`
	CoffeeLocation string `json:"coffeeLocation"`
}

// ProfileStats summarizes a user's reviews.
type ProfileStats struct {
	Count         int     `json:"count"`
	AverageRating float64 `json:"averageRating"`
}

// Profile is the signed-in user's review history, newest first.
type Profile struct {
	User     domain.User     `json:"user"`
	Reviews  []ProfileReview `json:"reviews"`
	Stats    ProfileStats    `json:"stats"`
	Degraded bool            `json:"-"`
	Notice   string          `json:"-"`
}

// ReviewService handles review submission and the profile page.
type ReviewService struct {
	reviews    ReviewStore
	coffees    CoffeeReader
	reconciler Reconciler
	events     EventPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewReviewService creates a ReviewService. events may be nil.
func NewReviewService(reviews ReviewStore, coffees CoffeeReader, reconciler Reconciler, events EventPublisher, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		reviews:    reviews,
		coffees:    coffees,
		reconciler: reconciler,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// SubmitReview stores a review by user and bumps the shop's aggregate
// incrementally. user must be non-nil; anonymous callers may only read.
func (s *ReviewService) SubmitReview(ctx context.Context, user *domain.User, input SubmitReviewInput) (*SubmitResult, error) {
	if user == nil || user.ID == "" {
		return nil, apperrors.Unauthorized("sign in to leave a review")
	}
	if input.CoffeeID == "" {
		return nil, apperrors.InvalidInput("coffee id is required")
	}
	if input.Rating < domain.MinRating || input.Rating > domain.MaxRating {
		return nil, apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}
	text := strings.TrimSpace(input.Text)
	if utf8.RuneCountInString(text) > domain.MaxTextLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("text must be at most %d characters", domain.MaxTextLength))
	}

	shop, err := s.coffees.Get(ctx, input.CoffeeID)
	if err != nil {
		return nil, shopLookupError(err)
	}

	review := domain.Review{
		CoffeeID:  shop.ID,
		UserID:    user.ID,
		UserName:  user.AuthorName(),
		UserPhoto: user.PhotoURL,
		Rating:    input.Rating,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.reviews.Create(ctx, &review); err != nil {
		return nil, apperrors.Unavailable("could not save your review, please try again", err)
	}

	updated := s.reconciler.ApplyIncrementalReview(ctx, *shop, review)

	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", review.ID),
		slog.String("coffee_id", review.CoffeeID),
		slog.String("user_id", review.UserID),
		slog.Int("rating", review.Rating),
	)

	if s.events != nil {
		if err := s.events.PublishReviewSubmitted(ctx, review, updated); err != nil {
			s.logger.WarnContext(ctx, "failed to publish review submitted event",
				slog.String("review_id", review.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &SubmitResult{Review: review, Shop: updated}, nil
}

// ListUserReviews returns the user's reviews joined with shop names. When
// the reviews cannot be queried an empty, degraded profile is returned.
func (s *ReviewService) ListUserReviews(ctx context.Context, user *domain.User) (*Profile, error) {
	if user == nil || user.ID == "" {
		return nil, apperrors.Unauthorized("sign in to see your reviews")
	}

	profile := &Profile{User: *user, Reviews: []ProfileReview{}}

	reviews, err := s.reviews.ListByUser(ctx, user.ID)
	if err != nil {
		if apperrors.IsDegraded(err) {
			s.logger.WarnContext(ctx, "profile reviews degraded",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			profile.Degraded = true
			profile.Notice = NoticeProfileUnavailable
			return profile, nil
		}
		return nil, apperrors.Unavailable("your reviews are temporarily unavailable", err)
	}

	domain.SortNewestFirst(reviews)

	shops := make(map[string]shopRef)
	var total float64
	for _, r := range reviews {
		ref, ok := shops[r.CoffeeID]
		if !ok {
			ref = s.lookupShop(ctx, r.CoffeeID)
			shops[r.CoffeeID] = ref
		}
		profile.Reviews = append(profile.Reviews, ProfileReview{
			Review:         r,
			CoffeeName:     ref.name,
			CoffeeLocation: ref.location,
		})
		total += float64(r.Rating)
	}

	profile.Stats.Count = len(reviews)
	if len(reviews) > 0 {
		profile.Stats.AverageRating = total / float64(len(reviews))
	}
	return profile, nil
}

type shopRef struct{ name, location string }

func (s *ReviewService) lookupShop(ctx context.Context, coffeeID string) shopRef {
	shop, err := s.coffees.Get(ctx, coffeeID)
	switch {
	case err == nil:
		return shopRef{shop.Name, shop.Location}
	case errors.Is(err, apperrors.ErrNotFound):
		return shopRef{MissingShopName, UnknownShopLocation}
	default:
		s.logger.WarnContext(ctx, "shop lookup for profile failed",
			slog.String("coffee_id", coffeeID),
			slog.String("error", err.Error()),
		)
		return shopRef{UnknownShopName, UnknownShopLocation}
	}
}
