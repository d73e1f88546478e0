package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/identity"
	"github.com/omendivilg/CoffeeBox/internal/service"
	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
	"github.com/omendivilg/CoffeeBox/pkg/httputil"
	"github.com/omendivilg/CoffeeBox/pkg/logger"
	"github.com/omendivilg/CoffeeBox/pkg/pagination"
	"github.com/omendivilg/CoffeeBox/pkg/validator"
)

// ReviewService is what the review endpoints need from the service layer.
type ReviewService interface {
	SubmitReview(ctx context.Context, user *domain.User, input service.SubmitReviewInput) (*service.SubmitResult, error)
	ListUserReviews(ctx context.Context, user *domain.User) (*service.Profile, error)
}

// ReviewHandler serves review submission and the profile page.
type ReviewHandler struct {
	service ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

// SubmitReviewRequest is the JSON request body for a new review.
type SubmitReviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Text   string `json:"text" validate:"max=2000"`
}

// ProfileResponse is the paginated profile page.
type ProfileResponse struct {
	User    domain.User                              `json:"user"`
	Stats   service.ProfileStats                     `json:"stats"`
	Reviews pagination.Result[service.ProfileReview] `json:"reviews"`
}

// Submit handles POST /api/v1/coffees/{id}/reviews
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("sign in to leave a review"), h.logger)
		return
	}

	coffeeID, ok := httputil.RequireParam(w, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req SubmitReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ctx := logger.WithCoffeeID(r.Context(), coffeeID)
	result, err := h.service.SubmitReview(ctx, user, service.SubmitReviewInput{
		CoffeeID: coffeeID,
		Rating:   req.Rating,
		Text:     req.Text,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, result, nil)
}

// ListMine handles GET /api/v1/me/reviews?page=&per_page=
func (h *ReviewHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("sign in to see your reviews"), h.logger)
		return
	}

	profile, err := h.service.ListUserReviews(r.Context(), user)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, ProfileResponse{
		User:    profile.User,
		Stats:   profile.Stats,
		Reviews: pagination.Paginate(profile.Reviews, pagination.FromRequest(r)),
	}, &httputil.Meta{Degraded: profile.Degraded, Notice: profile.Notice})
}
