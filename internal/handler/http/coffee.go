package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/omendivilg/CoffeeBox/internal/service"
	"github.com/omendivilg/CoffeeBox/pkg/httputil"
	"github.com/omendivilg/CoffeeBox/pkg/logger"
)

// maxSearchLength bounds the q parameter.
const maxSearchLength = 100

// CoffeeService is what the coffee endpoints need from the service layer.
type CoffeeService interface {
	ListShops(ctx context.Context, search string) (*service.ShopList, error)
	GetShop(ctx context.Context, id string) (*service.ShopDetail, error)
}

// CoffeeHandler serves the listing and shop detail endpoints.
type CoffeeHandler struct {
	service CoffeeService
	logger  *slog.Logger
}

// NewCoffeeHandler creates a new coffee HTTP handler.
func NewCoffeeHandler(svc CoffeeService, logger *slog.Logger) *CoffeeHandler {
	return &CoffeeHandler{service: svc, logger: logger}
}

// List handles GET /api/v1/coffees?q=
func (h *CoffeeHandler) List(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(search) > maxSearchLength {
		search = search[:maxSearchLength]
	}

	list, err := h.service.ListShops(r.Context(), search)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, list.Shops, &httputil.Meta{Degraded: list.Degraded, Notice: list.Notice})
}

// Get handles GET /api/v1/coffees/{id}
func (h *CoffeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.RequireParam(w, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx := logger.WithCoffeeID(r.Context(), id)

	detail, err := h.service.GetShop(ctx, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, detail, &httputil.Meta{Degraded: detail.Degraded, Notice: detail.Notice})
}
