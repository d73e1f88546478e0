package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omendivilg/CoffeeBox/internal/config"
	"github.com/omendivilg/CoffeeBox/internal/domain"
	"github.com/omendivilg/CoffeeBox/internal/identity"
	"github.com/omendivilg/CoffeeBox/internal/reconcile"
)

const testSecret = "app-test-secret-that-is-long-enough"

func memoryConfig() *config.Config {
	return &config.Config{
		Environment:           "development",
		HTTPPort:              0,
		HTTPReadTimeout:       time.Second,
		HTTPWriteTimeout:      time.Second,
		HTTPShutdownTimeout:   time.Second,
		StoreDriver:           config.StoreDriverMemory,
		JWTSecret:             testSecret,
		ListingLimit:          20,
		ReconcileTolerance:    0.1,
		ReconcileConcurrency:  2,
		ReconcileWriteTimeout: time.Second,
		CORSAllowedOrigins:    []string{"*"},
	}
}

func newMemoryApp(t *testing.T) *App {
	t.Helper()
	a, err := NewApp(memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func serve(a *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_MemoryStore(t *testing.T) {
	a := newMemoryApp(t)

	assert.Nil(t, a.pool)
	assert.Nil(t, a.producer)
	assert.Nil(t, a.consumer)
	assert.Equal(t, ":0", a.httpServer.Addr)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/api/v1/coffees", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestNewApp_SubmitToUnknownShop(t *testing.T) {
	a := newMemoryApp(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		Name: "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/coffees/nope/reviews", strings.NewReader(`{"rating":5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	rec := serve(a, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewApp_ProfileRequiresAuth(t *testing.T) {
	a := newMemoryApp(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/v1/me/reviews", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestShutdown_Idempotent(t *testing.T) {
	a, err := NewApp(memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.NoError(t, a.Shutdown())
	assert.NoError(t, a.closeResources())
}

type staticReviews []domain.Review

func (s staticReviews) ListByCoffee(context.Context, string) ([]domain.Review, error) {
	return s, nil
}

// slowWriter records aggregate writes after a short delay.
type slowWriter struct {
	mu     sync.Mutex
	writes []string
}

func (w *slowWriter) UpdateAggregate(_ context.Context, coffeeID string, _ domain.Aggregate) error {
	time.Sleep(50 * time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, coffeeID)
	return nil
}

func (w *slowWriter) written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.writes...)
}

// lateConsumer finishes handling one message only after it has been asked
// to stop, the way a consumer mid-message behaves at shutdown.
type lateConsumer struct {
	started chan struct{}
	handle  func(context.Context)
	closed  atomic.Bool
}

func (c *lateConsumer) Start(ctx context.Context) error {
	close(c.started)
	<-ctx.Done()
	c.handle(ctx)
	return ctx.Err()
}

func (c *lateConsumer) Close() error {
	c.closed.Store(true)
	return nil
}

func TestShutdown_DrainsConsumerBeforeWaitingOnWrites(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := NewApp(memoryConfig(), logger)
	require.NoError(t, err)

	writer := &slowWriter{}
	a.reconciler = reconcile.New(staticReviews{{ID: "r1", CoffeeID: "c1", Rating: 5}}, writer, nil,
		reconcile.Config{WriteTimeout: time.Second}, logger)

	consumer := &lateConsumer{started: make(chan struct{})}
	consumer.handle = func(ctx context.Context) {
		res, err := a.reconciler.ReconcileShop(ctx, domain.CoffeeShop{ID: "c1"})
		assert.NoError(t, err)
		assert.Equal(t, reconcile.StateCorrected, res.State)
	}
	a.consumer = consumer

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	select {
	case <-consumer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never started")
	}
	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, []string{"c1"}, writer.written())
	assert.True(t, consumer.closed.Load())
	assert.Nil(t, a.consumer)
}

func TestShutdown_StopsConsumerWhenServerFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := memoryConfig()
	cfg.HTTPPort = -1
	a, err := NewApp(cfg, logger)
	require.NoError(t, err)

	writer := &slowWriter{}
	a.reconciler = reconcile.New(staticReviews{{ID: "r1", CoffeeID: "c9", Rating: 4}}, writer, nil,
		reconcile.Config{WriteTimeout: time.Second}, logger)

	consumer := &lateConsumer{started: make(chan struct{})}
	consumer.handle = func(ctx context.Context) {
		_, _ = a.reconciler.ReconcileShop(ctx, domain.CoffeeShop{ID: "c9"})
	}
	a.consumer = consumer

	// The listen failure ends Run without the parent context being canceled.
	select {
	case err := <-runAsync(a):
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.True(t, consumer.closed.Load())
	assert.Equal(t, []string{"c9"}, writer.written())
}

func runAsync(a *App) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- a.Run(context.Background()) }()
	return ch
}
