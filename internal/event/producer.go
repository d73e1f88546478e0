package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omendivilg/CoffeeBox/internal/domain"
	pkgkafka "github.com/omendivilg/CoffeeBox/pkg/kafka"
	"github.com/omendivilg/CoffeeBox/pkg/logger"
)

// Kafka topics for CoffeeBox domain events.
var (
	TopicReviewSubmitted    = pkgkafka.Topic("review", "submitted")
	TopicAggregateCorrected = pkgkafka.Topic("coffee", "aggregate_corrected")
)

// Event types carried in the envelope.
const (
	TypeReviewSubmitted    = "review.submitted"
	TypeAggregateCorrected = "coffee.aggregate_corrected"
)

// AggregateTypeCoffee keys every event by coffee shop.
const AggregateTypeCoffee = "coffee"

// Source identifies events published by this service.
const Source = "coffeebox-api"

// ReviewSubmittedData is the payload of review.submitted.
type ReviewSubmittedData struct {
	ReviewID  string           `json:"review_id"`
	CoffeeID  string           `json:"coffee_id"`
	UserID    string           `json:"user_id"`
	Rating    int              `json:"rating"`
	Aggregate domain.Aggregate `json:"aggregate"`
}

// AggregateCorrectedData is the payload of coffee.aggregate_corrected.
type AggregateCorrectedData struct {
	CoffeeID string           `json:"coffee_id"`
	Previous domain.Aggregate `json:"previous"`
	Current  domain.Aggregate `json:"current"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes CoffeeBox domain events. A Producer without a
// publisher drops events, which is how EVENTS_ENABLED=false is wired.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a producer. publisher may be nil.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// PublishReviewSubmitted announces a new review along with the aggregate
// written by the submission path.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, review domain.Review, shop domain.CoffeeShop) error {
	return p.publish(ctx, TopicReviewSubmitted, TypeReviewSubmitted, review.CoffeeID, ReviewSubmittedData{
		ReviewID:  review.ID,
		CoffeeID:  review.CoffeeID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Aggregate: shop.Aggregate(),
	})
}

// PublishAggregateCorrected announces a corrective write.
func (p *Producer) PublishAggregateCorrected(ctx context.Context, shop domain.CoffeeShop, previous domain.Aggregate) error {
	return p.publish(ctx, TopicAggregateCorrected, TypeAggregateCorrected, shop.ID, AggregateCorrectedData{
		CoffeeID: shop.ID,
		Previous: previous,
		Current:  shop.Aggregate(),
	})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, coffeeID string, data any) error {
	if p == nil || p.publisher == nil {
		return nil
	}

	evt, err := pkgkafka.NewEvent(eventType, coffeeID, AggregateTypeCoffee, Source, data)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("event_type", eventType),
		slog.String("event_id", evt.EventID),
		slog.String("coffee_id", coffeeID),
	)
	return nil
}
