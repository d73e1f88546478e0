// Package store defines the document store the rest of the service is
// written against. Backends live in the memory and postgres subpackages.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

// Collection names.
const (
	CollectionCoffees = "coffees"
	CollectionReviews = "reviews"
)

var (
	// ErrNotFound is returned by Get and Update for an unknown id.
	ErrNotFound = fmt.Errorf("document %w", apperrors.ErrNotFound)

	// ErrDegradedQuery is returned by Query when the filter/order combination
	// needs an index that has not been provisioned yet. Callers must not
	// retry; the documents exist but cannot be reached through this query.
	ErrDegradedQuery = fmt.Errorf("query needs an index that is not ready: %w", apperrors.ErrDegradedQuery)
)

// Document is a stored record. Fields never contains the id.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Order sorts results by a top-level field.
type Order struct {
	Field      string
	Descending bool
}

// Query selects documents from one collection. Zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy *Order
	Limit   int
}

// Where returns a query with an added equality filter.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Sort returns a query ordered by field.
func (q Query) Sort(field string, descending bool) Query {
	q.OrderBy = &Order{Field: field, Descending: descending}
	return q
}

// Take returns a query limited to n documents.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// DocumentStore is the persistence contract. Update merges: only the named
// fields change.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Insert(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidField reports whether name can be used as a filter or order field.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// Validate checks field names and the limit.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if !ValidField(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
	}
	if q.OrderBy != nil && !ValidField(q.OrderBy.Field) {
		return fmt.Errorf("invalid order field %q", q.OrderBy.Field)
	}
	if q.Limit < 0 {
		return fmt.Errorf("invalid limit %d", q.Limit)
	}
	return nil
}

// RequiredIndex names the index a query depends on, or "" for a plain scan
// of the collection. Filter fields come first in the order given, followed
// by the order field:
//
//	reviews where coffeeId == x           -> idx_reviews_coffeeid
//	coffees order by averageRating desc   -> idx_coffees_averagerating
func RequiredIndex(collection string, q Query) string {
	parts := make([]string, 0, len(q.Filters)+1)
	for _, f := range q.Filters {
		parts = append(parts, strings.ToLower(f.Field))
	}
	if q.OrderBy != nil {
		field := strings.ToLower(q.OrderBy.Field)
		if len(parts) == 0 || parts[len(parts)-1] != field {
			parts = append(parts, field)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "idx_" + strings.ToLower(collection) + "_" + strings.Join(parts, "_")
}

// DefaultIndexes are the indexes the service's own queries need. The
// Postgres migrations create them and the memory store provisions them
// unless told otherwise.
var DefaultIndexes = []string{
	"idx_coffees_averagerating",
	"idx_reviews_coffeeid",
	"idx_reviews_userid",
}
