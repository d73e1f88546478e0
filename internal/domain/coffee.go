package domain

import (
	"strings"
	"time"
)

// CoffeeShop is a shop listed in the catalogue. ReviewCount, TotalRating
// and AverageRating are derived from the shop's reviews and only eventually
// consistent with them.
type CoffeeShop struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Location      string     `json:"location"`
	Description   string     `json:"description"`
	ImageURL      string     `json:"imageUrl"`
	Tags          []string   `json:"tags"`
	AverageRating float64    `json:"averageRating"`
	ReviewCount   int        `json:"reviewCount"`
	TotalRating   float64    `json:"totalRating"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
}

// Aggregate is the derived rating summary stored on a CoffeeShop.
type Aggregate struct {
	Count   int     `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

// Aggregate returns the stored aggregate.
func (c CoffeeShop) Aggregate() Aggregate {
	return Aggregate{Count: c.ReviewCount, Total: c.TotalRating, Average: c.AverageRating}
}

// WithAggregate returns a copy of the shop carrying a.
func (c CoffeeShop) WithAggregate(a Aggregate) CoffeeShop {
	c.ReviewCount = a.Count
	c.TotalRating = a.Total
	c.AverageRating = a.Average
	return c
}

// ComputeAggregate folds reviews into an aggregate. An empty set yields the
// zero aggregate.
func ComputeAggregate(reviews []Review) Aggregate {
	var a Aggregate
	for _, r := range reviews {
		a.Count++
		a.Total += float64(r.Rating)
	}
	if a.Count > 0 {
		a.Average = a.Total / float64(a.Count)
	}
	return a
}

// Add returns the aggregate after one more rating, trusting the current
// count and total.
func (a Aggregate) Add(rating int) Aggregate {
	a.Count++
	a.Total += float64(rating)
	a.Average = a.Total / float64(a.Count)
	return a
}

// MatchesSearch reports whether term occurs, case-insensitively, in the
// shop's name, location or any of its tags. An empty term matches.
func (c CoffeeShop) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), term) ||
		strings.Contains(strings.ToLower(c.Location), term) {
		return true
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}
