package domain

import (
	"slices"
	"time"
)

// Rating bounds and limits for submitted reviews.
const (
	MinRating     = 1
	MaxRating     = 5
	MaxTextLength = 2000
)

// AnonymousName is stored as the author name when the user has none.
const AnonymousName = "Anonymous"

// Review is a single user's rating of a coffee shop. UserName and UserPhoto
// are a snapshot taken at submission and are never updated afterwards.
type Review struct {
	ID        string    `json:"id"`
	CoffeeID  string    `json:"coffeeId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserPhoto string    `json:"userPhoto"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SortNewestFirst orders reviews by CreatedAt descending in place. Reviews
// with equal timestamps keep their relative order.
func SortNewestFirst(reviews []Review) {
	slices.SortStableFunc(reviews, func(a, b Review) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
