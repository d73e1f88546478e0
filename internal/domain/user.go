package domain

// User is the caller as reported by the identity provider. It is never
// persisted by this service.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// AuthorName returns the name stored on the user's reviews.
func (u User) AuthorName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return AnonymousName
}
