package repository

// Document field names.
const (
	fieldName          = "name"
	fieldLocation      = "location"
	fieldDescription   = "description"
	fieldImageURL      = "imageUrl"
	fieldTags          = "tags"
	fieldAverageRating = "averageRating"
	fieldReviewCount   = "reviewCount"
	fieldTotalRating   = "totalRating"
	fieldCreatedAt     = "createdAt"

	fieldCoffeeID  = "coffeeId"
	fieldUserID    = "userId"
	fieldUserName  = "userName"
	fieldUserPhoto = "userPhoto"
	fieldRating    = "rating"
	fieldText      = "text"
)

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func number(m map[string]any, key string) (float64, bool) {
	switch n := m[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func float(m map[string]any, key string) float64 {
	n, _ := number(m, key)
	return n
}

func integer(m map[string]any, key string) int {
	n, _ := number(m, key)
	return int(n)
}

func stringList(m map[string]any, key string) []string {
	switch list := m[key].(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}
