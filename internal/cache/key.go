package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Key joins a category and its parameters: Key("user-events", "alice") is
// "user-events:alice".
func Key(category string, params ...any) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, category)
	for _, p := range params {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ":")
}

// TokenHash derives a short partition id from the first 10 characters of a
// token. It only keeps cache entries for different tokens apart and is not
// a security measure.
func TokenHash(token string) string {
	var hash int32
	for i, r := range []rune(token) {
		if i >= 10 {
			break
		}
		hash = (hash << 5) - hash + int32(r)
	}

	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return strconv.FormatInt(h, 36)
}
