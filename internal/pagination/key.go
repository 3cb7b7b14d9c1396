package pagination

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Namespace prefixes every cache key written by the paginator.
const Namespace = "paginate"

// CollectionPattern selects every cached page of a collection.
func CollectionPattern(collection string) string {
	return Namespace + ":" + collection + ":*"
}

// CacheKey builds the deterministic cache key for a page. Map keys in the
// filter are serialized in sorted order, so logically equal filters built in
// a different insertion order share a key.
func CacheKey(collection string, q Query, limit, page int) (string, error) {
	where, err := canonical(q.Where)
	if err != nil {
		return "", fmt.Errorf("serialize where: %w", err)
	}

	orderBy := ""
	if len(q.OrderBy) > 0 {
		if orderBy, err = canonical(q.OrderBy); err != nil {
			return "", fmt.Errorf("serialize orderBy: %w", err)
		}
	}

	parts := []string{Namespace, collection}
	if q.CacheKeyPrefix != "" {
		parts = append(parts, q.CacheKeyPrefix)
	}
	parts = append(parts, where, orderBy)
	if len(q.Include) > 0 {
		include := append([]string(nil), q.Include...)
		sort.Strings(include)
		parts = append(parts, "include="+strings.Join(include, ","))
	}
	parts = append(parts, fmt.Sprintf("limit=%d", limit), fmt.Sprintf("page=%d", page))

	return strings.Join(parts, ":"), nil
}

// canonical relies on encoding/json emitting map keys in sorted order.
func canonical(v any) (string, error) {
	if w, ok := v.(Where); ok && w == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
