package pagination

import (
	"context"
	"encoding/json"
)

// Where is a conjunction of predicates keyed by field name. Values are
// matched by equality unless they are a Range or Contains. A nil value
// matches rows where the field is null.
type Where map[string]any

// Range is an inclusive bound on a field. Either side may be nil.
type Range struct {
	Gte any `json:"gte,omitempty"`
	Lte any `json:"lte,omitempty"`
}

// Contains matches rows whose field contains the value, case-insensitively.
type Contains string

// MarshalJSON keeps Contains distinct from an equality match in cache keys.
func (c Contains) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"contains": string(c)})
}

// Direction is the sort direction of an Order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order sorts by one field.
type Order struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// FindArgs is what a Collection receives for a page fetch.
type FindArgs struct {
	Where   Where
	Include []string
	OrderBy []Order
	Skip    int
	Take    int
}

// Collection is a backing store that can count and fetch filtered rows.
type Collection[T any] interface {
	Count(ctx context.Context, where Where) (int, error)
	FindMany(ctx context.Context, args FindArgs) ([]T, error)
}

// Query describes one paginated read. Zero Page and Limit select the defaults.
type Query struct {
	Where   Where
	Include []string
	OrderBy []Order
	Page    int
	Limit   int

	// CacheKeyPrefix, when set, is added to the cache key after the collection name.
	CacheKeyPrefix string
}

// Meta describes the page returned.
type Meta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

// Page is the envelope returned by Paginate.
type Page[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// NewMeta computes the page metadata, with TotalPages = ceil(total/perPage).
func NewMeta(total, page, perPage int) Meta {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return Meta{
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}
