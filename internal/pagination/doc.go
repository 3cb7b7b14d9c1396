// Package pagination implements paginated, cached reads over a collection.
//
// Paginate clamps the requested page size, derives a deterministic cache key
// from the filter, sort and page, serves the page from the cache when
// possible and otherwise counts and fetches concurrently before caching the
// result for a short TTL. Cache failures are logged and never returned.
//
// Nothing in this package invalidates cached pages on writes; callers that
// need fresh reads call ClearCache for the collection they mutated.
package pagination
