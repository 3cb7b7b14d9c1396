// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store and internal/job packages.
// It handles query building from pagination filters, query execution, and
// data mapping between domain entities and database records. The schema is
// managed by goose migrations embedded in this package.
package postgres
