// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the task and activity services, so business rules stay independent of
// the database technology. Implementations live in internal/platform.
package store
