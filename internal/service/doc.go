// Package service implements task mutations and the activity log on top of
// the interfaces in internal/store.
//
// TaskService validates references, persists the change, records an activity
// describing it and emits an event when a task gets a new assignee.
// ActivityService writes and reads activity records; listings go through the
// pagination cache.
//
// Store failures are wrapped in TaskServiceError or ActivityServiceError.
// Missing entities surface as NotFoundError so callers can report the id.
package service
