// Package domain holds the task-tracking entities (tasks, activities, users,
// projects, tags) and the rules that keep them valid. It has no knowledge of
// storage or transport.
package domain
