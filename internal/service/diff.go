package service

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
)

// Field names used as keys of an activity's changes.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldPriority    = "priority"
	FieldDueDate     = "dueDate"
	FieldProjectID   = "projectId"
	FieldAssigneeID  = "assigneeId"
	FieldTagIDs      = "tagIds"
)

// snapshot holds the diffable values of a task in their recorded form:
// strings, RFC 3339 times, sorted id strings, or nil for absent values.
type snapshot map[string]any

func snapshotOf(t *domain.Task) snapshot {
	return snapshot{
		FieldTitle:       t.Title,
		FieldDescription: stringValue(t.Description),
		FieldStatus:      string(t.Status),
		FieldPriority:    string(t.Priority),
		FieldDueDate:     timeValue(t.DueDate),
		FieldProjectID:   t.ProjectID.String(),
		FieldAssigneeID:  idValue(t.AssigneeID),
		FieldTagIDs:      t.SortedTagIDs(),
	}
}

var snapshotFields = []string{
	FieldTitle, FieldDescription, FieldStatus, FieldPriority,
	FieldDueDate, FieldProjectID, FieldAssigneeID, FieldTagIDs,
}

// createdChanges records every field as new-only.
func createdChanges(t *domain.Task) domain.Changes {
	s := snapshotOf(t)
	changes := make(domain.Changes, len(s))
	for _, f := range snapshotFields {
		changes[f] = domain.NewOnly(s[f])
	}
	return changes
}

// deletedChanges records every field as old-only.
func deletedChanges(t *domain.Task) domain.Changes {
	s := snapshotOf(t)
	changes := make(domain.Changes, len(s))
	for _, f := range snapshotFields {
		changes[f] = domain.OldOnly(s[f])
	}
	return changes
}

// updatedChanges diffs only the fields present in touched. Tag ids are
// compared as sets.
func updatedChanges(before, after *domain.Task, touched []string) domain.Changes {
	old, cur := snapshotOf(before), snapshotOf(after)
	changes := domain.Changes{}
	for _, f := range touched {
		if equalValues(old[f], cur[f]) {
			continue
		}
		changes[f] = domain.Diff(old[f], cur[f])
	}
	return changes
}

func equalValues(a, b any) bool {
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok && bok {
		return slices.Equal(as, bs)
	}
	return a == b
}

func stringValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func idValue(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
