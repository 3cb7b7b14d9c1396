package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActivityAction identifies what happened to a task
type ActivityAction string

// Possible activity actions
const (
	ActivityCreated    ActivityAction = "created"
	ActivityUpdated    ActivityAction = "updated"
	ActivityDeleted    ActivityAction = "deleted"
	ActivityTagAdded   ActivityAction = "tag_added"
	ActivityTagRemoved ActivityAction = "tag_removed"
)

// Common validation errors for Activity
var (
	ErrEmptyActivityTaskID = errors.New("activity task ID cannot be empty")
	ErrEmptyActivityUserID = errors.New("activity user ID cannot be empty")
)

// IsValid reports whether a is one of the known actions.
func (a ActivityAction) IsValid() bool {
	switch a {
	case ActivityCreated, ActivityUpdated, ActivityDeleted, ActivityTagAdded, ActivityTagRemoved:
		return true
	}
	return false
}

// Change is the before/after pair recorded for one field.
// Either side may be absent: a missing Old means the field had no prior
// value, a missing New means it was cleared. A present side may still hold nil.
type Change struct {
	Old    any
	New    any
	HasOld bool
	HasNew bool
}

// NewOnly records a value that did not exist before.
func NewOnly(v any) Change {
	return Change{New: v, HasNew: true}
}

// OldOnly records a value that no longer exists.
func OldOnly(v any) Change {
	return Change{Old: v, HasOld: true}
}

// Diff records a transition from old to new.
func Diff(old, new any) Change {
	return Change{Old: old, New: new, HasOld: true, HasNew: true}
}

// MarshalJSON writes only the sides that are present.
func (c Change) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 2)
	if c.HasOld {
		m["old"] = c.Old
	}
	if c.HasNew {
		m["new"] = c.New
	}
	return json.Marshal(m)
}

// UnmarshalJSON keeps track of which sides were present, including explicit nulls.
func (c *Change) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Change{}
	if v, ok := raw["old"]; ok {
		c.HasOld = true
		if err := json.Unmarshal(v, &c.Old); err != nil {
			return err
		}
	}
	if v, ok := raw["new"]; ok {
		c.HasNew = true
		if err := json.Unmarshal(v, &c.New); err != nil {
			return err
		}
	}
	return nil
}

// Changes maps a field name to its recorded change.
type Changes map[string]Change

// Activity is an append-only audit record of one change set to one task.
// TaskTitle and UserName are snapshots taken at write time.
type Activity struct {
	ID        uuid.UUID      `json:"id"`
	TaskID    uuid.UUID      `json:"taskId"`
	TaskTitle string         `json:"taskTitle"`
	UserID    uuid.UUID      `json:"userId"`
	UserName  string         `json:"userName"`
	Action    ActivityAction `json:"action"`
	Changes   Changes        `json:"changes"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewActivity creates an Activity with a fresh ID and creation time.
func NewActivity(
	taskID, userID uuid.UUID,
	action ActivityAction,
	changes Changes,
	taskTitle, userName string,
) (*Activity, error) {
	if changes == nil {
		changes = Changes{}
	}
	activity := &Activity{
		ID:        uuid.New(),
		TaskID:    taskID,
		TaskTitle: taskTitle,
		UserID:    userID,
		UserName:  userName,
		Action:    action,
		Changes:   changes,
		CreatedAt: time.Now().UTC(),
	}

	if err := activity.Validate(); err != nil {
		return nil, err
	}

	return activity, nil
}

// Validate checks if the Activity has valid data.
func (a *Activity) Validate() error {
	if a.TaskID == uuid.Nil {
		return ErrEmptyActivityTaskID
	}
	if a.UserID == uuid.Nil {
		return ErrEmptyActivityUserID
	}
	if !a.Action.IsValid() {
		return ErrInvalidActivityAction
	}
	return nil
}
