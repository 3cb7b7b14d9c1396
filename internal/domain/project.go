package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project groups tasks. Every task belongs to exactly one project.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tag is a free-form label attached to tasks.
type Tag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
