package domain

import (
	"time"

	"github.com/google/uuid"
)

// Author of one or more books. Deleting an author is restricted while any
// book still references them.
type Author struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Bio       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
