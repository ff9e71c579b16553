package entity

import "time"

// RetentionPeriod is how long a soft-deleted conversation stays restorable.
const RetentionPeriod = 30 * 24 * time.Hour

type Conversation struct {
	ThreadId  string
	Title     *string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}

// ExpiresAt is when a deleted conversation becomes unrecoverable, nil when not deleted.
func (c *Conversation) ExpiresAt() *time.Time {
	if c.DeletedAt == nil {
		return nil
	}
	t := c.DeletedAt.Add(RetentionPeriod)
	return &t
}
