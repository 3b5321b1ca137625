// Package audit holds the append-only AuditEvent entity.
package audit

import "time"

// Event is an append-only record; it is never rewritten or deleted by
// application code. Secret audit events must never carry the secret value
// in OldConfiguration/NewConfiguration — only the key and outcome.
type Event struct {
	ID               int64
	ResourceType     string
	ResourceID       *string
	ResourceName     *string
	Action           string
	OldConfiguration map[string]interface{}
	NewConfiguration map[string]interface{}
	UserID           *string
	ClientIP         *string
	UserAgent        *string
	CreatedAt        time.Time
}

// Filter selects a page of events for the audit query interface.
type Filter struct {
	ResourceType string
	Action       string
	UserID       string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}
