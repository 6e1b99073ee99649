package models

import "github.com/google/uuid"

// ProjectInfo is the read-only project metadata the alerting pipeline needs
// for notification rendering and dashboard links. Project lifecycle itself
// is owned by the management API.
type ProjectInfo struct {
	ID      uuid.UUID `db:"id"       json:"id"`
	OrgID   uuid.UUID `db:"org_id"   json:"org_id"`
	Name    string    `db:"name"     json:"name"`
	Slug    string    `db:"slug"     json:"slug"`
	OrgSlug string    `db:"org_slug" json:"org_slug"`
}
