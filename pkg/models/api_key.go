package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a project-scoped ingestion credential. Raw keys are shown once
// at creation; only the bcrypt hash is stored, with an 8-char prefix kept
// for display and lookup.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	OrgID      uuid.UUID  `db:"org_id"       json:"org_id"`
	ProjectID  uuid.UUID  `db:"project_id"   json:"project_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}
