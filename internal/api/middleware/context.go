package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	orgIDKey     contextKey = "org_id"
	projectIDKey contextKey = "project_id"
	keyPrefixKey contextKey = "key_prefix"
)

func SetOrgID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, orgIDKey, id)
}

func GetOrgID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(orgIDKey).(uuid.UUID)
	return id, ok
}

func SetProjectID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, projectIDKey, id)
}

func GetProjectID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(projectIDKey).(uuid.UUID)
	return id, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
