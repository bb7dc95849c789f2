package services

import "github.com/google/uuid"

// parseUUID wraps uuid.Parse so every service reports the same
// ValidationError shape for a malformed id path parameter.
func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
