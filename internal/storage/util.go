package storage

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// isSQLiteUniqueViolation reports whether err is a SQLite unique constraint failure.
func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// encodeCursor makes an opaque keyset cursor from the last row of a page.
func encodeCursor(deployedAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(deployedAt + "|" + id))
}

func decodeCursor(cursor string) (deployedAt, id string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	deployedAt, id, ok := strings.Cut(string(raw), "|")
	if !ok || deployedAt == "" || id == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return deployedAt, id, nil
}
