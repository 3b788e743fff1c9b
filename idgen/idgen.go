// Package idgen produces the identifiers of sessions and published events.
// IDs are UUIDv7, so they sort by creation time, behind a short type prefix.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator func() string

// UUIDv7 generates RFC 9562 version 7 UUIDs.
func UUIDv7() Generator {
	return func() string { return uuid.Must(uuid.NewV7()).String() }
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string { return prefix + gen() }
}

var (
	// Session generates page session IDs.
	Session = Prefixed("ses_", UUIDv7())
	// Event generates report event IDs.
	Event = Prefixed("evt_", UUIDv7())
)

// Parse checks that id is a UUID, optionally behind a known prefix, and
// returns the UUID part.
func Parse(id string) (string, error) {
	for _, p := range []string{"ses_", "evt_", "req_"} {
		id = strings.TrimPrefix(id, p)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid id: %w", err)
	}
	return u.String(), nil
}
