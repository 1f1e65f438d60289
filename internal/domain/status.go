package domain

import (
	"strings"

	"github.com/timmy/petmatch/internal/apperr"
)

// Status is the report type of an animal record.
// Values are StatusLost and StatusFound.
type Status string

const (
	StatusLost  Status = "lost"
	StatusFound Status = "found"
)

// ParseStatus converts a raw request value into a Status.
// Parameters:
//   - raw: value as sent by the client; must be exactly "lost" or "found".
//
// Returns:
//   - Status: parsed status.
//   - error: apperr validation error when raw is empty or unsupported.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusLost, StatusFound:
		return Status(raw), nil
	}
	if strings.TrimSpace(raw) == "" {
		return "", apperr.Validation("status", "status is required")
	}
	return "", apperr.Validation("status", `status must be "lost" or "found"`)
}

// Valid reports whether s is one of the two known statuses.
func (s Status) Valid() bool {
	return s == StatusLost || s == StatusFound
}

// Opposite returns the complementary status. A lost report is matched against
// found reports and vice versa.
func (s Status) Opposite() Status {
	if s == StatusLost {
		return StatusFound
	}
	return StatusLost
}
