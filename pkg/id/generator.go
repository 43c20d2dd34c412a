// Package id generates unique identifiers for runs and jobs.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Generate returns a new random UUID string.
func Generate() string {
	return uuid.NewString()
}

// GenerateShort returns the first segment of a random UUID. Short IDs
// are used where the full UUID would be noisy, such as job IDs shown
// in CLI output.
func GenerateShort() string {
	s := uuid.NewString()
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}
