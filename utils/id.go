package utils

import "github.com/google/uuid"

// GenerateID returns a random request id.
func GenerateID() string {
	return uuid.NewString()
}
