package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const runIDLength = 21

// NewRunID returns a fresh run id.
func NewRunID() (string, error) {
	return gonanoid.New(runIDLength)
}

// IsRunID reports whether s has the shape of a run id.
func IsRunID(s string) bool {
	if len(s) != runIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNanoidChar(s[i]) {
			return false
		}
	}
	return true
}

func isNanoidChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-'
}
