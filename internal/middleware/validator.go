package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

var scanIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateScanID validates scan ID format
func ValidateScanID(scanID string) error {
	if scanID == "" {
		return fmt.Errorf("scan ID cannot be empty")
	}
	if !scanIDRe.MatchString(scanID) {
		return fmt.Errorf("invalid scan ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
