package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// NormalizeApply maps the accepted subsidy answers to "y" or "n"
func NormalizeApply(answer string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return "y", nil
	case "n", "no", "":
		return "n", nil
	}
	return "", fmt.Errorf("apply must be y or n: %s", answer)
}
