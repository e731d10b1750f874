// Package auth provides bearer-token authentication and the control-store
// access guard.
package auth

import "strings"

// ExtractBearerToken extracts the token from an Authorization header value.
// Returns "" when the header is absent or not a Bearer scheme.
func ExtractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
