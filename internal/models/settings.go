package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// ProviderTuttiud is the provider key used inside the settings document.
	ProviderTuttiud = "tuttiud"

	// ConnectionStatusConnected marks a verified tenant-store connection.
	// Only this exact string counts as connected; any historical or
	// provider-defined value means "not yet verified".
	ConnectionStatusConnected = "connected"

	// CredentialMarkerStored is a redacted placeholder recorded in settings
	// once a credential has been persisted. The real secret lives only in
	// Organization.EncryptedCredential.
	CredentialMarkerStored = "stored"
)

// OrgSettings is the per-organization settings row. Metadata is an open JSON
// document; this service only owns the "connections" and "credentials"
// substructures and must preserve everything else on write.
type OrgSettings struct {
	OrgID     uuid.UUID      `json:"org_id"`
	Metadata  map[string]any `json:"metadata"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ConnectionStatus extracts connections.<provider> from a metadata document.
// Missing structure or non-string values read as "".
func ConnectionStatus(metadata map[string]any, provider string) string {
	conns, ok := metadata["connections"].(map[string]any)
	if !ok {
		return ""
	}
	status, _ := conns[provider].(string)
	return status
}

// IsConnected reports whether connections.<provider> is exactly "connected".
func IsConnected(metadata map[string]any, provider string) bool {
	return ConnectionStatus(metadata, provider) == ConnectionStatusConnected
}

// CredentialMarker extracts credentials.<provider> from a metadata document.
func CredentialMarker(metadata map[string]any, provider string) string {
	creds, ok := metadata["credentials"].(map[string]any)
	if !ok {
		return ""
	}
	marker, _ := creds[provider].(string)
	return marker
}

// WithConnectionStatus returns a copy of metadata with
// connections.<provider> set, preserving all sibling keys at both levels.
func WithConnectionStatus(metadata map[string]any, provider, status string) map[string]any {
	return withNestedValue(metadata, "connections", provider, status)
}

// WithCredentialMarker returns a copy of metadata with
// credentials.<provider> set, preserving all sibling keys at both levels.
func WithCredentialMarker(metadata map[string]any, provider, marker string) map[string]any {
	return withNestedValue(metadata, "credentials", provider, marker)
}

// withNestedValue copies the document one level deep and replaces
// metadata[section][key]. The copy keeps the read-merge-write contract: the
// caller reads the current document, merges, and writes the result back,
// never blindly overwriting unrelated substructures.
func withNestedValue(metadata map[string]any, section, key string, value any) map[string]any {
	merged := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		merged[k] = v
	}

	sub := make(map[string]any)
	if existing, ok := metadata[section].(map[string]any); ok {
		for k, v := range existing {
			sub[k] = v
		}
	}
	sub[key] = value
	merged[section] = sub

	return merged
}
