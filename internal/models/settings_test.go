package models

import (
	"testing"
)

func TestConnectionStatusExactMatch(t *testing.T) {
	tests := []struct {
		name      string
		metadata  map[string]any
		connected bool
	}{
		{"nil metadata", nil, false},
		{"no connections", map[string]any{"other": 1}, false},
		{"connected", map[string]any{"connections": map[string]any{"tuttiud": "connected"}}, true},
		{"legacy status name", map[string]any{"connections": map[string]any{"tuttiud": "tuttiud_connected"}}, false},
		{"pending", map[string]any{"connections": map[string]any{"tuttiud": "pending"}}, false},
		{"non-string value", map[string]any{"connections": map[string]any{"tuttiud": true}}, false},
		{"other provider connected", map[string]any{"connections": map[string]any{"zoom": "connected"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnected(tt.metadata, ProviderTuttiud); got != tt.connected {
				t.Errorf("IsConnected() = %v, want %v", got, tt.connected)
			}
		})
	}
}

func TestWithConnectionStatusPreservesSiblings(t *testing.T) {
	metadata := map[string]any{
		"connections": map[string]any{
			"zoom": "connected",
		},
		"credentials": map[string]any{
			"tuttiudAppJwt": "stored",
		},
		"branding": map[string]any{"color": "blue"},
	}

	merged := WithConnectionStatus(metadata, ProviderTuttiud, ConnectionStatusConnected)

	if !IsConnected(merged, ProviderTuttiud) {
		t.Fatal("tuttiud connection status not set")
	}
	if ConnectionStatus(merged, "zoom") != "connected" {
		t.Error("sibling connection entry was dropped")
	}
	if merged["credentials"].(map[string]any)["tuttiudAppJwt"] != "stored" {
		t.Error("credentials substructure was dropped")
	}
	if merged["branding"].(map[string]any)["color"] != "blue" {
		t.Error("unrelated top-level key was dropped")
	}

	// The source document must not be mutated.
	if ConnectionStatus(metadata, ProviderTuttiud) != "" {
		t.Error("WithConnectionStatus mutated its input")
	}
}

func TestWithCredentialMarker(t *testing.T) {
	merged := WithCredentialMarker(nil, ProviderTuttiud, CredentialMarkerStored)
	if CredentialMarker(merged, ProviderTuttiud) != CredentialMarkerStored {
		t.Error("credential marker not set on empty document")
	}

	again := WithConnectionStatus(merged, ProviderTuttiud, ConnectionStatusConnected)
	if CredentialMarker(again, ProviderTuttiud) != CredentialMarkerStored {
		t.Error("connection update dropped the credential marker")
	}
}

func TestRoleOrdering(t *testing.T) {
	tests := []struct {
		role     OrgRole
		required OrgRole
		want     bool
	}{
		{OrgRoleMember, OrgRoleAdmin, false},
		{OrgRoleOwner, OrgRoleMember, true},
		{OrgRoleAdmin, OrgRoleAdmin, true},
		{OrgRoleMember, OrgRoleMember, true},
		{OrgRoleAdmin, OrgRoleOwner, false},
		{OrgRoleOwner, OrgRoleOwner, true},
	}

	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.required); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want OrgRole
	}{
		{"owner", OrgRoleOwner},
		{"admin", OrgRoleAdmin},
		{"member", OrgRoleMember},
		{"superadmin", OrgRoleMember},
		{"", OrgRoleMember},
		{"OWNER", OrgRoleMember},
	}

	for _, tt := range tests {
		if got := NormalizeRole(tt.in); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
