// Package models defines the control-store domain models.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant unit. Each organization owns a dedicated data
// store; the application credential for that store is held only as
// ciphertext and is nil until onboarding stores one.
type Organization struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	TenantStoreURL      *string   `json:"tenant_store_url,omitempty"`
	EncryptedCredential *string   `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewOrganization creates a new Organization with the given name.
func NewOrganization(name string) *Organization {
	now := time.Now()
	return &Organization{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasStoredCredential reports whether an application credential ciphertext
// is present.
func (o *Organization) HasStoredCredential() bool {
	return o.EncryptedCredential != nil && *o.EncryptedCredential != ""
}
