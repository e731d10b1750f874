package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
	"github.com/tuttiud/platform/internal/auth"
	"github.com/tuttiud/platform/internal/crypto"
	"github.com/tuttiud/platform/internal/db"
	"github.com/tuttiud/platform/internal/models"
)

// OrganizationStore is the control-store interface the resolver needs.
type OrganizationStore interface {
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// Context is an authenticated tenant-store context for a single request.
// The decrypted credential lives only inside Client and is discarded with
// it; it is never logged or returned to callers.
type Context struct {
	Client   API
	UserID   uuid.UUID
	Role     models.OrgRole
	StoreURL string
}

// Resolver builds tenant-store clients: it authenticates the caller via
// the access guard, fetches the organization's store address, decrypts the
// stored application credential, and binds a client to the dedicated
// schema.
type Resolver struct {
	guard    *auth.Guard
	orgs     OrganizationStore
	cipher   *crypto.Cipher
	observer Observer
	logger   zerolog.Logger
}

// NewResolver creates a Resolver. A nil cipher marks a deployment without
// encryption key material; resolution then fails with a configuration
// error rather than at some later decrypt. The observer is handed to every
// client the resolver builds and may be nil.
func NewResolver(guard *auth.Guard, orgs OrganizationStore, cipher *crypto.Cipher, observer Observer, logger zerolog.Logger) *Resolver {
	return &Resolver{
		guard:    guard,
		orgs:     orgs,
		cipher:   cipher,
		observer: observer,
		logger:   logger.With().Str("component", "tenant_resolver").Logger(),
	}
}

// Resolve authenticates and authorizes the caller, then returns a tenant
// context whose client is authenticated against the organization's own
// store.
func (r *Resolver) Resolve(ctx context.Context, authorization string, orgID uuid.UUID, required models.OrgRole) (*Context, error) {
	access, err := r.guard.Resolve(ctx, authorization, orgID, required)
	if err != nil {
		return nil, err
	}

	if r.cipher == nil {
		return nil, apperr.New(apperr.KindConfigurationMissing, "server encryption key is not configured")
	}

	org, err := r.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "organization not found")
		}
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "organization lookup failed", err)
	}

	if org.TenantStoreURL == nil || *org.TenantStoreURL == "" {
		return nil, apperr.New(apperr.KindSetupIncomplete, "tenant store address is not configured yet")
	}
	if !org.HasStoredCredential() {
		return nil, apperr.New(apperr.KindSetupIncomplete, "no application credential has been stored yet")
	}

	credential, err := r.cipher.DecryptString(*org.EncryptedCredential)
	if err != nil {
		// Wrong key after a rotation is indistinguishable from corruption
		// here; both surface as a decryption failure.
		r.logger.Error().Str("org_id", orgID.String()).Msg("stored credential failed to decrypt")
		return nil, apperr.New(apperr.KindDecryptionFailed, "stored credential could not be decrypted")
	}

	return &Context{
		Client:   NewClient(*org.TenantStoreURL, credential, r.observer, r.logger),
		UserID:   access.UserID,
		Role:     access.Role,
		StoreURL: *org.TenantStoreURL,
	}, nil
}
