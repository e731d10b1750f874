// Package setup implements the tenant-store setup and diagnostics gateway:
// credential storage, connectivity checks, schema provisioning, and the
// connection-flag commit.
package setup

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
	"github.com/tuttiud/platform/internal/tenant"
)

// OrganizationStore is the control-store interface the gateway needs.
type OrganizationStore interface {
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	SetOrganizationCredential(ctx context.Context, orgID uuid.UUID, ciphertext *string) error
	SetOrganizationStoreURL(ctx context.Context, orgID uuid.UUID, storeURL string) error
	GetOrgSettings(ctx context.Context, orgID uuid.UUID) (map[string]any, error)
	PutOrgSettings(ctx context.Context, orgID uuid.UUID, metadata map[string]any) error
}

// AccessGuard authenticates and authorizes control-store requests.
type AccessGuard interface {
	Resolve(ctx context.Context, authorization string, orgID uuid.UUID, required models.OrgRole) (*auth.Access, error)
}

// ContextResolver builds authenticated tenant-store contexts.
type ContextResolver interface {
	Resolve(ctx context.Context, authorization string, orgID uuid.UUID, required models.OrgRole) (*tenant.Context, error)
}

// ClientFactory builds a tenant client for a raw credential. It exists so
// the store-credential probe can run under the candidate credential before
// that credential is trusted.
type ClientFactory func(storeURL, credential string) tenant.API

// Service implements the gateway operations. Each method resolves its own
// auth context; no state is shared between requests.
type Service struct {
	guard     AccessGuard
	resolver  ContextResolver
	store     OrganizationStore
	cipher    *crypto.Cipher
	newClient ClientFactory
	logger    zerolog.Logger
}

// NewService creates a Service.
func NewService(guard AccessGuard, resolver ContextResolver, store OrganizationStore, cipher *crypto.Cipher, newClient ClientFactory, logger zerolog.Logger) *Service {
	return &Service{
		guard:     guard,
		resolver:  resolver,
		store:     store,
		cipher:    cipher,
		newClient: newClient,
		logger:    logger.With().Str("component", "setup_service").Logger(),
	}
}

// Status reports whether the organization has a stored application
// credential. Admin only: the flag reveals onboarding progress.
func (s *Service) Status(ctx context.Context, authorization string, orgID uuid.UUID) (bool, error) {
	if _, err := s.guard.Resolve(ctx, authorization, orgID, models.OrgRoleAdmin); err != nil {
		return false, err
	}

	org, err := s.getOrganization(ctx, orgID)
	if err != nil {
		return false, err
	}
	return org.HasStoredCredential(), nil
}

// Settings returns the organization's settings metadata document.
func (s *Service) Settings(ctx context.Context, authorization string, orgID uuid.UUID) (map[string]any, error) {
	if _, err := s.guard.Resolve(ctx, authorization, orgID, models.OrgRoleMember); err != nil {
		return nil, err
	}

	metadata, err := s.store.GetOrgSettings(ctx, orgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "settings lookup failed", err)
	}
	return metadata, nil
}

// StoreCredentialResult is the outcome of a successful credential store.
type StoreCredentialResult struct {
	Metadata    map[string]any
	Diagnostics *models.DiagnosticsReport
}

// StoreCredential encrypts and persists a new application credential, then
// validates it with a diagnostics probe before committing the settings
// marker. A failed probe restores the previous ciphertext, so at most one
// committed (credential, verified-working) pair can ever exist. The raw
// secret is used for the probe only and is not retained.
func (s *Service) StoreCredential(ctx context.Context, authorization string, orgID uuid.UUID, appKey, storeURL string) (*StoreCredentialResult, error) {
	if _, err := s.guard.Resolve(ctx, authorization, orgID, models.OrgRoleAdmin); err != nil {
		return nil, err
	}

	if s.cipher == nil {
		return nil, apperr.New(apperr.KindConfigurationMissing, "server encryption key is not configured")
	}
	if appKey == "" {
		return nil, apperr.New(apperr.KindBadRequest, "application key is required")
	}

	org, err := s.getOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	targetURL := storeURL
	if targetURL == "" && org.TenantStoreURL != nil {
		targetURL = *org.TenantStoreURL
	}
	if targetURL == "" {
		return nil, apperr.New(apperr.KindBadRequest, "tenant store address is required")
	}
	if org.TenantStoreURL == nil || *org.TenantStoreURL != targetURL {
		if err := s.store.SetOrganizationStoreURL(ctx, orgID, targetURL); err != nil {
			return nil, apperr.Wrap(apperr.KindUpdateFailed, "failed to record tenant store address", err)
		}
	}

	previous := org.EncryptedCredential

	ciphertext, err := s.cipher.EncryptString(appKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "failed to encrypt credential", err)
	}

	if err := s.store.SetOrganizationCredential(ctx, orgID, &ciphertext); err != nil {
		return nil, apperr.Wrap(apperr.KindUpdateFailed, "failed to store credential", err)
	}

	// Probe under the candidate credential. Validation happens before the
	// settings marker is written, so a failed probe leaves no half-written
	// state behind.
	report, probeErr := s.newClient(targetURL, appKey).RunDiagnostics(ctx)
	if probeErr != nil {
		if revertErr := s.store.SetOrganizationCredential(ctx, orgID, previous); revertErr != nil {
			// Crash-window hazard: the new ciphertext is stored but was
			// never validated. Re-running StoreCredential repairs this.
			s.logger.Error().Err(revertErr).
				Str("org_id", orgID.String()).
				Msg("failed to revert credential after probe failure")
		}
		s.logger.Warn().Str("org_id", orgID.String()).Msg("credential probe failed, stored ciphertext reverted")
		return nil, apperr.Wrap(apperr.KindValidationFailed,
			"the application key could not be validated against the tenant store", probeErr)
	}

	metadata, err := s.store.GetOrgSettings(ctx, orgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "settings lookup failed", err)
	}
	merged := models.WithCredentialMarker(metadata, models.ProviderTuttiud, models.CredentialMarkerStored)
	if err := s.store.PutOrgSettings(ctx, orgID, merged); err != nil {
		return nil, apperr.Wrap(apperr.KindUpdateFailed, "failed to record credential marker", err)
	}

	s.logger.Info().Str("org_id", orgID.String()).Msg("application credential stored and validated")
	return &StoreCredentialResult{Metadata: merged, Diagnostics: report}, nil
}

// Initialize performs a connectivity check against the tenant store using
// the stored credential.
func (s *Service) Initialize(ctx context.Context, authorization string, orgID uuid.UUID) error {
	tc, err := s.resolver.Resolve(ctx, authorization, orgID, models.OrgRoleMember)
	if err != nil {
		return err
	}
	return tc.Client.Initialize(ctx)
}

// VerifyStored re-runs diagnostics with the already-stored credential,
// decrypted server-side.
func (s *Service) VerifyStored(ctx context.Context, authorization string, orgID uuid.UUID) (*models.DiagnosticsReport, error) {
	tc, err := s.resolver.Resolve(ctx, authorization, orgID, models.OrgRoleAdmin)
	if err != nil {
		return nil, err
	}
	return tc.Client.RunDiagnostics(ctx)
}

// SchemaStatus reports whether the dedicated schema exists.
func (s *Service) SchemaStatus(ctx context.Context, authorization string, orgID uuid.UUID) (bool, error) {
	tc, err := s.resolver.Resolve(ctx, authorization, orgID, models.OrgRoleMember)
	if err != nil {
		return false, err
	}
	return tc.Client.SchemaExists(ctx)
}

// SchemaBootstrap runs the tenant-side provisioning procedure. The
// procedure is idempotent, so repeated calls are safe.
func (s *Service) SchemaBootstrap(ctx context.Context, authorization string, orgID uuid.UUID) error {
	tc, err := s.resolver.Resolve(ctx, authorization, orgID, models.OrgRoleMember)
	if err != nil {
		return err
	}
	return tc.Client.Bootstrap(ctx)
}

// Diagnostics runs the tenant-side diagnostics procedure. A missing
// procedure is advisory: the caller gets a warning report, not an error.
func (s *Service) Diagnostics(ctx context.Context, authorization string, orgID uuid.UUID) (*models.DiagnosticsReport, error) {
	tc, err := s.resolver.Resolve(ctx, authorization, orgID, models.OrgRoleMember)
	if err != nil {
		return nil, err
	}

	report, err := tc.Client.RunDiagnostics(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindMissingFunction) {
			return &models.DiagnosticsReport{
				Status:  models.DiagnosticsWarning,
				Summary: "diagnostics procedure is not installed; run the setup script to enable detailed checks",
			}, nil
		}
		return nil, err
	}
	return report, nil
}

// UpdateConnectionStatus merge-writes connections.tuttiud into the
// organization's settings document, preserving unrelated substructures.
func (s *Service) UpdateConnectionStatus(ctx context.Context, authorization string, orgID uuid.UUID, status string) (map[string]any, error) {
	if _, err := s.guard.Resolve(ctx, authorization, orgID, models.OrgRoleAdmin); err != nil {
		return nil, err
	}

	if status == "" {
		status = models.ConnectionStatusConnected
	}

	metadata, err := s.store.GetOrgSettings(ctx, orgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpdateFailed, "settings lookup failed", err)
	}
	merged := models.WithConnectionStatus(metadata, models.ProviderTuttiud, status)
	if err := s.store.PutOrgSettings(ctx, orgID, merged); err != nil {
		return nil, apperr.Wrap(apperr.KindUpdateFailed, "failed to update connection status", err)
	}

	s.logger.Info().
		Str("org_id", orgID.String()).
		Str("status", status).
		Msg("connection status updated")
	return merged, nil
}

func (s *Service) getOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.store.GetOrganizationByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "organization not found")
		}
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "organization lookup failed", err)
	}
	return org, nil
}
