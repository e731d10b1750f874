package wizard

import (
	"context"

	"github.com/google/uuid"
	"github.com/tuttiud/platform/internal/models"
	"github.com/tuttiud/platform/internal/setup"
)

// SessionGateway binds a setup service to one caller's bearer token and one
// organization, giving the orchestrator an identity-free view of the
// gateway.
type SessionGateway struct {
	svc           *setup.Service
	authorization string
	orgID         uuid.UUID
}

// NewSessionGateway creates a Gateway for one onboarding session.
func NewSessionGateway(svc *setup.Service, authorization string, orgID uuid.UUID) *SessionGateway {
	return &SessionGateway{svc: svc, authorization: authorization, orgID: orgID}
}

var _ Gateway = (*SessionGateway)(nil)

func (g *SessionGateway) Status(ctx context.Context) (bool, error) {
	return g.svc.Status(ctx, g.authorization, g.orgID)
}

func (g *SessionGateway) Settings(ctx context.Context) (map[string]any, error) {
	return g.svc.Settings(ctx, g.authorization, g.orgID)
}

func (g *SessionGateway) StoreCredential(ctx context.Context, appKey, storeURL string) (*setup.StoreCredentialResult, error) {
	return g.svc.StoreCredential(ctx, g.authorization, g.orgID, appKey, storeURL)
}

func (g *SessionGateway) Initialize(ctx context.Context) error {
	return g.svc.Initialize(ctx, g.authorization, g.orgID)
}

func (g *SessionGateway) VerifyStored(ctx context.Context) (*models.DiagnosticsReport, error) {
	return g.svc.VerifyStored(ctx, g.authorization, g.orgID)
}

func (g *SessionGateway) SchemaStatus(ctx context.Context) (bool, error) {
	return g.svc.SchemaStatus(ctx, g.authorization, g.orgID)
}

func (g *SessionGateway) SchemaBootstrap(ctx context.Context) error {
	return g.svc.SchemaBootstrap(ctx, g.authorization, g.orgID)
}

func (g *SessionGateway) Diagnostics(ctx context.Context) (*models.DiagnosticsReport, error) {
	return g.svc.Diagnostics(ctx, g.authorization, g.orgID)
}

func (g *SessionGateway) UpdateConnectionStatus(ctx context.Context, status string) (map[string]any, error) {
	return g.svc.UpdateConnectionStatus(ctx, g.authorization, g.orgID, status)
}
