package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
	"github.com/tuttiud/platform/internal/metrics"
	"github.com/tuttiud/platform/internal/models"
	"github.com/tuttiud/platform/internal/setup"
)

// SetupService defines the gateway operations the handler exposes.
type SetupService interface {
	Status(ctx context.Context, authorization string, orgID uuid.UUID) (bool, error)
	Settings(ctx context.Context, authorization string, orgID uuid.UUID) (map[string]any, error)
	StoreCredential(ctx context.Context, authorization string, orgID uuid.UUID, appKey, storeURL string) (*setup.StoreCredentialResult, error)
	Initialize(ctx context.Context, authorization string, orgID uuid.UUID) error
	VerifyStored(ctx context.Context, authorization string, orgID uuid.UUID) (*models.DiagnosticsReport, error)
	SchemaStatus(ctx context.Context, authorization string, orgID uuid.UUID) (bool, error)
	SchemaBootstrap(ctx context.Context, authorization string, orgID uuid.UUID) error
	Diagnostics(ctx context.Context, authorization string, orgID uuid.UUID) (*models.DiagnosticsReport, error)
	UpdateConnectionStatus(ctx context.Context, authorization string, orgID uuid.UUID, status string) (map[string]any, error)
}

// SetupHandler handles setup and diagnostics HTTP endpoints.
type SetupHandler struct {
	svc     SetupService
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewSetupHandler creates a new SetupHandler. metrics may be nil.
func NewSetupHandler(svc SetupService, m *metrics.Metrics, logger zerolog.Logger) *SetupHandler {
	return &SetupHandler{
		svc:     svc,
		metrics: m,
		logger:  logger.With().Str("component", "setup_handler").Logger(),
	}
}

// RegisterRoutes registers the setup endpoints on the given router group.
func (h *SetupHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/setup-status", h.Status)
	r.GET("/org-settings", h.Settings)
	r.POST("/store-tuttiud-app-key", h.StoreCredential)
	r.POST("/verify-tuttiud-setup", h.Verify)
	r.POST("/initialize-tuttiud", h.Initialize)
	r.GET("/schema-status", h.SchemaStatus)
	r.POST("/bootstrap-tuttiud-schema", h.SchemaBootstrap)
	r.POST("/run-tuttiud-diagnostics", h.Diagnostics)
	r.POST("/update-connection-status", h.UpdateConnectionStatus)
}

// orgRequest is the shared request body for org-scoped POST endpoints.
type orgRequest struct {
	OrgID string `json:"orgId" binding:"required"`
}

func (h *SetupHandler) record(operation string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	h.metrics.RecordSetupOperation(operation, outcome)
}

func parseOrgID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindBadRequest, "orgId must be a valid UUID")
	}
	return id, nil
}

func queryOrgID(c *gin.Context) (uuid.UUID, error) {
	raw := c.Query("orgId")
	if raw == "" {
		return uuid.Nil, apperr.New(apperr.KindBadRequest, "orgId is required")
	}
	return parseOrgID(raw)
}

func bodyOrgID(c *gin.Context) (uuid.UUID, error) {
	var req orgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return uuid.Nil, apperr.New(apperr.KindBadRequest, "orgId is required")
	}
	return parseOrgID(req.OrgID)
}

// Status reports whether the organization has a stored application key.
// GET /api/v1/setup-status?orgId=
func (h *SetupHandler) Status(c *gin.Context) {
	orgID, err := queryOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasKey, err := h.svc.Status(c.Request.Context(), c.GetHeader("Authorization"), orgID)
	h.record("status", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "hasDedicatedKey": hasKey})
}

// Settings returns the organization's settings metadata document.
// GET /api/v1/org-settings?orgId=
func (h *SetupHandler) Settings(c *gin.Context) {
	orgID, err := queryOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	metadata, err := h.svc.Settings(c.Request.Context(), c.GetHeader("Authorization"), orgID)
	h.record("settings", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "metadata": metadata})
}

// storeKeyRequest accepts both the current and the legacy field name for
// the tenant store address. currentMetadata is accepted for wire
// compatibility but ignored: the server reads the authoritative settings
// row itself.
type storeKeyRequest struct {
	OrgID              string         `json:"orgId" binding:"required"`
	AppKey             string         `json:"appKey" binding:"required"`
	TenantStoreAddress string         `json:"tenantStoreAddress"`
	SupabaseURL        string         `json:"supabaseUrl"`
	CurrentMetadata    map[string]any `json:"currentMetadata"`
}

// StoreCredential encrypts, stores, and probe-validates a new application key.
// POST /api/v1/store-tuttiud-app-key
func (h *SetupHandler) StoreCredential(c *gin.Context) {
	var req storeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.New(apperr.KindBadRequest, "orgId and appKey are required"))
		return
	}
	orgID, err := parseOrgID(req.OrgID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	storeURL := req.TenantStoreAddress
	if storeURL == "" {
		storeURL = req.SupabaseURL
	}

	result, err := h.svc.StoreCredential(c.Request.Context(), c.GetHeader("Authorization"), orgID, req.AppKey, storeURL)
	h.record("store_credential", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"metadata":    result.Metadata,
		"diagnostics": result.Diagnostics,
	})
}

// Verify re-runs diagnostics with the stored credential.
// POST /api/v1/verify-tuttiud-setup
func (h *SetupHandler) Verify(c *gin.Context) {
	orgID, err := bodyOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	report, err := h.svc.VerifyStored(c.Request.Context(), c.GetHeader("Authorization"), orgID)
	h.record("verify", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "diagnostics": report})
}

// Initialize performs a tenant-store connectivity check.
// POST /api/v1/initialize-tuttiud
func (h *SetupHandler) Initialize(c *gin.Context) {
	orgID, err := bodyOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	err = h.svc.Initialize(c.Request.Context(), c.GetHeader("Authorization"), orgID)
	h.record("initialize", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SchemaStatus reports whether the dedicated schema exists.
// GET /api/v1/schema-status?orgId=
func (h *SetupHandler) SchemaStatus(c *gin.Context) {
	orgID, err := queryOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	exists, err := h.svc.SchemaStatus(c.Request.Context(), c.GetHeader("Authorization"), orgID)
	h.record("schema_status", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "exists": exists})
}

// SchemaBootstrap runs the idempotent tenant-side provisioning procedure.
// POST /api/v1/bootstrap-tuttiud-schema
func (h *SetupHandler) SchemaBootstrap(c *gin.Context) {
	orgID, err := bodyOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	err = h.svc.SchemaBootstrap(c.Request.Context(), c.GetHeader("Authorization"), orgID)
	h.record("bootstrap", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Diagnostics runs the tenant-side diagnostics procedure.
// POST /api/v1/run-tuttiud-diagnostics
func (h *SetupHandler) Diagnostics(c *gin.Context) {
	orgID, err := bodyOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	report, err := h.svc.Diagnostics(c.Request.Context(), c.GetHeader("Authorization"), orgID)
	h.record("diagnostics", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "diagnostics": report})
}

type updateConnectionRequest struct {
	OrgID  string `json:"orgId" binding:"required"`
	Status string `json:"status"`
}

// UpdateConnectionStatus merge-writes the connection flag.
// POST /api/v1/update-connection-status
func (h *SetupHandler) UpdateConnectionStatus(c *gin.Context) {
	var req updateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.New(apperr.KindBadRequest, "orgId is required"))
		return
	}
	orgID, err := parseOrgID(req.OrgID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	metadata, err := h.svc.UpdateConnectionStatus(c.Request.Context(), c.GetHeader("Authorization"), orgID, req.Status)
	h.record("update_connection", err)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "metadata": metadata})
}
