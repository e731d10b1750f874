package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
	"github.com/tuttiud/platform/internal/models"
	"github.com/tuttiud/platform/internal/tenant"
)

// TenantResolver builds an authenticated tenant context for a request.
type TenantResolver interface {
	Resolve(ctx context.Context, authorization string, orgID uuid.UUID, required models.OrgRole) (*tenant.Context, error)
}

// RecordsHandler proxies data reads and writes to the organization's own
// tenant store. Every request resolves a fresh tenant context; the handler
// itself holds no credentials.
type RecordsHandler struct {
	resolver TenantResolver
	logger   zerolog.Logger
}

// NewRecordsHandler creates a new RecordsHandler.
func NewRecordsHandler(resolver TenantResolver, logger zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		resolver: resolver,
		logger:   logger.With().Str("component", "records_handler").Logger(),
	}
}

// RegisterRoutes registers the tenant-data endpoints on the given router group.
func (h *RecordsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/students", h.ListStudents)
	r.POST("/session-records", h.CreateSessionRecord)
	r.GET("/backup", h.Backup)
}

// ListStudents reads the students table from the tenant store, passing
// PostgREST filter parameters through untouched.
// GET /api/v1/students?orgId=
func (h *RecordsHandler) ListStudents(c *gin.Context) {
	orgID, err := queryOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	tc, err := h.resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"), orgID, models.OrgRoleMember)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	query := url.Values{}
	for k, vs := range c.Request.URL.Query() {
		if k == "orgId" {
			continue
		}
		query[k] = vs
	}

	raw, err := tc.Client.Select(c.Request.Context(), "students", query)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

type sessionRecordRequest struct {
	OrgID  string         `json:"orgId" binding:"required"`
	Record map[string]any `json:"record" binding:"required"`
}

// CreateSessionRecord inserts a session record into the tenant store.
// POST /api/v1/session-records
func (h *RecordsHandler) CreateSessionRecord(c *gin.Context) {
	var req sessionRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.New(apperr.KindBadRequest, "orgId and record are required"))
		return
	}
	orgID, err := parseOrgID(req.OrgID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	tc, err := h.resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"), orgID, models.OrgRoleMember)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	raw, err := tc.Client.Insert(c.Request.Context(), "session_records", req.Record)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusCreated, "application/json", raw)
}

// backupTables are exported in full by the backup endpoint.
var backupTables = []string{"instructors", "students", "session_records", "settings"}

// Backup exports the organization's tenant data as one JSON document.
// GET /api/v1/backup?orgId=
func (h *RecordsHandler) Backup(c *gin.Context) {
	orgID, err := queryOrgID(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	tc, err := h.resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"), orgID, models.OrgRoleAdmin)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	export := gin.H{}
	for _, table := range backupTables {
		raw, err := tc.Client.Select(c.Request.Context(), table, url.Values{"select": {"*"}})
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		export[table] = raw
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": export})
}
