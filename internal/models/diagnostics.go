package models

// DiagnosticsStatus is the overall severity reported by the tenant-side
// diagnostics procedure.
type DiagnosticsStatus string

const (
	DiagnosticsOK      DiagnosticsStatus = "ok"
	DiagnosticsWarning DiagnosticsStatus = "warning"
	DiagnosticsError   DiagnosticsStatus = "error"
)

// DiagnosticsReport is the structured result of the tenant-side diagnostics
// procedure: schema/role/permission completeness plus remediation hints.
type DiagnosticsReport struct {
	Status           DiagnosticsStatus `json:"status"`
	Summary          string            `json:"summary"`
	MissingTables    []string          `json:"missing_tables,omitempty"`
	MissingPolicies  []string          `json:"missing_policies,omitempty"`
	PermissionIssues []string          `json:"permission_issues,omitempty"`
	OtherIssues      []string          `json:"other_issues,omitempty"`
	SuggestedSQL     string            `json:"suggested_sql,omitempty"`
}

// Healthy reports whether the diagnostics found no blocking issues.
// A warning report is advisory and does not block onboarding.
func (r *DiagnosticsReport) Healthy() bool {
	return r != nil && r.Status != DiagnosticsError
}
