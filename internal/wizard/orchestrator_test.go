package wizard

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
	"github.com/tuttiud/platform/internal/models"
	"github.com/tuttiud/platform/internal/setup"
)

// fakeGateway is a stateful gateway: successful operations mutate it the
// way the real control and tenant stores would.
type fakeGateway struct {
	hasKey       bool
	settings     map[string]any
	schemaExists bool

	storeErr     error
	initErr      error
	verifyReport *models.DiagnosticsReport
	verifyErr    error
	schemaErr    error
	bootstrapErr error
	diagReport   *models.DiagnosticsReport
	diagErr      error
	updateErr    error

	calls map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		settings: map[string]any{},
		calls:    map[string]int{},
	}
}

func (g *fakeGateway) Status(context.Context) (bool, error) {
	g.calls["status"]++
	return g.hasKey, nil
}

func (g *fakeGateway) Settings(context.Context) (map[string]any, error) {
	g.calls["settings"]++
	return g.settings, nil
}

func (g *fakeGateway) StoreCredential(_ context.Context, appKey, _ string) (*setup.StoreCredentialResult, error) {
	g.calls["store"]++
	if g.storeErr != nil {
		return nil, g.storeErr
	}
	g.hasKey = true
	g.settings = models.WithCredentialMarker(g.settings, models.ProviderTuttiud, models.CredentialMarkerStored)
	return &setup.StoreCredentialResult{
		Metadata:    g.settings,
		Diagnostics: &models.DiagnosticsReport{Status: models.DiagnosticsOK},
	}, nil
}

func (g *fakeGateway) Initialize(context.Context) error {
	g.calls["initialize"]++
	return g.initErr
}

func (g *fakeGateway) VerifyStored(context.Context) (*models.DiagnosticsReport, error) {
	g.calls["verify"]++
	return g.verifyReport, g.verifyErr
}

func (g *fakeGateway) SchemaStatus(context.Context) (bool, error) {
	g.calls["schema"]++
	return g.schemaExists, g.schemaErr
}

func (g *fakeGateway) SchemaBootstrap(context.Context) error {
	g.calls["bootstrap"]++
	if g.bootstrapErr != nil {
		return g.bootstrapErr
	}
	g.schemaExists = true
	return nil
}

func (g *fakeGateway) Diagnostics(context.Context) (*models.DiagnosticsReport, error) {
	g.calls["diagnostics"]++
	return g.diagReport, g.diagErr
}

func (g *fakeGateway) UpdateConnectionStatus(_ context.Context, status string) (map[string]any, error) {
	g.calls["update"]++
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	g.settings = models.WithConnectionStatus(g.settings, models.ProviderTuttiud, status)
	return g.settings, nil
}

func checkAll(t *testing.T, o *Orchestrator) {
	t.Helper()
	for _, item := range []string{"schemaExposed", "scriptExecuted", "keyCaptured"} {
		if _, err := o.SetChecklistItem(item, true); err != nil {
			t.Fatalf("SetChecklistItem(%s): %v", item, err)
		}
	}
}

func TestFirstTimeOnboarding(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.diagReport = &models.DiagnosticsReport{Status: models.DiagnosticsOK, Summary: "all checks passed"}
	o := New(gw, nil, zerolog.Nop())

	snap, err := o.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.HasStoredKey || snap.ConnectionStatus != "" {
		t.Fatal("fresh organization should start with no key and no connection")
	}
	if snap.ShowCredentialStep {
		t.Error("credential step visible before preparation")
	}
	if o.AutoVerifyDue() {
		t.Error("auto-verify scheduled for an unconnected organization")
	}

	// Submitting a key before the checklist is complete is rejected.
	if _, err := o.SubmitCredential(ctx, "abc123", ""); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("premature submit err = %v, want bad_request", err)
	}

	checkAll(t, o)
	snap = o.Snapshot()
	if !snap.GateSatisfied || !snap.ShowCredentialStep {
		t.Fatal("completed checklist should open the credential step")
	}

	snap, err = o.SubmitCredential(ctx, "abc123", "https://tenant.example.com")
	if err != nil {
		t.Fatalf("SubmitCredential: %v", err)
	}
	if snap.Steps[StepCredential].Status != StatusSuccess || !snap.HasStoredKey {
		t.Fatalf("credential step = %+v", snap.Steps[StepCredential])
	}

	// First chain run: connectivity passes, schema is missing.
	snap, err = o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("RunConnectivity: %v", err)
	}
	if gw.calls["initialize"] != 1 {
		t.Errorf("initialize calls = %d; a just-submitted key uses plain connectivity", gw.calls["initialize"])
	}
	if gw.calls["verify"] != 0 {
		t.Error("verify should not run for a key submitted this session")
	}
	if snap.Steps[StepConnectivity].Status != StatusSuccess {
		t.Fatalf("connectivity step = %+v", snap.Steps[StepConnectivity])
	}
	if snap.Steps[StepSchema].Status != StatusWarning {
		t.Fatalf("schema step = %+v, want missing-schema warning", snap.Steps[StepSchema])
	}
	if snap.Steps[StepCommit].Status != StatusIdle {
		t.Error("commit fired with the schema missing")
	}

	// Bootstrap provisions the schema and re-runs the chain to the end.
	snap, err = o.RunBootstrap(ctx)
	if err != nil {
		t.Fatalf("RunBootstrap: %v", err)
	}
	if snap.Bootstrap.Status != StatusSuccess {
		t.Fatalf("bootstrap = %+v", snap.Bootstrap)
	}
	if snap.Steps[StepSchema].Status != StatusSuccess || !snap.SchemaExists {
		t.Fatalf("schema step after bootstrap = %+v", snap.Steps[StepSchema])
	}
	if snap.Steps[StepDiagnostics].Status != StatusSuccess {
		t.Fatalf("diagnostics step = %+v", snap.Steps[StepDiagnostics])
	}
	if snap.Steps[StepCommit].Status != StatusSuccess {
		t.Fatalf("commit step = %+v", snap.Steps[StepCommit])
	}
	if gw.calls["update"] != 1 {
		t.Errorf("commit writes = %d, want exactly one", gw.calls["update"])
	}
	if !models.IsConnected(gw.settings, models.ProviderTuttiud) {
		t.Error("connection flag not committed")
	}
	if snap.ConnectionStatus != models.ConnectionStatusConnected {
		t.Errorf("snapshot connection status = %q", snap.ConnectionStatus)
	}
}

func TestReturningOrgHappyPath(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.hasKey = true
	gw.schemaExists = true
	gw.settings = models.WithConnectionStatus(map[string]any{}, models.ProviderTuttiud, models.ConnectionStatusConnected)
	gw.verifyReport = &models.DiagnosticsReport{Status: models.DiagnosticsOK, Summary: "all checks passed"}
	o := New(gw, nil, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !o.AutoVerifyDue() {
		t.Fatal("auto-verify should be due for a connected organization")
	}

	snap, err := o.MaybeAutoVerify(ctx)
	if err != nil {
		t.Fatalf("MaybeAutoVerify: %v", err)
	}
	if gw.calls["verify"] != 1 {
		t.Errorf("verify calls = %d, want 1", gw.calls["verify"])
	}
	if gw.calls["diagnostics"] != 0 {
		t.Error("diagnostics re-queried despite the verify result being reusable")
	}
	if snap.Steps[StepDiagnostics].Status != StatusSuccess {
		t.Fatalf("diagnostics step = %+v", snap.Steps[StepDiagnostics])
	}
	if snap.Steps[StepCommit].Status != StatusSuccess {
		t.Fatalf("commit step = %+v", snap.Steps[StepCommit])
	}
	if gw.calls["update"] != 0 {
		t.Errorf("commit writes = %d; already-connected orgs must not re-commit", gw.calls["update"])
	}

	// The one-shot flag: polling again runs nothing.
	if o.AutoVerifyDue() {
		t.Error("auto-verify due again after firing")
	}
	if _, err := o.MaybeAutoVerify(ctx); err != nil {
		t.Fatalf("second MaybeAutoVerify: %v", err)
	}
	if gw.calls["verify"] != 1 {
		t.Error("auto-verify fired twice")
	}
}

func TestRevokedCredentialReopensGate(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.hasKey = true
	gw.settings = models.WithConnectionStatus(map[string]any{}, models.ProviderTuttiud, models.ConnectionStatusConnected)
	gw.verifyErr = apperr.New(apperr.KindValidationFailed, "tenant store rejected the key")
	o := New(gw, nil, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, err := o.MaybeAutoVerify(ctx)
	if err != nil {
		t.Fatalf("MaybeAutoVerify: %v", err)
	}

	if snap.Steps[StepConnectivity].Status != StatusError {
		t.Fatalf("connectivity step = %+v", snap.Steps[StepConnectivity])
	}
	if !snap.GateReopened || snap.GateSatisfied {
		t.Error("preparation gate should be reopened after a failed verify")
	}
	if !snap.ShowCredentialStep {
		t.Error("credential step should be visible again")
	}
	if snap.ConnectionStatus != models.ConnectionStatusConnected {
		t.Error("stored connection status must stay unchanged until a fresh commit")
	}
	if snap.Steps[StepCommit].Status != StatusIdle {
		t.Error("commit must not fire while the gate is reopened")
	}
	if gw.calls["schema"] != 0 {
		t.Error("chain continued past a failed verify")
	}
}

func TestMissingFunctionOnInitializeReopensGate(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.initErr = apperr.New(apperr.KindMissingFunction, "tuttiud_setup_status not found")
	o := New(gw, nil, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkAll(t, o)

	snap, err := o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("RunConnectivity: %v", err)
	}
	if snap.Steps[StepConnectivity].Status != StatusWarning {
		t.Fatalf("connectivity step = %+v, want missing-function warning", snap.Steps[StepConnectivity])
	}
	if !snap.GateReopened {
		t.Error("missing function should reopen the preparation gate")
	}
}

func TestGenericInitializeFailureDoesNotReopenGate(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.initErr = errors.New("connection refused")
	o := New(gw, nil, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkAll(t, o)

	snap, err := o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("RunConnectivity: %v", err)
	}
	if snap.Steps[StepConnectivity].Status != StatusError {
		t.Fatalf("connectivity step = %+v", snap.Steps[StepConnectivity])
	}
	if snap.GateReopened {
		t.Error("generic failures must not force re-preparation")
	}
}

func TestIdempotentResume(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.hasKey = true
	gw.settings = models.WithConnectionStatus(map[string]any{}, models.ProviderTuttiud, models.ConnectionStatusConnected)
	o := New(gw, nil, zerolog.Nop())

	first, err := o.Load(ctx)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	// In-session progress must not leak into the next load.
	checkAll(t, o)

	second, err := o.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshots diverged across loads:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestUncheckingRevertsGate(t *testing.T) {
	gw := newFakeGateway()
	o := New(gw, nil, zerolog.Nop())
	if _, err := o.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkAll(t, o)

	snap, err := o.SetChecklistItem("scriptExecuted", false)
	if err != nil {
		t.Fatalf("SetChecklistItem: %v", err)
	}
	if snap.GateSatisfied {
		t.Error("unchecking an item must revert the gate")
	}
	if snap.Steps[StepPreparation].Status != StatusIdle {
		t.Errorf("preparation step = %+v", snap.Steps[StepPreparation])
	}

	if _, err := o.SetChecklistItem("unknown", true); !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("unknown item err = %v, want bad_request", err)
	}
}

func TestCommitFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.schemaExists = true
	gw.diagReport = &models.DiagnosticsReport{Status: models.DiagnosticsOK}
	gw.updateErr = errors.New("settings write failed")
	o := New(gw, nil, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkAll(t, o)
	if _, err := o.SubmitCredential(ctx, "abc123", "https://tenant.example.com"); err != nil {
		t.Fatalf("SubmitCredential: %v", err)
	}

	snap, err := o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("RunConnectivity: %v", err)
	}
	if snap.Steps[StepCommit].Status != StatusError {
		t.Fatalf("commit step = %+v", snap.Steps[StepCommit])
	}
	if gw.calls["update"] != 1 {
		t.Fatalf("commit attempts = %d; failures are never auto-retried", gw.calls["update"])
	}

	gw.updateErr = nil
	snap, err = o.RetryCommit(ctx)
	if err != nil {
		t.Fatalf("RetryCommit: %v", err)
	}
	if snap.Steps[StepCommit].Status != StatusSuccess {
		t.Fatalf("commit step after retry = %+v", snap.Steps[StepCommit])
	}
	if !models.IsConnected(gw.settings, models.ProviderTuttiud) {
		t.Error("connection flag not committed on retry")
	}

	if _, err := o.RetryCommit(ctx); !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("retry without failure err = %v, want bad_request", err)
	}
}

func TestRerunRefreshesDiagnostics(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.schemaExists = true
	gw.diagReport = &models.DiagnosticsReport{Status: models.DiagnosticsError, Summary: "tables missing"}
	o := New(gw, nil, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkAll(t, o)
	if _, err := o.SubmitCredential(ctx, "abc123", "https://tenant.example.com"); err != nil {
		t.Fatalf("SubmitCredential: %v", err)
	}
	snap, err := o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("RunConnectivity: %v", err)
	}
	if snap.Steps[StepDiagnostics].Status != StatusError {
		t.Fatalf("diagnostics step = %+v", snap.Steps[StepDiagnostics])
	}

	// The operator repairs the tenant store and re-runs the chain. The
	// old report belongs to the previous chain and must not be replayed.
	gw.diagReport = &models.DiagnosticsReport{Status: models.DiagnosticsOK, Summary: "all checks passed"}
	snap, err = o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("second RunConnectivity: %v", err)
	}
	if gw.calls["diagnostics"] != 2 {
		t.Errorf("diagnostics calls = %d, want 2", gw.calls["diagnostics"])
	}
	if snap.Steps[StepDiagnostics].Status != StatusSuccess {
		t.Errorf("diagnostics step after repair = %+v", snap.Steps[StepDiagnostics])
	}
}

func TestRecoveryAfterReopenedGateCommits(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.hasKey = true
	gw.schemaExists = true
	gw.diagReport = &models.DiagnosticsReport{Status: models.DiagnosticsOK}
	gw.verifyErr = apperr.New(apperr.KindValidationFailed, "tenant store rejected the key")
	o := New(gw, nil, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, err := o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("RunConnectivity: %v", err)
	}
	if !snap.GateReopened {
		t.Fatal("failed verify should reopen the gate")
	}

	// Full re-preparation and a fresh valid key close the reopened gate,
	// so the next green chain commits.
	checkAll(t, o)
	snap = o.Snapshot()
	if snap.GateReopened {
		t.Fatal("completing the checklist again must close the reopened gate")
	}
	if _, err := o.SubmitCredential(ctx, "fresh456", "https://tenant.example.com"); err != nil {
		t.Fatalf("SubmitCredential: %v", err)
	}
	snap, err = o.RunConnectivity(ctx)
	if err != nil {
		t.Fatalf("recovery RunConnectivity: %v", err)
	}
	if snap.Steps[StepCommit].Status != StatusSuccess {
		t.Fatalf("commit step after recovery = %+v", snap.Steps[StepCommit])
	}
	if gw.calls["update"] != 1 {
		t.Errorf("commit writes = %d, want 1", gw.calls["update"])
	}
	if !models.IsConnected(gw.settings, models.ProviderTuttiud) {
		t.Error("connection flag not committed after recovery")
	}
}

func TestBootstrapRequiresMissingSchema(t *testing.T) {
	gw := newFakeGateway()
	o := New(gw, nil, zerolog.Nop())
	if _, err := o.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := o.RunBootstrap(context.Background()); !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("bootstrap without a missing-schema check err = %v, want bad_request", err)
	}
}

type recordingRecorder struct {
	runs map[string]int
}

func (r *recordingRecorder) RecordChainRun(status string) {
	if r.runs == nil {
		r.runs = map[string]int{}
	}
	r.runs[status]++
}

func TestChainRunsAreRecorded(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.diagReport = &models.DiagnosticsReport{Status: models.DiagnosticsOK}
	rec := &recordingRecorder{}
	o := New(gw, rec, zerolog.Nop())

	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkAll(t, o)
	if _, err := o.SubmitCredential(ctx, "abc123", "https://tenant.example.com"); err != nil {
		t.Fatalf("SubmitCredential: %v", err)
	}

	// Schema missing: the chain stops at a warning.
	if _, err := o.RunConnectivity(ctx); err != nil {
		t.Fatalf("RunConnectivity: %v", err)
	}
	if rec.runs["warning"] != 1 {
		t.Errorf("warning runs = %d, want 1", rec.runs["warning"])
	}

	// Bootstrap re-runs the chain to a committed end.
	if _, err := o.RunBootstrap(ctx); err != nil {
		t.Fatalf("RunBootstrap: %v", err)
	}
	if rec.runs["success"] != 1 {
		t.Errorf("success runs = %d, want 1", rec.runs["success"])
	}

	// A revoked key on a later verify counts as an error run.
	gw.verifyErr = errors.New("rejected")
	if _, err := o.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if _, err := o.RunConnectivity(ctx); err != nil {
		t.Fatalf("verify RunConnectivity: %v", err)
	}
	if rec.runs["error"] != 1 {
		t.Errorf("error runs = %d, want 1", rec.runs["error"])
	}
}

func TestDiagnosticsSeverityMapsToStepStatus(t *testing.T) {
	cases := []struct {
		name   string
		report *models.DiagnosticsReport
		want   StepStatus
	}{
		{"ok", &models.DiagnosticsReport{Status: models.DiagnosticsOK}, StatusSuccess},
		{"warning", &models.DiagnosticsReport{Status: models.DiagnosticsWarning, Summary: "policy missing"}, StatusWarning},
		{"error", &models.DiagnosticsReport{Status: models.DiagnosticsError, Summary: "tables missing"}, StatusError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			gw := newFakeGateway()
			gw.schemaExists = true
			gw.diagReport = tc.report
			o := New(gw, nil, zerolog.Nop())

			if _, err := o.Load(ctx); err != nil {
				t.Fatalf("Load: %v", err)
			}
			checkAll(t, o)
			if _, err := o.SubmitCredential(ctx, "abc123", "https://tenant.example.com"); err != nil {
				t.Fatalf("SubmitCredential: %v", err)
			}
			snap, err := o.RunConnectivity(ctx)
			if err != nil {
				t.Fatalf("RunConnectivity: %v", err)
			}
			if snap.Steps[StepDiagnostics].Status != tc.want {
				t.Errorf("diagnostics step = %+v, want %s", snap.Steps[StepDiagnostics], tc.want)
			}
			if tc.want != StatusSuccess && snap.Steps[StepCommit].Status == StatusSuccess {
				t.Error("commit fired despite unhealthy diagnostics")
			}
		})
	}
}
