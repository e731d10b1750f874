// Package wizard implements the onboarding state machine that walks an
// organization from an empty tenant store to a verified, committed
// connection. All step state is re-derived from server data on load; the
// orchestrator holds no memory that could diverge from the control store.
package wizard

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
	"github.com/tuttiud/platform/internal/models"
	"github.com/tuttiud/platform/internal/setup"
)

// Step identifies one wizard step.
type Step int

const (
	StepPreparation Step = iota
	StepCredential
	StepConnectivity
	StepSchema
	StepDiagnostics
	StepCommit

	numSteps
)

// StepStatus is the lifecycle status of a single step.
type StepStatus string

const (
	StatusIdle    StepStatus = "idle"
	StatusLoading StepStatus = "loading"
	StatusSuccess StepStatus = "success"
	StatusWarning StepStatus = "warning"
	StatusError   StepStatus = "error"
)

// StepState is the externally visible state of one step. Detail carries the
// raw upstream error text for a support escalation panel.
type StepState struct {
	Status  StepStatus `json:"status"`
	Message string     `json:"message,omitempty"`
	Detail  string     `json:"detail,omitempty"`
}

// Checklist is the manual preparation gate: three items the operator must
// confirm before first-time setup may proceed.
type Checklist struct {
	SchemaExposed  bool `json:"schemaExposed"`
	ScriptExecuted bool `json:"scriptExecuted"`
	KeyCaptured    bool `json:"keyCaptured"`
}

// Satisfied reports whether all three preparation items are checked.
func (c Checklist) Satisfied() bool {
	return c.SchemaExposed && c.ScriptExecuted && c.KeyCaptured
}

// Gateway is the slice of the setup gateway an onboarding session uses.
// Credentials and organization identity are bound by the adapter behind it.
type Gateway interface {
	Status(ctx context.Context) (bool, error)
	Settings(ctx context.Context) (map[string]any, error)
	StoreCredential(ctx context.Context, appKey, storeURL string) (*setup.StoreCredentialResult, error)
	Initialize(ctx context.Context) error
	VerifyStored(ctx context.Context) (*models.DiagnosticsReport, error)
	SchemaStatus(ctx context.Context) (bool, error)
	SchemaBootstrap(ctx context.Context) error
	Diagnostics(ctx context.Context) (*models.DiagnosticsReport, error)
	UpdateConnectionStatus(ctx context.Context, status string) (map[string]any, error)
}

// Snapshot is a point-in-time copy of the wizard state.
type Snapshot struct {
	Steps              [numSteps]StepState     `json:"steps"`
	Bootstrap          StepState               `json:"bootstrap"`
	Checklist          Checklist               `json:"checklist"`
	GateSatisfied      bool                    `json:"gateSatisfied"`
	GateReopened       bool                    `json:"gateReopened"`
	HasStoredKey       bool                    `json:"hasStoredKey"`
	ConnectionStatus   string                  `json:"connectionStatus"`
	SchemaExists       bool                    `json:"schemaExists"`
	ShowCredentialStep bool                    `json:"showCredentialStep"`
	Diagnostics        *models.DiagnosticsReport `json:"diagnostics,omitempty"`
}

// Orchestrator drives the onboarding steps for one organization session.
// Methods are safe for concurrent use; network calls run outside the lock
// and results from a superseded attempt are discarded by generation check.
// Recorder counts completed validation chains by outcome. A nil Recorder
// disables counting.
type Recorder interface {
	RecordChainRun(status string)
}

type Orchestrator struct {
	gw       Gateway
	recorder Recorder
	logger   zerolog.Logger

	mu               sync.Mutex
	steps            [numSteps]StepState
	bootstrap        StepState
	checklist        Checklist
	gateReopened     bool
	hasStoredKey     bool
	returnVisit      bool
	connectionStatus string
	schemaExists     bool
	diagnostics      *models.DiagnosticsReport
	autoVerifyFired  bool
	committed        bool
	generation       uint64
}

// New creates an Orchestrator for one onboarding session.
func New(gw Gateway, recorder Recorder, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		gw:       gw,
		recorder: recorder,
		logger:   logger.With().Str("component", "onboarding_wizard").Logger(),
	}
	o.resetSteps()
	return o
}

// Load re-derives the wizard's entry state from server-authoritative data.
// Calling it twice against unchanged server state yields identical
// snapshots; it never carries forward in-session progress.
func (o *Orchestrator) Load(ctx context.Context) (*Snapshot, error) {
	hasKey, err := o.gw.Status(ctx)
	if err != nil {
		return nil, err
	}
	metadata, err := o.gw.Settings(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.resetSteps()
	o.checklist = Checklist{}
	o.gateReopened = false
	o.hasStoredKey = hasKey
	o.returnVisit = hasKey
	o.connectionStatus = models.ConnectionStatus(metadata, models.ProviderTuttiud)
	o.schemaExists = false
	o.diagnostics = nil
	o.autoVerifyFired = false
	o.committed = false

	return o.snapshotLocked(), nil
}

// SetChecklistItem updates one preparation item. Unchecking an item while
// the gate is satisfied reverts the gate.
func (o *Orchestrator) SetChecklistItem(item string, checked bool) (*Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch item {
	case "schemaExposed":
		o.checklist.SchemaExposed = checked
	case "scriptExecuted":
		o.checklist.ScriptExecuted = checked
	case "keyCaptured":
		o.checklist.KeyCaptured = checked
	default:
		return nil, apperr.New(apperr.KindBadRequest, "unknown checklist item")
	}

	if o.checklist.Satisfied() {
		// Finishing the preparation again closes a reopened gate, so a
		// later green chain may commit.
		o.gateReopened = false
		o.steps[StepPreparation] = StepState{Status: StatusSuccess}
	} else {
		o.steps[StepPreparation] = StepState{Status: StatusIdle}
	}
	return o.snapshotLocked(), nil
}

// AutoVerifyDue reports whether a silent connectivity re-validation should
// be scheduled. It is true at most once per load.
func (o *Orchestrator) AutoVerifyDue() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connectionStatus == models.ConnectionStatusConnected && !o.autoVerifyFired
}

// MaybeAutoVerify runs the connectivity chain once if the stored connection
// status is already "connected". The one-shot flag prevents duplicate
// firing no matter how often the caller polls.
func (o *Orchestrator) MaybeAutoVerify(ctx context.Context) (*Snapshot, error) {
	o.mu.Lock()
	if o.connectionStatus != models.ConnectionStatusConnected || o.autoVerifyFired {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	o.autoVerifyFired = true
	o.mu.Unlock()

	return o.RunConnectivity(ctx)
}

// SubmitCredential stores a new application key. It resets only the
// credential step; later steps keep their state until the connectivity
// chain re-runs.
func (o *Orchestrator) SubmitCredential(ctx context.Context, appKey, storeURL string) (*Snapshot, error) {
	o.mu.Lock()
	if !o.credentialStepVisibleLocked() {
		o.mu.Unlock()
		return nil, apperr.New(apperr.KindBadRequest, "complete the preparation checklist before submitting a key")
	}
	gen := o.generation
	o.steps[StepCredential] = StepState{Status: StatusLoading}
	o.mu.Unlock()

	result, err := o.gw.StoreCredential(ctx, appKey, storeURL)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return o.snapshotLocked(), nil
	}

	if err != nil {
		o.steps[StepCredential] = failedState("the application key could not be stored", err)
		return o.snapshotLocked(), nil
	}

	o.hasStoredKey = true
	o.returnVisit = false
	o.steps[StepCredential] = StepState{Status: StatusSuccess}
	if result != nil && result.Metadata != nil {
		o.connectionStatus = models.ConnectionStatus(result.Metadata, models.ProviderTuttiud)
	}
	o.logger.Info().Msg("credential submitted and validated")
	return o.snapshotLocked(), nil
}

// RunConnectivity starts the validation chain (connectivity, schema check,
// diagnostics, commit). It is user-triggered; the only automatic caller is
// the one-shot auto-verify.
func (o *Orchestrator) RunConnectivity(ctx context.Context) (*Snapshot, error) {
	snap, err := o.runChain(ctx)
	if o.recorder != nil && err == nil && snap != nil {
		o.recorder.RecordChainRun(chainOutcome(snap))
	}
	return snap, err
}

func (o *Orchestrator) runChain(ctx context.Context) (*Snapshot, error) {
	o.mu.Lock()
	if !o.checklist.Satisfied() && !o.hasStoredKey && o.connectionStatus != models.ConnectionStatusConnected {
		o.mu.Unlock()
		return nil, apperr.New(apperr.KindBadRequest, "complete the preparation checklist first")
	}
	o.generation++
	gen := o.generation
	o.steps[StepConnectivity] = StepState{Status: StatusLoading}
	// A cached report belongs to the previous chain; only the verify
	// branch below may repopulate it for this one.
	o.diagnostics = nil
	// A key stored on a previous visit is re-validated; a key submitted
	// this session already passed its probe, so plain connectivity is
	// enough.
	verifyPath := o.returnVisit && o.hasStoredKey
	alreadyConnected := o.connectionStatus == models.ConnectionStatusConnected
	o.mu.Unlock()

	switch {
	case verifyPath:
		// Return visit: re-validate the stored credential. The diagnostics
		// this produces are reused by the diagnostics step so the
		// privileged call runs only once per chain.
		report, err := o.gw.VerifyStored(ctx)

		o.mu.Lock()
		if gen != o.generation {
			snap := o.snapshotLocked()
			o.mu.Unlock()
			return snap, nil
		}
		if err != nil {
			o.steps[StepConnectivity] = failedState("the stored application key failed verification", err)
			o.reopenGateLocked()
			snap := o.snapshotLocked()
			o.mu.Unlock()
			o.logger.Warn().Err(err).Msg("stored credential verification failed, preparation gate reopened")
			return snap, nil
		}
		o.diagnostics = report
		o.steps[StepConnectivity] = StepState{Status: StatusSuccess}
		o.mu.Unlock()

	case alreadyConnected:
		// Connection flag already committed: no network call needed.
		o.mu.Lock()
		if gen != o.generation {
			snap := o.snapshotLocked()
			o.mu.Unlock()
			return snap, nil
		}
		o.steps[StepConnectivity] = StepState{Status: StatusSuccess}
		o.mu.Unlock()

	default:
		err := o.gw.Initialize(ctx)

		o.mu.Lock()
		if gen != o.generation {
			snap := o.snapshotLocked()
			o.mu.Unlock()
			return snap, nil
		}
		if err != nil {
			if apperr.Is(err, apperr.KindMissingFunction) {
				o.steps[StepConnectivity] = StepState{
					Status:  StatusWarning,
					Message: "the tenant store is not prepared; run the setup script and try again",
					Detail:  err.Error(),
				}
				o.reopenGateLocked()
			} else {
				o.steps[StepConnectivity] = failedState("could not reach the tenant store", err)
			}
			snap := o.snapshotLocked()
			o.mu.Unlock()
			return snap, nil
		}
		o.steps[StepConnectivity] = StepState{Status: StatusSuccess}
		o.mu.Unlock()
	}

	return o.runSchemaCheck(ctx, gen)
}

// RunBootstrap runs the idempotent tenant-side provisioning procedure.
// Allowed only after the schema check reported the schema missing. Success
// re-runs the whole validation chain.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*Snapshot, error) {
	o.mu.Lock()
	if o.steps[StepSchema].Status != StatusWarning {
		o.mu.Unlock()
		return nil, apperr.New(apperr.KindBadRequest, "schema bootstrap is only available after a missing-schema check")
	}
	gen := o.generation
	o.bootstrap = StepState{Status: StatusLoading}
	o.mu.Unlock()

	err := o.gw.SchemaBootstrap(ctx)

	o.mu.Lock()
	if gen != o.generation {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	if err != nil {
		o.bootstrap = failedState("schema provisioning failed", err)
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	o.bootstrap = StepState{Status: StatusSuccess}
	o.mu.Unlock()

	o.logger.Info().Msg("tenant schema bootstrapped, re-running validation chain")
	return o.RunConnectivity(ctx)
}

// RetryCommit re-attempts a failed connection-flag commit. Commits are
// never retried automatically.
func (o *Orchestrator) RetryCommit(ctx context.Context) (*Snapshot, error) {
	o.mu.Lock()
	if o.steps[StepCommit].Status != StatusError {
		o.mu.Unlock()
		return nil, apperr.New(apperr.KindBadRequest, "no failed commit to retry")
	}
	o.committed = false
	gen := o.generation
	o.mu.Unlock()

	return o.maybeCommit(ctx, gen)
}

// Snapshot returns a copy of the current wizard state.
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) runSchemaCheck(ctx context.Context, gen uint64) (*Snapshot, error) {
	o.mu.Lock()
	if gen != o.generation {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	// The chain restarts here, so downstream results from a prior run are
	// stale now and not before.
	o.steps[StepSchema] = StepState{Status: StatusLoading}
	o.steps[StepDiagnostics] = StepState{Status: StatusIdle}
	o.steps[StepCommit] = StepState{Status: StatusIdle}
	o.mu.Unlock()

	exists, err := o.gw.SchemaStatus(ctx)

	o.mu.Lock()
	if gen != o.generation {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	if err != nil {
		o.steps[StepSchema] = failedState("the schema check failed", err)
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	o.schemaExists = exists
	if !exists {
		o.steps[StepSchema] = StepState{
			Status:  StatusWarning,
			Message: "the dedicated schema does not exist yet; run the bootstrap to create it",
		}
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	o.steps[StepSchema] = StepState{Status: StatusSuccess}
	o.mu.Unlock()

	return o.runDiagnostics(ctx, gen)
}

func (o *Orchestrator) runDiagnostics(ctx context.Context, gen uint64) (*Snapshot, error) {
	o.mu.Lock()
	if gen != o.generation {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	o.steps[StepDiagnostics] = StepState{Status: StatusLoading}
	cached := o.diagnostics
	o.mu.Unlock()

	report := cached
	if report == nil {
		var err error
		report, err = o.gw.Diagnostics(ctx)
		if err != nil {
			o.mu.Lock()
			if gen == o.generation {
				o.steps[StepDiagnostics] = failedState("diagnostics could not be run", err)
			}
			snap := o.snapshotLocked()
			o.mu.Unlock()
			return snap, nil
		}
	}

	o.mu.Lock()
	if gen != o.generation {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	o.diagnostics = report
	switch report.Status {
	case models.DiagnosticsOK:
		o.steps[StepDiagnostics] = StepState{Status: StatusSuccess}
	case models.DiagnosticsWarning:
		o.steps[StepDiagnostics] = StepState{Status: StatusWarning, Message: report.Summary}
	default:
		o.steps[StepDiagnostics] = StepState{Status: StatusError, Message: report.Summary}
	}
	o.mu.Unlock()

	return o.maybeCommit(ctx, gen)
}

// maybeCommit fires the connection-flag commit when the whole chain is
// green, at most once per settings snapshot.
func (o *Orchestrator) maybeCommit(ctx context.Context, gen uint64) (*Snapshot, error) {
	o.mu.Lock()
	due := gen == o.generation &&
		o.steps[StepConnectivity].Status == StatusSuccess &&
		o.steps[StepSchema].Status == StatusSuccess &&
		o.steps[StepDiagnostics].Status == StatusSuccess &&
		!o.gateReopened &&
		!o.committed
	if !due {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	if o.connectionStatus == models.ConnectionStatusConnected {
		// Already committed in a previous session. Recording the step as
		// done without a write keeps the commit a true no-op on re-runs.
		o.committed = true
		o.steps[StepCommit] = StepState{Status: StatusSuccess}
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, nil
	}
	o.committed = true
	o.steps[StepCommit] = StepState{Status: StatusLoading}
	o.mu.Unlock()

	metadata, err := o.gw.UpdateConnectionStatus(ctx, models.ConnectionStatusConnected)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return o.snapshotLocked(), nil
	}
	if err != nil {
		o.committed = false
		o.steps[StepCommit] = failedState("could not record the connection", err)
		return o.snapshotLocked(), nil
	}
	o.connectionStatus = models.ConnectionStatus(metadata, models.ProviderTuttiud)
	o.steps[StepCommit] = StepState{Status: StatusSuccess}
	o.logger.Info().Msg("connection flag committed")
	return o.snapshotLocked(), nil
}

// reopenGateLocked forces the operator back through manual preparation.
// The stored connection status is left untouched; only a fresh successful
// commit may change it.
func (o *Orchestrator) reopenGateLocked() {
	o.gateReopened = true
	o.checklist = Checklist{}
	o.steps[StepPreparation] = StepState{
		Status:  StatusWarning,
		Message: "the tenant store needs to be re-prepared before continuing",
	}
}

func (o *Orchestrator) credentialStepVisibleLocked() bool {
	if o.hasStoredKey {
		return true
	}
	return o.checklist.Satisfied()
}

func (o *Orchestrator) resetSteps() {
	for i := range o.steps {
		o.steps[i] = StepState{Status: StatusIdle}
	}
	o.bootstrap = StepState{Status: StatusIdle}
}

func (o *Orchestrator) snapshotLocked() *Snapshot {
	return &Snapshot{
		Steps:              o.steps,
		Bootstrap:          o.bootstrap,
		Checklist:          o.checklist,
		GateSatisfied:      o.checklist.Satisfied(),
		GateReopened:       o.gateReopened,
		HasStoredKey:       o.hasStoredKey,
		ConnectionStatus:   o.connectionStatus,
		SchemaExists:       o.schemaExists,
		ShowCredentialStep: o.credentialStepVisibleLocked(),
		Diagnostics:        o.diagnostics,
	}
}

func failedState(message string, err error) StepState {
	return StepState{Status: StatusError, Message: message, Detail: err.Error()}
}

// chainOutcome reduces a finished chain to one label: the most severe
// status any validation step reached, or "success" only when the commit
// went through.
func chainOutcome(snap *Snapshot) string {
	sawWarning := false
	for _, step := range []Step{StepConnectivity, StepSchema, StepDiagnostics, StepCommit} {
		switch snap.Steps[step].Status {
		case StatusError:
			return string(StatusError)
		case StatusWarning:
			sawWarning = true
		}
	}
	if sawWarning {
		return string(StatusWarning)
	}
	if snap.Steps[StepCommit].Status == StatusSuccess {
		return string(StatusSuccess)
	}
	return "incomplete"
}
