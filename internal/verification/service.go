package verification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verimed/scribe-verify/internal/engine"
	"github.com/verimed/scribe-verify/internal/protocol"
	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/monitoring"
	"github.com/verimed/scribe-verify/pkg/types"
)

const serviceName = "verification-service"

// RunStore persists verification runs for review history and audit.
type RunStore interface {
	Create(ctx context.Context, run *types.VerificationRun) error
	GetByID(ctx context.Context, runID string) (*types.VerificationRun, error)
	ListByPatient(ctx context.Context, patientID string, filters *types.VerificationRunFilters) ([]*types.VerificationRun, error)
}

// EMRSource resolves ground truth from an external EMR system when the
// caller supplies a patient reference instead of inline records.
type EMRSource interface {
	FetchPatientContext(ctx context.Context, patientID string) (*types.PatientProfile, *types.EMRContext, error)
}

// VerifyRequest carries one note verification: the trusted patient and
// encounter records alongside the untrusted AI-generated output. When
// PatientRef is set the profile and context are resolved from the EMR
// instead of taken from the request body.
type VerifyRequest struct {
	PatientRef  string                  `json:"patient_ref,omitempty"`
	Patient     types.PatientProfile    `json:"patient"`
	Context     types.EMRContext        `json:"emr_context"`
	AIOutput    types.AIGeneratedOutput `json:"ai_output"`
	RequestedBy string                  `json:"-"`
}

// ProtocolInfo summarizes the protocol configuration a deployment is
// currently enforcing.
type ProtocolInfo struct {
	Version         string   `json:"version"`
	EnabledCheckers []string `json:"enabled_checkers"`
	RuleCount       int      `json:"rule_count"`
}

// Service orchestrates verification runs: it drives the engine, records
// metrics, persists the outcome, and emits the audit log event.
type Service struct {
	engine    *engine.Engine
	protocols *protocol.Config
	registry  *protocol.Registry
	store     RunStore
	emr       EMRSource
	logger    *logger.Logger
}

// NewService creates the verification service. protocols and registry may
// be nil when no protocol rules file is configured; the built-in invariant,
// adherence, and safety checks still run. emr may be nil when no EMR
// integration is configured, in which case requests must carry inline
// ground truth.
func NewService(eng *engine.Engine, protocols *protocol.Config, registry *protocol.Registry, store RunStore, emr EMRSource, log *logger.Logger) *Service {
	return &Service{
		engine:    eng,
		protocols: protocols,
		registry:  registry,
		store:     store,
		emr:       emr,
		logger:    log,
	}
}

// Verify runs the full verification pipeline for one AI-generated note and
// persists the outcome as a VerificationRun. The run is recorded whether or
// not the note is safe to file; blocked notes are the runs reviewers most
// need to find later.
func (s *Service) Verify(ctx context.Context, req *VerifyRequest) (*types.VerificationRun, error) {
	if req.PatientRef != "" {
		if s.emr == nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient_ref requires a configured EMR integration", nil)
		}
		profile, emrContext, err := s.emr.FetchPatientContext(ctx, req.PatientRef)
		if err != nil {
			return nil, err
		}
		req.Patient = *profile
		req.Context = *emrContext
	}

	if req.Patient.PatientID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient profile with patient_id is required", nil)
	}
	if req.Context.VisitID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "emr context with visit_id is required", nil)
	}
	if req.Context.AdmissionDate.IsZero() {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "emr context admission_date is required", nil)
	}

	start := time.Now()
	result := s.engine.Verify(req.Patient, req.Context, req.AIOutput)
	duration := time.Since(start)

	run := s.buildRun(req, result)

	monitoring.RecordVerification(serviceName, run.IsSafeToFile, run.Score, duration)
	for _, alert := range run.Alerts {
		monitoring.RecordAlert(serviceName, string(alert.Severity), alert.RuleID)
	}

	if s.store != nil {
		if err := s.store.Create(ctx, run); err != nil {
			s.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to persist verification run")
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to persist verification run", err)
		}
	}

	s.logger.Verification(ctx, run.ID, run.PatientID, run.IsSafeToFile, run.Score, run.AlertCount)
	return run, nil
}

// buildRun flattens a Result into the persisted run record. A failure
// surfaces only its critical alerts; that is the contract of the result
// type, and the record reflects what the caller was told.
func (s *Service) buildRun(req *VerifyRequest, result types.Result) *types.VerificationRun {
	run := &types.VerificationRun{
		ID:          uuid.New().String(),
		PatientID:   req.Patient.PatientID,
		VisitID:     req.Context.VisitID,
		RequestedBy: req.RequestedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if s.protocols != nil {
		run.ProtocolVersion = s.protocols.Version()
	}

	if value, ok := result.Value(); ok {
		run.IsSafeToFile = value.IsSafeToFile
		run.Score = value.Score
		run.Alerts = value.Alerts
	} else if criticals, ok := result.CriticalAlerts(); ok {
		run.IsSafeToFile = false
		run.Score = 0.0
		run.Alerts = criticals
		run.CriticalCount = len(criticals)
	}
	run.AlertCount = len(run.Alerts)
	return run
}

// GetRun retrieves a single persisted verification run by ID.
func (s *Service) GetRun(ctx context.Context, runID string) (*types.VerificationRun, error) {
	if s.store == nil {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "verification run history is not enabled")
	}
	return s.store.GetByID(ctx, runID)
}

// ListRuns retrieves a patient's verification run history, newest first.
func (s *Service) ListRuns(ctx context.Context, patientID string, filters *types.VerificationRunFilters) ([]*types.VerificationRun, error) {
	if patientID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "patient_id is required", nil)
	}
	if s.store == nil {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "verification run history is not enabled")
	}
	return s.store.ListByPatient(ctx, patientID, filters)
}

// Protocols reports the active protocol configuration.
func (s *Service) Protocols() ProtocolInfo {
	info := ProtocolInfo{EnabledCheckers: []string{}}
	if s.protocols != nil {
		info.Version = s.protocols.Version()
		info.RuleCount = s.protocols.RuleCount()
	}
	if s.registry != nil {
		info.EnabledCheckers = s.registry.EnabledCheckers()
	}
	return info
}
