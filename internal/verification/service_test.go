package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/verimed/scribe-verify/internal/engine"
	"github.com/verimed/scribe-verify/internal/protocol"
	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/types"
)

const serviceRulesYAML = `
version: "2.1"
checkers:
  allergy_checks:
    enabled: true
rules:
  allergy_checks:
    - name: "Penicillin Allergy"
      pattern:
        patient_allergies: ["penicillin"]
        conflicts:
          medications: ["amoxicillin", "ampicillin", "penicillin"]
      severity: "CRITICAL"
      message: "Penicillin-class antibiotic prescribed to penicillin-allergic patient."
`

// MockRunStore is a mock implementation of RunStore
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) Create(ctx context.Context, run *types.VerificationRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunStore) GetByID(ctx context.Context, runID string) (*types.VerificationRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.VerificationRun), args.Error(1)
}

func (m *MockRunStore) ListByPatient(ctx context.Context, patientID string, filters *types.VerificationRunFilters) ([]*types.VerificationRun, error) {
	args := m.Called(ctx, patientID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.VerificationRun), args.Error(1)
}

// MockEMRSource is a mock implementation of EMRSource
type MockEMRSource struct {
	mock.Mock
}

func (m *MockEMRSource) FetchPatientContext(ctx context.Context, patientID string) (*types.PatientProfile, *types.EMRContext, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*types.PatientProfile), args.Get(1).(*types.EMRContext), args.Error(2)
}

func newTestService(t *testing.T, store RunStore) *Service {
	t.Helper()
	return newTestServiceWithEMR(t, store, nil)
}

func newTestServiceWithEMR(t *testing.T, store RunStore, emr EMRSource) *Service {
	t.Helper()
	cfg, err := protocol.ParseConfig([]byte(serviceRulesYAML))
	require.NoError(t, err)
	registry := protocol.NewRegistry(cfg)
	log := logger.New("error")
	return NewService(engine.New(registry, log), cfg, registry, store, emr, log)
}

func cleanVerifyRequest() *VerifyRequest {
	admission := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	discharge := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	return &VerifyRequest{
		Patient: types.PatientProfile{
			PatientID: "patient-001",
			FirstName: "Ama",
			LastName:  "Mensah",
			Allergies: []string{"latex"},
		},
		Context: types.EMRContext{
			VisitID:       "visit-001",
			PatientID:     "patient-001",
			AdmissionDate: admission,
			DischargeDate: &discharge,
		},
		AIOutput: types.AIGeneratedOutput{
			SummaryText:    "Patient admitted for observation. Stable at discharge.",
			ExtractedDates: []time.Time{time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		},
		RequestedBy: "user-001",
	}
}

func TestServiceVerify(t *testing.T) {
	t.Run("persists a safe run with score and protocol version", func(t *testing.T) {
		store := &MockRunStore{}
		store.On("Create", mock.Anything, mock.AnythingOfType("*types.VerificationRun")).Return(nil)
		service := newTestService(t, store)

		run, err := service.Verify(context.Background(), cleanVerifyRequest())
		require.NoError(t, err)

		assert.NotEmpty(t, run.ID)
		assert.Equal(t, "patient-001", run.PatientID)
		assert.Equal(t, "visit-001", run.VisitID)
		assert.Equal(t, "user-001", run.RequestedBy)
		assert.True(t, run.IsSafeToFile)
		assert.Equal(t, 1.0, run.Score)
		assert.Zero(t, run.AlertCount)
		assert.Zero(t, run.CriticalCount)
		assert.Equal(t, "2.1", run.ProtocolVersion)
		store.AssertExpectations(t)
	})

	t.Run("persists a blocked run when a critical alert fires", func(t *testing.T) {
		store := &MockRunStore{}
		var persisted *types.VerificationRun
		store.On("Create", mock.Anything, mock.AnythingOfType("*types.VerificationRun")).
			Run(func(args mock.Arguments) {
				persisted = args.Get(1).(*types.VerificationRun)
			}).Return(nil)
		service := newTestService(t, store)

		req := cleanVerifyRequest()
		req.Patient.Allergies = []string{"Penicillin"}
		req.AIOutput.ExtractedMedications = []types.ExtractedMedication{{Name: "Amoxicillin", Dosage: "500mg"}}

		run, err := service.Verify(context.Background(), req)
		require.NoError(t, err)

		assert.False(t, run.IsSafeToFile)
		assert.Equal(t, 0.0, run.Score)
		require.Len(t, run.Alerts, 1)
		assert.Equal(t, "PROTOCOL_ALLERGY_CHECKS_PENICILLIN_ALLERGY", run.Alerts[0].RuleID)
		assert.Equal(t, types.SeverityCritical, run.Alerts[0].Severity)
		assert.Equal(t, 1, run.CriticalCount)
		require.NotNil(t, persisted)
		assert.Equal(t, run.ID, persisted.ID)
	})

	t.Run("rejects a request without a patient ID", func(t *testing.T) {
		service := newTestService(t, &MockRunStore{})

		req := cleanVerifyRequest()
		req.Patient.PatientID = ""

		_, err := service.Verify(context.Background(), req)
		var verifyErr *types.VerifyError
		require.ErrorAs(t, err, &verifyErr)
		assert.Equal(t, types.ErrorTypeValidation, verifyErr.Type)
	})

	t.Run("rejects a request without a visit ID", func(t *testing.T) {
		service := newTestService(t, &MockRunStore{})

		req := cleanVerifyRequest()
		req.Context.VisitID = ""

		_, err := service.Verify(context.Background(), req)
		var verifyErr *types.VerifyError
		require.ErrorAs(t, err, &verifyErr)
		assert.Equal(t, types.ErrorTypeValidation, verifyErr.Type)
	})

	t.Run("surfaces a store failure as an internal error", func(t *testing.T) {
		store := &MockRunStore{}
		store.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)
		service := newTestService(t, store)

		_, err := service.Verify(context.Background(), cleanVerifyRequest())
		var verifyErr *types.VerifyError
		require.ErrorAs(t, err, &verifyErr)
		assert.Equal(t, types.ErrorTypeInternal, verifyErr.Type)
	})

	t.Run("resolves ground truth from the EMR when a patient ref is given", func(t *testing.T) {
		reference := cleanVerifyRequest()
		emr := &MockEMRSource{}
		emr.On("FetchPatientContext", mock.Anything, "pat-001").
			Return(&reference.Patient, &reference.Context, nil)
		service := newTestServiceWithEMR(t, nil, emr)

		req := &VerifyRequest{
			PatientRef: "pat-001",
			AIOutput:   reference.AIOutput,
		}
		run, err := service.Verify(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "patient-001", run.PatientID)
		assert.Equal(t, "visit-001", run.VisitID)
		assert.True(t, run.IsSafeToFile)
		emr.AssertExpectations(t)
	})

	t.Run("rejects a patient ref when no EMR is configured", func(t *testing.T) {
		service := newTestService(t, nil)

		_, err := service.Verify(context.Background(), &VerifyRequest{PatientRef: "pat-001"})
		var verifyErr *types.VerifyError
		require.ErrorAs(t, err, &verifyErr)
		assert.Equal(t, types.ErrorTypeValidation, verifyErr.Type)
	})

	t.Run("surfaces an EMR lookup failure", func(t *testing.T) {
		emr := &MockEMRSource{}
		emr.On("FetchPatientContext", mock.Anything, "missing").
			Return(nil, nil, types.NewNotFoundError(types.ErrCodeNotFound, "FHIR resource not found"))
		service := newTestServiceWithEMR(t, nil, emr)

		_, err := service.Verify(context.Background(), &VerifyRequest{PatientRef: "missing"})
		var verifyErr *types.VerifyError
		require.ErrorAs(t, err, &verifyErr)
		assert.Equal(t, types.ErrorTypeNotFound, verifyErr.Type)
	})

	t.Run("verifies without a store configured", func(t *testing.T) {
		service := newTestService(t, nil)

		run, err := service.Verify(context.Background(), cleanVerifyRequest())
		require.NoError(t, err)
		assert.True(t, run.IsSafeToFile)
	})
}

func TestServiceRunRetrieval(t *testing.T) {
	t.Run("returns a run by ID", func(t *testing.T) {
		store := &MockRunStore{}
		want := &types.VerificationRun{ID: "run-001", PatientID: "patient-001"}
		store.On("GetByID", mock.Anything, "run-001").Return(want, nil)
		service := newTestService(t, store)

		run, err := service.GetRun(context.Background(), "run-001")
		require.NoError(t, err)
		assert.Equal(t, want, run)
	})

	t.Run("lists runs for a patient", func(t *testing.T) {
		store := &MockRunStore{}
		want := []*types.VerificationRun{{ID: "run-002"}, {ID: "run-001"}}
		store.On("ListByPatient", mock.Anything, "patient-001", mock.Anything).Return(want, nil)
		service := newTestService(t, store)

		runs, err := service.ListRuns(context.Background(), "patient-001", &types.VerificationRunFilters{})
		require.NoError(t, err)
		assert.Equal(t, want, runs)
	})

	t.Run("requires a patient ID for listing", func(t *testing.T) {
		service := newTestService(t, &MockRunStore{})

		_, err := service.ListRuns(context.Background(), "", nil)
		var verifyErr *types.VerifyError
		require.ErrorAs(t, err, &verifyErr)
		assert.Equal(t, types.ErrorTypeValidation, verifyErr.Type)
	})

	t.Run("reports not found when history is disabled", func(t *testing.T) {
		service := newTestService(t, nil)

		_, err := service.GetRun(context.Background(), "run-001")
		var verifyErr *types.VerifyError
		require.ErrorAs(t, err, &verifyErr)
		assert.Equal(t, types.ErrorTypeNotFound, verifyErr.Type)
	})
}

func TestServiceProtocols(t *testing.T) {
	t.Run("reports the active configuration", func(t *testing.T) {
		service := newTestService(t, nil)

		info := service.Protocols()
		assert.Equal(t, "2.1", info.Version)
		assert.Equal(t, 1, info.RuleCount)
		assert.Equal(t, []string{"allergy_checks"}, info.EnabledCheckers)
	})

	t.Run("reports empty configuration when no rules file is loaded", func(t *testing.T) {
		log := logger.New("error")
		service := NewService(engine.New(nil, log), nil, nil, nil, nil, log)

		info := service.Protocols()
		assert.Empty(t, info.Version)
		assert.Zero(t, info.RuleCount)
		assert.Empty(t, info.EnabledCheckers)
	})
}
