package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/verimed/scribe-verify/pkg/logger"
	"github.com/verimed/scribe-verify/pkg/types"
)

// VerificationRunsRepository handles verification run persistence
type VerificationRunsRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewVerificationRunsRepository creates a new verification runs repository
func NewVerificationRunsRepository(db *sql.DB, log *logger.Logger) *VerificationRunsRepository {
	return &VerificationRunsRepository{
		db:     db,
		logger: log,
	}
}

// Create stores a verification run together with its alerts in one
// transaction. The run ID is assigned by the caller.
func (r *VerificationRunsRepository) Create(ctx context.Context, run *types.VerificationRun) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	run.CreatedAt = time.Now()

	query := `
		INSERT INTO verification_runs (
			id, patient_id, visit_id, requested_by, is_safe_to_file,
			score, alert_count, critical_count, protocol_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.ExecContext(ctx, query,
		run.ID,
		run.PatientID,
		run.VisitID,
		run.RequestedBy,
		run.IsSafeToFile,
		run.Score,
		run.AlertCount,
		run.CriticalCount,
		run.ProtocolVersion,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification run: %w", err)
	}

	alertQuery := `
		INSERT INTO verification_alerts (run_id, position, rule_id, severity, message, field)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i, alert := range run.Alerts {
		if _, err := tx.ExecContext(ctx, alertQuery,
			run.ID, i, alert.RuleID, string(alert.Severity), alert.Message, alert.Field,
		); err != nil {
			return fmt.Errorf("failed to insert verification alert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verification run: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"run_id":      run.ID,
		"patient_id":  run.PatientID,
		"alert_count": run.AlertCount,
	}).Info("Stored verification run")
	return nil
}

// GetByID retrieves a verification run with its alerts
func (r *VerificationRunsRepository) GetByID(ctx context.Context, runID string) (*types.VerificationRun, error) {
	query := `
		SELECT id, patient_id, visit_id, requested_by, is_safe_to_file,
			   score, alert_count, critical_count, protocol_version, created_at
		FROM verification_runs
		WHERE id = $1`

	var run types.VerificationRun
	var protocolVersion sql.NullString

	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&run.PatientID,
		&run.VisitID,
		&run.RequestedBy,
		&run.IsSafeToFile,
		&run.Score,
		&run.AlertCount,
		&run.CriticalCount,
		&protocolVersion,
		&run.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("verification run not found: %s", runID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification run: %w", err)
	}
	run.ProtocolVersion = protocolVersion.String

	alerts, err := r.getAlerts(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Alerts = alerts

	return &run, nil
}

// getAlerts loads the alerts of one run in stored order
func (r *VerificationRunsRepository) getAlerts(ctx context.Context, runID string) ([]types.ComplianceAlert, error) {
	query := `
		SELECT rule_id, severity, message, field
		FROM verification_alerts
		WHERE run_id = $1
		ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.ComplianceAlert
	for rows.Next() {
		var alert types.ComplianceAlert
		var severity string
		var field sql.NullString
		if err := rows.Scan(&alert.RuleID, &severity, &alert.Message, &field); err != nil {
			return nil, fmt.Errorf("failed to scan verification alert: %w", err)
		}
		alert.Severity = types.Severity(severity)
		alert.Field = field.String
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// buildListQuery assembles the filtered run query. Every populated filter
// field must surface as a WHERE clause; a filter the SQL ignores would
// silently return runs the caller asked to exclude.
func buildListQuery(patientID string, filters *types.VerificationRunFilters) (string, []interface{}) {
	query := `
		SELECT id, patient_id, visit_id, requested_by, is_safe_to_file,
			   score, alert_count, critical_count, protocol_version, created_at
		FROM verification_runs
		WHERE patient_id = $1`
	args := []interface{}{patientID}

	limit := 50
	offset := 0
	if filters != nil {
		if filters.VisitID != "" {
			args = append(args, filters.VisitID)
			query += fmt.Sprintf(" AND visit_id = $%d", len(args))
		}
		if filters.SafeToFile != nil {
			args = append(args, *filters.SafeToFile)
			query += fmt.Sprintf(" AND is_safe_to_file = $%d", len(args))
		}
		if !filters.CreatedAfter.IsZero() {
			args = append(args, filters.CreatedAfter)
			query += fmt.Sprintf(" AND created_at > $%d", len(args))
		}
		if !filters.CreatedBefore.IsZero() {
			args = append(args, filters.CreatedBefore)
			query += fmt.Sprintf(" AND created_at < $%d", len(args))
		}
		if filters.Limit > 0 {
			limit = filters.Limit
		}
		offset = filters.Offset
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return query, args
}

// ListByPatient retrieves verification runs for a patient, newest first
func (r *VerificationRunsRepository) ListByPatient(ctx context.Context, patientID string, filters *types.VerificationRunFilters) ([]*types.VerificationRun, error) {
	query, args := buildListQuery(patientID, filters)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.VerificationRun
	for rows.Next() {
		var run types.VerificationRun
		var protocolVersion sql.NullString
		if err := rows.Scan(
			&run.ID,
			&run.PatientID,
			&run.VisitID,
			&run.RequestedBy,
			&run.IsSafeToFile,
			&run.Score,
			&run.AlertCount,
			&run.CriticalCount,
			&protocolVersion,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verification run: %w", err)
		}
		run.ProtocolVersion = protocolVersion.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
