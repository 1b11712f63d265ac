package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for verification run storage
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	if err := db.createExtensions(ctx); err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	tables := []string{
		createVerificationRunsTable,
		createVerificationAlertsTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createVerificationRunsIndexes,
		createVerificationAlertsIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func (db *DB) createExtensions(ctx context.Context) error {
	extensions := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	}

	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("failed to create extension: %w", err)
		}
	}
	return nil
}

const createVerificationRunsTable = `
CREATE TABLE IF NOT EXISTS verification_runs (
	id UUID PRIMARY KEY,
	patient_id VARCHAR(128) NOT NULL,
	visit_id VARCHAR(128) NOT NULL,
	requested_by VARCHAR(128) NOT NULL,
	is_safe_to_file BOOLEAN NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	alert_count INTEGER NOT NULL,
	critical_count INTEGER NOT NULL,
	protocol_version VARCHAR(64),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const createVerificationAlertsTable = `
CREATE TABLE IF NOT EXISTS verification_alerts (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
	run_id UUID NOT NULL REFERENCES verification_runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	rule_id VARCHAR(256) NOT NULL,
	severity VARCHAR(16) NOT NULL,
	message TEXT NOT NULL,
	field VARCHAR(128)
);`

const createVerificationRunsIndexes = `
CREATE INDEX IF NOT EXISTS idx_verification_runs_patient_id ON verification_runs(patient_id);
CREATE INDEX IF NOT EXISTS idx_verification_runs_visit_id ON verification_runs(visit_id);
CREATE INDEX IF NOT EXISTS idx_verification_runs_created_at ON verification_runs(created_at);`

const createVerificationAlertsIndexes = `
CREATE INDEX IF NOT EXISTS idx_verification_alerts_run_id ON verification_alerts(run_id);
CREATE INDEX IF NOT EXISTS idx_verification_alerts_rule_id ON verification_alerts(rule_id);`
