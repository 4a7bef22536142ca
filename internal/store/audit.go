package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/larder/internal/model"
)

// AuditStore appends to and reads the audit log. The schema rejects updates
// and deletes.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

const auditCols = `id, user_id, household_id, action, detail, created_at`

func scanAuditEntry(s scanner) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var householdID sql.NullInt64
	if err := s.Scan(&e.ID, &e.UserID, &householdID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
		return nil, err
	}
	if householdID.Valid {
		e.HouseholdID = &householdID.Int64
	}
	return &e, nil
}

// Record appends an entry. A zero householdID is stored as NULL.
func (s *AuditStore) Record(ctx context.Context, userID, householdID int64, action, detail string) error {
	var hID sql.NullInt64
	if householdID != 0 {
		hID = sql.NullInt64{Int64: householdID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, household_id, action, detail) VALUES (?, ?, ?, ?)`,
		userID, hID, action, detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListForHousehold returns the most recent entries first.
func (s *AuditStore) ListForHousehold(ctx context.Context, householdID int64, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditCols+` FROM audit_log WHERE household_id = ? ORDER BY id DESC LIMIT ?`,
		householdID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
