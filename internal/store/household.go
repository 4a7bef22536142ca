package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/dukerupert/larder/internal/model"
)

const (
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 8
	joinCodeAttempts = 5
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(s scanner) (*model.Household, error) {
	var h model.Household
	err := s.Scan(&h.ID, &h.Name, &h.Location, &h.JoinCode, &h.AdminID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanMembership(s scanner) (*model.Membership, error) {
	var m model.Membership
	err := s.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const householdSelect = `SELECT h.id, h.name, h.location, h.join_code, COALESCE(a.user_id, 0), h.created_at, h.updated_at
	FROM households h
	LEFT JOIN memberships a ON a.household_id = h.id AND a.role = 'admin'`

const membershipCols = `id, household_id, user_id, role, status, created_at, updated_at`

// generateJoinCode returns a random code drawn from an alphabet without
// look-alike characters (no 0/O, 1/I).
func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		buf[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Create inserts a household and its creator's approved admin membership in
// one transaction.
func (s *HouseholdStore) Create(ctx context.Context, name, location string, adminID int64) (*model.Household, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var householdID int64
	for attempt := 0; ; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			return nil, err
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO households (name, location, join_code) VALUES (?, ?, ?)`,
			name, location, code,
		)
		if isUniqueViolation(err) && attempt+1 < joinCodeAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert household: %w", err)
		}
		if householdID, err = result.LastInsertId(); err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		break
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memberships (household_id, user_id, role, status) VALUES (?, ?, ?, ?)`,
		householdID, adminID, model.RoleAdmin, model.MembershipApproved,
	); err != nil {
		return nil, fmt.Errorf("insert admin membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit household: %w", err)
	}
	return s.GetByID(ctx, householdID)
}

func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, householdSelect+` WHERE h.id = ?`, id)
	h, err := scanHousehold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) GetByJoinCode(ctx context.Context, code string) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, householdSelect+` WHERE h.join_code = ?`, code)
	h, err := scanHousehold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household by join code: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) Update(ctx context.Context, id int64, name, location string) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE households SET name = ?, location = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, location, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a household together with its inventory and memberships.
// It reports whether the household existed.
func (s *HouseholdStore) Delete(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM grocery_items WHERE household_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete household items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE household_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete household memberships: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete household: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete household: %w", err)
	}
	return n > 0, nil
}

// AddMember inserts a membership row. An existing row for the same pair
// yields ErrDuplicate.
func (s *HouseholdStore) AddMember(ctx context.Context, householdID, userID int64, role model.Role, status model.MembershipStatus) (*model.Membership, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (household_id, user_id, role, status) VALUES (?, ?, ?, ?)`,
		householdID, userID, role, status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("add member: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+membershipCols+` FROM memberships WHERE id = ?`, id)
	m, err := scanMembership(row)
	if err != nil {
		return nil, fmt.Errorf("get new member: %w", err)
	}
	return m, nil
}

func (s *HouseholdStore) GetMember(ctx context.Context, householdID, userID int64) (*model.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ApprovePending moves a pending membership to approved. The status guard
// makes racing decisions on the same request apply at most once.
func (s *HouseholdStore) ApprovePending(ctx context.Context, householdID, userID int64) (bool, error) {
	return s.execAffected(ctx, "approve member",
		`UPDATE memberships SET status = 'approved', updated_at = CURRENT_TIMESTAMP WHERE household_id = ? AND user_id = ? AND status = 'pending'`,
		householdID, userID,
	)
}

// DeletePending removes a pending membership (a denied join request).
func (s *HouseholdStore) DeletePending(ctx context.Context, householdID, userID int64) (bool, error) {
	return s.execAffected(ctx, "deny member",
		`DELETE FROM memberships WHERE household_id = ? AND user_id = ? AND status = 'pending'`,
		householdID, userID,
	)
}

// RemoveMember deletes an approved, non-admin membership.
func (s *HouseholdStore) RemoveMember(ctx context.Context, householdID, userID int64) (bool, error) {
	return s.execAffected(ctx, "remove member",
		`DELETE FROM memberships WHERE household_id = ? AND user_id = ? AND status = 'approved' AND role = 'member'`,
		householdID, userID,
	)
}

func (s *HouseholdStore) execAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}

// ListMembers returns the household roster with the given status, admin first.
func (s *HouseholdStore) ListMembers(ctx context.Context, householdID int64, status model.MembershipStatus) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.household_id, m.user_id, m.role, m.status, m.created_at, m.updated_at, u.username, u.full_name
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.household_id = ? AND m.status = ?
		 ORDER BY m.role = 'admin' DESC, m.created_at ASC, m.id ASC`,
		householdID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(
			&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt,
			&m.Username, &m.FullName,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListForUser returns the households in which the user is an approved member.
func (s *HouseholdStore) ListForUser(ctx context.Context, userID int64) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx,
		householdSelect+`
		 JOIN memberships hm ON hm.household_id = h.id
		 WHERE hm.user_id = ? AND hm.status = 'approved'
		 ORDER BY h.name ASC, h.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	var households []model.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}
