package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/larder/internal/model"
)

// GroceryStore is the household inventory. Every query is scoped by
// household id; callers authorize the household before calling in.
type GroceryStore struct {
	db *sql.DB
}

func NewGroceryStore(db *sql.DB) *GroceryStore {
	return &GroceryStore{db: db}
}

func scanItem(s scanner) (*model.GroceryItem, error) {
	var item model.GroceryItem
	var purchase, expiry sql.NullString
	var createdBy, modifiedBy sql.NullInt64
	var essential int

	err := s.Scan(
		&item.ID, &item.HouseholdID, &item.Name, &item.Category, &item.Type,
		&item.Quantity, &item.Unit, &item.Status, &essential, &purchase, &expiry,
		&item.Notes, &createdBy, &modifiedBy, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.IsEssential = essential != 0
	if item.PurchaseDate, err = nullDate(purchase); err != nil {
		return nil, err
	}
	if item.ExpiryDate, err = nullDate(expiry); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		item.CreatedBy = &createdBy.Int64
	}
	if modifiedBy.Valid {
		item.ModifiedBy = &modifiedBy.Int64
	}
	return &item, nil
}

func nullDate(ns sql.NullString) (*model.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := model.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dateArg(d *model.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

const itemCols = `id, household_id, name, category, type, quantity, quantity_unit, status, is_essential,
	purchase_date, expiry_date, notes, created_by, modified_by, created_at, updated_at`

func (s *GroceryStore) Create(ctx context.Context, householdID, actorID int64, in model.GroceryItemInput) (*model.GroceryItem, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO grocery_items (household_id, name, category, type, quantity, quantity_unit, status,
			is_essential, purchase_date, expiry_date, notes, created_by, modified_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		householdID, in.Name, in.Category, in.Type, in.Quantity, in.Unit, in.Status,
		boolArg(in.IsEssential), dateArg(in.PurchaseDate), dateArg(in.ExpiryDate), in.Notes, actorID, actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, householdID, id)
}

// Get returns the item only if it belongs to householdID.
func (s *GroceryStore) Get(ctx context.Context, householdID, id int64) (*model.GroceryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM grocery_items WHERE id = ? AND household_id = ?`,
		id, householdID,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Update overwrites the editable fields and stamps modified_by. It returns
// nil when the item does not exist in the household.
func (s *GroceryStore) Update(ctx context.Context, householdID, id, actorID int64, in model.GroceryItemInput) (*model.GroceryItem, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE grocery_items SET name = ?, category = ?, type = ?, quantity = ?, quantity_unit = ?, status = ?,
			is_essential = ?, purchase_date = ?, expiry_date = ?, notes = ?, modified_by = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND household_id = ?`,
		in.Name, in.Category, in.Type, in.Quantity, in.Unit, in.Status,
		boolArg(in.IsEssential), dateArg(in.PurchaseDate), dateArg(in.ExpiryDate), in.Notes, actorID,
		id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.Get(ctx, householdID, id)
}

// Delete reports whether an item was removed.
func (s *GroceryStore) Delete(ctx context.Context, householdID, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM grocery_items WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns the household's items sorted by category then name. A
// non-empty search restricts results to names containing it, ignoring case.
func (s *GroceryStore) List(ctx context.Context, householdID int64, search string) ([]model.GroceryItem, error) {
	query := `SELECT ` + itemCols + ` FROM grocery_items WHERE household_id = ?`
	args := []any{householdID}
	if search = strings.TrimSpace(search); search != "" {
		query += ` AND name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	query += ` ORDER BY category ASC, name ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.GroceryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Dashboard aggregates the household inventory as of today. Items whose
// status is in restock count towards NeedsRestock.
func (s *GroceryStore) Dashboard(ctx context.Context, householdID int64, today model.Date, restock []model.ItemStatus) (*model.Dashboard, error) {
	d := &model.Dashboard{}
	var err error

	if d.ByStatus, err = s.countBy(ctx, householdID, "status"); err != nil {
		return nil, err
	}
	for i := range d.ByStatus {
		d.ByStatus[i].Label = model.ItemStatus(d.ByStatus[i].Label).Label()
	}
	if d.ByCategory, err = s.countBy(ctx, householdID, "category"); err != nil {
		return nil, err
	}
	if d.ByType, err = s.countBy(ctx, householdID, "type"); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grocery_items WHERE household_id = ?`, householdID,
	).Scan(&d.TotalItems); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	if len(restock) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(restock)), ", ")
		args := []any{householdID}
		for _, st := range restock {
			args = append(args, st)
		}
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM grocery_items WHERE household_id = ? AND status IN (`+placeholders+`)`, args...,
		).Scan(&d.NeedsRestock); err != nil {
			return nil, fmt.Errorf("count restock items: %w", err)
		}
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grocery_items WHERE household_id = ? AND expiry_date IS NOT NULL AND expiry_date < ?`,
		householdID, today.String(),
	).Scan(&d.Expired); err != nil {
		return nil, fmt.Errorf("count expired items: %w", err)
	}

	if d.UpcomingExpiries, err = s.ExpiringBetween(ctx, householdID, today, today.AddDays(7)); err != nil {
		return nil, err
	}
	return d, nil
}

var dashboardColumns = map[string]bool{"status": true, "category": true, "type": true}

func (s *GroceryStore) countBy(ctx context.Context, householdID int64, column string) ([]model.LabelCount, error) {
	if !dashboardColumns[column] {
		return nil, fmt.Errorf("count by %q: unsupported column", column)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) AS n FROM grocery_items WHERE household_id = ?
		 GROUP BY `+column+` ORDER BY n DESC, `+column+` ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	counts := []model.LabelCount{}
	for rows.Next() {
		var c model.LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// ExpiringBetween lists items expiring within [from, to], soonest first.
func (s *GroceryStore) ExpiringBetween(ctx context.Context, householdID int64, from, to model.Date) ([]model.ExpiringItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, expiry_date FROM grocery_items
		 WHERE household_id = ? AND expiry_date BETWEEN ? AND ?
		 ORDER BY expiry_date ASC, name ASC`,
		householdID, from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming expiries: %w", err)
	}
	defer rows.Close()

	items := []model.ExpiringItem{}
	for rows.Next() {
		var e model.ExpiringItem
		var raw string
		if err := rows.Scan(&e.ID, &e.Name, &raw); err != nil {
			return nil, fmt.Errorf("scan upcoming expiry: %w", err)
		}
		if e.ExpiryDate, err = model.ParseDate(raw); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
