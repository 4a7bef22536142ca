package store

import (
	"context"
	"testing"

	"github.com/dukerupert/larder/internal/model"
)

func TestAuditRecordAndList(t *testing.T) {
	as := NewAuditStore(setupTestDB(t))
	ctx := context.Background()

	if err := as.Record(ctx, 1, 7, model.AuditHouseholdCreate, "Home"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := as.Record(ctx, 2, 7, model.AuditMembershipRequest, ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := as.Record(ctx, 3, 8, model.AuditHouseholdCreate, "Cabin"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := as.Record(ctx, 1, 0, model.AuditPasswordChange, ""); err != nil {
		t.Fatalf("record without household: %v", err)
	}

	entries, err := as.ListForHousehold(ctx, 7, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Action != model.AuditMembershipRequest {
		t.Errorf("newest action = %q, want %q", entries[0].Action, model.AuditMembershipRequest)
	}
	if entries[1].HouseholdID == nil || *entries[1].HouseholdID != 7 {
		t.Errorf("household_id = %v, want 7", entries[1].HouseholdID)
	}

	limited, _ := as.ListForHousehold(ctx, 7, 1)
	if len(limited) != 1 {
		t.Errorf("limited = %d, want 1", len(limited))
	}
}
