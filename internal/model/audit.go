package model

import "time"

// Audit action labels.
const (
	AuditUserRegister      = "user.register"
	AuditPasswordChange    = "user.password_change"
	AuditHouseholdCreate   = "household.create"
	AuditHouseholdUpdate   = "household.update"
	AuditHouseholdDelete   = "household.delete"
	AuditMembershipRequest = "membership.request"
	AuditMembershipApprove = "membership.approve"
	AuditMembershipDeny    = "membership.deny"
	AuditMembershipRemove  = "membership.remove"
	AuditMembershipLeave   = "membership.leave"
	AuditItemCreate        = "item.create"
	AuditItemUpdate        = "item.update"
	AuditItemDelete        = "item.delete"
)

type AuditEntry struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	HouseholdID *int64    `json:"household_id"`
	Action      string    `json:"action"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}
