package model

import "time"

type Household struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	JoinCode  string    `json:"join_code"`
	AdminID   int64     `json:"admin_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a user's standing within one household. Admin-ness is
// household-relative: the same user can be admin of one household and a
// plain member of another.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Action is something a member may attempt within a household.
type Action string

const (
	ActionRead            Action = "read"
	ActionWriteInventory  Action = "write_inventory"
	ActionEditHousehold   Action = "edit_household"
	ActionManageMembers   Action = "manage_members"
	ActionDeleteHousehold Action = "delete_household"
	ActionViewAudit       Action = "view_audit"
)

// Allows reports whether an approved member holding r may perform a.
// Unknown actions are never allowed.
func (r Role) Allows(a Action) bool {
	switch a {
	case ActionRead, ActionWriteInventory:
		return r.Valid()
	case ActionEditHousehold, ActionManageMembers, ActionDeleteHousehold, ActionViewAudit:
		return r == RoleAdmin
	}
	return false
}

type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
)

func (s MembershipStatus) Valid() bool {
	return s == MembershipPending || s == MembershipApproved
}

type Membership struct {
	ID          int64            `json:"id"`
	HouseholdID int64            `json:"household_id"`
	UserID      int64            `json:"user_id"`
	Role        Role             `json:"role"`
	Status      MembershipStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Approved reports whether the membership grants access to the household.
func (m *Membership) Approved() bool {
	return m != nil && m.Status == MembershipApproved
}

// Member is a roster row: the membership joined with the user's public fields.
type Member struct {
	Membership
	Username string `json:"username"`
	FullName string `json:"full_name"`
}
