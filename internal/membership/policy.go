// Package membership decides who may do what in a household and drives the
// membership lifecycle: request, approve or deny, remove, leave.
package membership

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

// Store is the persistence the policy needs. *store.HouseholdStore satisfies it.
type Store interface {
	Create(ctx context.Context, name, location string, adminID int64) (*model.Household, error)
	GetByID(ctx context.Context, id int64) (*model.Household, error)
	GetByJoinCode(ctx context.Context, code string) (*model.Household, error)
	Update(ctx context.Context, id int64, name, location string) (*model.Household, error)
	Delete(ctx context.Context, id int64) (bool, error)
	AddMember(ctx context.Context, householdID, userID int64, role model.Role, status model.MembershipStatus) (*model.Membership, error)
	GetMember(ctx context.Context, householdID, userID int64) (*model.Membership, error)
	ApprovePending(ctx context.Context, householdID, userID int64) (bool, error)
	DeletePending(ctx context.Context, householdID, userID int64) (bool, error)
	RemoveMember(ctx context.Context, householdID, userID int64) (bool, error)
	ListMembers(ctx context.Context, householdID int64, status model.MembershipStatus) ([]model.Member, error)
	ListForUser(ctx context.Context, userID int64) ([]model.Household, error)
}

// AuditRecorder appends to the audit log. *store.AuditStore satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, userID, householdID int64, action, detail string) error
}

type Decision string

const (
	Approve Decision = "approve"
	Deny    Decision = "deny"
)

func (d Decision) Valid() bool {
	return d == Approve || d == Deny
}

type Option func(*Policy)

// WithDecisionObserver registers fn to be called once per policy operation
// with the operation name and its Outcome.
func WithDecisionObserver(fn func(op, outcome string)) Option {
	return func(p *Policy) {
		p.observe = fn
	}
}

// Policy is the single authority for household-scoped authorization. It
// holds no membership state of its own; every check re-reads the store.
type Policy struct {
	store   Store
	audit   AuditRecorder
	logger  *slog.Logger
	observe func(op, outcome string)
}

func New(s Store, audit AuditRecorder, logger *slog.Logger, opts ...Option) *Policy {
	p := &Policy{
		store:   s,
		audit:   audit,
		logger:  logger,
		observe: func(string, string) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) report(op string, err error) {
	p.observe(op, Outcome(err))
}

// record writes an audit entry. The mutation it describes has already
// happened, so a failure is logged rather than returned.
func (p *Policy) record(ctx context.Context, userID, householdID int64, action, detail string) {
	if err := p.audit.Record(ctx, userID, householdID, action, detail); err != nil {
		p.logger.Error("audit write failed", "action", action, "user_id", userID, "household_id", householdID, "error", err)
	}
}

// CanCreateHousehold is true for any authenticated user.
func (p *Policy) CanCreateHousehold(userID int64) bool {
	return userID > 0
}

// CreateHousehold creates a household administered by userID. The creator's
// approved admin membership is the only way to reach approved without a
// request.
func (p *Policy) CreateHousehold(ctx context.Context, userID int64, name, location string) (h *model.Household, err error) {
	defer func() { p.report("create_household", err) }()

	if !p.CanCreateHousehold(userID) {
		return nil, ErrNotAuthorized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	h, err = p.store.Create(ctx, name, strings.TrimSpace(location), userID)
	if err != nil {
		return nil, storageErr("create household", err)
	}
	p.record(ctx, userID, h.ID, model.AuditHouseholdCreate, h.Name)
	p.logger.Info("household created", "household_id", h.ID, "admin_id", userID)
	return h, nil
}

// Authorize returns the caller's approved membership when it permits action.
// A pending membership never authorizes anything.
func (p *Policy) Authorize(ctx context.Context, userID, householdID int64, action model.Action) (m *model.Membership, err error) {
	defer func() { p.report("authorize:"+string(action), err) }()
	return p.authorize(ctx, userID, householdID, action)
}

func (p *Policy) authorize(ctx context.Context, userID, householdID int64, action model.Action) (*model.Membership, error) {
	_, m, err := p.authorizeHousehold(ctx, userID, householdID, action)
	return m, err
}

func (p *Policy) authorizeHousehold(ctx context.Context, userID, householdID int64, action model.Action) (*model.Household, *model.Membership, error) {
	h, err := p.store.GetByID(ctx, householdID)
	if err != nil {
		return nil, nil, storageErr("get household", err)
	}
	if h == nil {
		return nil, nil, ErrNotFound
	}

	m, err := p.store.GetMember(ctx, householdID, userID)
	if err != nil {
		return nil, nil, storageErr("get membership", err)
	}
	if !m.Approved() {
		return nil, nil, ErrNotMember
	}
	if !m.Role.Allows(action) {
		return nil, nil, ErrNotAuthorized
	}
	return h, m, nil
}

// Household returns the household and the caller's membership to any
// approved member.
func (p *Policy) Household(ctx context.Context, userID, householdID int64) (h *model.Household, m *model.Membership, err error) {
	defer func() { p.report("get_household", err) }()
	return p.authorizeHousehold(ctx, userID, householdID, model.ActionRead)
}

// requireAdmin is authorize for admin-only operations, where any caller who
// is not the household admin is simply not authorized.
func (p *Policy) requireAdmin(ctx context.Context, userID, householdID int64, action model.Action) error {
	_, err := p.authorize(ctx, userID, householdID, action)
	if errors.Is(err, ErrNotMember) {
		return ErrNotAuthorized
	}
	return err
}

// RequestJoin files a pending membership for userID.
func (p *Policy) RequestJoin(ctx context.Context, userID, householdID int64) (m *model.Membership, err error) {
	defer func() { p.report("request_join", err) }()
	return p.requestJoin(ctx, userID, householdID)
}

func (p *Policy) requestJoin(ctx context.Context, userID, householdID int64) (*model.Membership, error) {
	h, err := p.store.GetByID(ctx, householdID)
	if err != nil {
		return nil, storageErr("get household", err)
	}
	if h == nil {
		return nil, ErrNotFound
	}

	existing, err := p.store.GetMember(ctx, householdID, userID)
	if err != nil {
		return nil, storageErr("get membership", err)
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}

	m, err := p.store.AddMember(ctx, householdID, userID, model.RoleMember, model.MembershipPending)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent request for the same pair.
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, storageErr("add membership", err)
	}
	p.record(ctx, userID, householdID, model.AuditMembershipRequest, "")
	return m, nil
}

// RequestJoinByCode resolves a household's join code and requests to join it.
func (p *Policy) RequestJoinByCode(ctx context.Context, userID int64, code string) (h *model.Household, m *model.Membership, err error) {
	defer func() { p.report("request_join", err) }()

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil, ErrNotFound
	}
	h, err = p.store.GetByJoinCode(ctx, code)
	if err != nil {
		return nil, nil, storageErr("get household by code", err)
	}
	if h == nil {
		return nil, nil, ErrNotFound
	}
	m, err = p.requestJoin(ctx, userID, h.ID)
	if err != nil {
		return nil, nil, err
	}
	return h, m, nil
}

// DecideRequest approves or denies targetID's pending request. It reports
// whether the decision changed anything: deciding a request that is no
// longer pending is a no-op, so of two racing decisions only one applies.
func (p *Policy) DecideRequest(ctx context.Context, adminID, householdID, targetID int64, d Decision) (applied bool, err error) {
	defer func() { p.report("decide_request:"+string(d), err) }()

	if !d.Valid() {
		return false, ErrInvalidDecision
	}
	if err := p.requireAdmin(ctx, adminID, householdID, model.ActionManageMembers); err != nil {
		return false, err
	}

	action := model.AuditMembershipApprove
	if d == Approve {
		applied, err = p.store.ApprovePending(ctx, householdID, targetID)
	} else {
		action = model.AuditMembershipDeny
		applied, err = p.store.DeletePending(ctx, householdID, targetID)
	}
	if err != nil {
		return false, storageErr(string(d)+" request", err)
	}
	if !applied {
		p.logger.Debug("no pending request to decide", "household_id", householdID, "user_id", targetID, "decision", d)
		return false, nil
	}
	p.record(ctx, adminID, householdID, action, targetDetail(targetID))
	return true, nil
}

// RemoveMember evicts an approved member. The admin can never remove
// themself, however many members remain.
func (p *Policy) RemoveMember(ctx context.Context, adminID, householdID, targetID int64) (err error) {
	defer func() { p.report("remove_member", err) }()

	if err := p.requireAdmin(ctx, adminID, householdID, model.ActionManageMembers); err != nil {
		return err
	}
	if targetID == adminID {
		return ErrSelfRemovalForbidden
	}

	removed, err := p.store.RemoveMember(ctx, householdID, targetID)
	if err != nil {
		return storageErr("remove member", err)
	}
	if !removed {
		return ErrNotFound
	}
	p.record(ctx, adminID, householdID, model.AuditMembershipRemove, targetDetail(targetID))
	return nil
}

// Leave ends the caller's own approved membership. The admin cannot leave.
func (p *Policy) Leave(ctx context.Context, userID, householdID int64) (err error) {
	defer func() { p.report("leave", err) }()

	m, err := p.store.GetMember(ctx, householdID, userID)
	if err != nil {
		return storageErr("get membership", err)
	}
	if !m.Approved() {
		return ErrNotMember
	}
	if m.Role == model.RoleAdmin {
		return ErrSelfRemovalForbidden
	}

	removed, err := p.store.RemoveMember(ctx, householdID, userID)
	if err != nil {
		return storageErr("leave household", err)
	}
	if !removed {
		return ErrNotMember
	}
	p.record(ctx, userID, householdID, model.AuditMembershipLeave, "")
	return nil
}

// UpdateHousehold changes the household's name and location.
func (p *Policy) UpdateHousehold(ctx context.Context, adminID, householdID int64, name, location string) (h *model.Household, err error) {
	defer func() { p.report("update_household", err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := p.requireAdmin(ctx, adminID, householdID, model.ActionEditHousehold); err != nil {
		return nil, err
	}

	h, err = p.store.Update(ctx, householdID, name, strings.TrimSpace(location))
	if err != nil {
		return nil, storageErr("update household", err)
	}
	if h == nil {
		return nil, ErrNotFound
	}
	p.record(ctx, adminID, householdID, model.AuditHouseholdUpdate, h.Name)
	return h, nil
}

// DeleteHousehold irreversibly removes the household with its memberships
// and inventory.
func (p *Policy) DeleteHousehold(ctx context.Context, adminID, householdID int64) (err error) {
	defer func() { p.report("delete_household", err) }()

	if err := p.requireAdmin(ctx, adminID, householdID, model.ActionDeleteHousehold); err != nil {
		return err
	}

	deleted, err := p.store.Delete(ctx, householdID)
	if err != nil {
		return storageErr("delete household", err)
	}
	if !deleted {
		return ErrNotFound
	}
	p.record(ctx, adminID, householdID, model.AuditHouseholdDelete, "")
	p.logger.Info("household deleted", "household_id", householdID, "admin_id", adminID)
	return nil
}

// ListMembers returns the approved roster to any approved member.
func (p *Policy) ListMembers(ctx context.Context, userID, householdID int64) (members []model.Member, err error) {
	defer func() { p.report("list_members", err) }()

	if _, err := p.authorize(ctx, userID, householdID, model.ActionRead); err != nil {
		return nil, err
	}
	members, err = p.store.ListMembers(ctx, householdID, model.MembershipApproved)
	if err != nil {
		return nil, storageErr("list members", err)
	}
	return members, nil
}

// ListPending returns the open join requests to the household admin.
func (p *Policy) ListPending(ctx context.Context, adminID, householdID int64) (pending []model.Member, err error) {
	defer func() { p.report("list_pending", err) }()

	if err := p.requireAdmin(ctx, adminID, householdID, model.ActionManageMembers); err != nil {
		return nil, err
	}
	pending, err = p.store.ListMembers(ctx, householdID, model.MembershipPending)
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	return pending, nil
}

// ListHouseholds returns the households userID is an approved member of.
func (p *Policy) ListHouseholds(ctx context.Context, userID int64) (households []model.Household, err error) {
	defer func() { p.report("list_households", err) }()

	households, err = p.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list households", err)
	}
	return households, nil
}

func targetDetail(userID int64) string {
	return "user_id=" + strconv.FormatInt(userID, 10)
}
