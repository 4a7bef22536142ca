package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/membership"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/websocket"
)

// JoinNotifier is told about new join requests so the admin can be alerted.
type JoinNotifier interface {
	JoinRequested(ctx context.Context, householdID, userID int64)
}

type HouseholdHandler struct {
	policy   *membership.Policy
	hub      *websocket.Hub
	notifier JoinNotifier
	logger   *slog.Logger
}

func NewHouseholdHandler(p *membership.Policy, hub *websocket.Hub, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{policy: p, hub: hub, logger: logger}
}

// SetNotifier enables join-request notifications.
func (h *HouseholdHandler) SetNotifier(n JoinNotifier) {
	h.notifier = n
}

func (h *HouseholdHandler) joinRequested(r *http.Request, householdID, userID int64) {
	h.broadcast(householdID, websocket.NewMessage("membership", "requested", userID, nil))
	if h.notifier != nil {
		go h.notifier.JoinRequested(context.WithoutCancel(r.Context()), householdID, userID)
	}
}

func (h *HouseholdHandler) broadcast(householdID int64, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(householdID, msg)
	}
}

func (h *HouseholdHandler) evict(householdID, userID int64) {
	if h.hub != nil {
		h.hub.Evict(householdID, userID)
	}
}

type householdRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type joinCodeRequest struct {
	JoinCode string `json:"join_code"`
}

type decisionRequest struct {
	Decision membership.Decision `json:"decision"`
}

// householdView is a household as seen by one of its members. Only the
// admin sees the join code.
type householdView struct {
	model.Household
	Role model.Role `json:"role"`
}

func newHouseholdView(hh *model.Household, m *model.Membership) householdView {
	v := householdView{Household: *hh, Role: m.Role}
	if m.Role != model.RoleAdmin {
		v.JoinCode = ""
	}
	return v
}

func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	households, err := h.policy.ListHouseholds(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}
	if households == nil {
		households = []model.Household{}
	}
	writeJSON(w, http.StatusOK, households)
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	hh, err := h.policy.CreateHousehold(r.Context(), auth.UserID(r.Context()), req.Name, req.Location)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, hh)
}

func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hh, m, err := h.policy.Household(r.Context(), auth.UserID(r.Context()), hid)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newHouseholdView(hh, m))
}

func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req householdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	hh, err := h.policy.UpdateHousehold(r.Context(), auth.UserID(r.Context()), hid, req.Name, req.Location)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	h.broadcast(hid, websocket.NewMessage("household", "updated", hid, nil))
	writeJSON(w, http.StatusOK, hh)
}

func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.policy.DeleteHousehold(r.Context(), auth.UserID(r.Context()), hid); err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	h.broadcast(hid, websocket.NewMessage("household", "deleted", hid, nil))
	h.evict(hid, 0)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HouseholdHandler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	var req joinCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.JoinCode == "" {
		writeError(w, http.StatusBadRequest, "join_code is required")
		return
	}

	hh, m, err := h.policy.RequestJoinByCode(r.Context(), auth.UserID(r.Context()), req.JoinCode)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	h.joinRequested(r, hh.ID, m.UserID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"household_id":   hh.ID,
		"household_name": hh.Name,
		"membership":     m,
	})
}

func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.policy.RequestJoin(r.Context(), auth.UserID(r.Context()), hid)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	h.joinRequested(r, hid, m.UserID)
	writeJSON(w, http.StatusAccepted, m)
}

func (h *HouseholdHandler) Leave(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserID(r.Context())
	if err := h.policy.Leave(r.Context(), userID, hid); err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	h.evict(hid, userID)
	h.broadcast(hid, websocket.NewMessage("membership", "left", userID, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *HouseholdHandler) Members(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	members, err := h.policy.ListMembers(r.Context(), auth.UserID(r.Context()), hid)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *HouseholdHandler) Pending(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pending, err := h.policy.ListPending(r.Context(), auth.UserID(r.Context()), hid)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}
	if pending == nil {
		pending = []model.Member{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// Decide approves or denies a pending request. A request that was already
// decided is reported with applied=false rather than as an error.
func (h *HouseholdHandler) Decide(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	targetID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	applied, err := h.policy.DecideRequest(r.Context(), auth.UserID(r.Context()), hid, targetID, req.Decision)
	if err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	if applied {
		action := "approved"
		if req.Decision == membership.Deny {
			action = "denied"
		}
		h.broadcast(hid, websocket.NewMessage("membership", action, targetID, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied":  applied,
		"decision": req.Decision,
	})
}

func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	targetID, err := parseIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.policy.RemoveMember(r.Context(), auth.UserID(r.Context()), hid, targetID); err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	h.evict(hid, targetID)
	h.broadcast(hid, websocket.NewMessage("membership", "removed", targetID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Events upgrades to a websocket carrying the household's change
// notifications.
func (h *HouseholdHandler) Events(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserID(r.Context())
	if _, err := h.policy.Authorize(r.Context(), userID, hid, model.ActionRead); err != nil {
		writePolicyError(w, h.logger, err)
		return
	}
	h.hub.Serve(w, r, hid, userID, func(ctx context.Context) error {
		_, err := h.policy.Authorize(ctx, userID, hid, model.ActionRead)
		return err
	})
}
