package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/membership"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type AuditHandler struct {
	policy     *membership.Policy
	auditStore *store.AuditStore
	logger     *slog.Logger
}

func NewAuditHandler(p *membership.Policy, as *store.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{policy: p, auditStore: as, logger: logger}
}

// List returns the household's audit log, newest first. Only the admin may
// read it.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	if _, err := h.policy.Authorize(r.Context(), auth.UserID(r.Context()), hid, model.ActionViewAudit); err != nil {
		writePolicyError(w, h.logger, err)
		return
	}

	entries, err := h.auditStore.ListForHousehold(r.Context(), hid, limit)
	if err != nil {
		writeStoreError(w, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
