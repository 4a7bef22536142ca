package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/grocery"
	"github.com/dukerupert/larder/internal/membership"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
	"github.com/dukerupert/larder/internal/websocket"
)

const maxItemNameLength = 200

type GroceryHandler struct {
	policy       *membership.Policy
	groceryStore *store.GroceryStore
	auditStore   *store.AuditStore
	hub          *websocket.Hub
	restock      []model.ItemStatus
	now          func() time.Time
	logger       *slog.Logger
}

func NewGroceryHandler(
	p *membership.Policy,
	gs *store.GroceryStore,
	as *store.AuditStore,
	hub *websocket.Hub,
	restock []model.ItemStatus,
	logger *slog.Logger,
) *GroceryHandler {
	return &GroceryHandler{
		policy:       p,
		groceryStore: gs,
		auditStore:   as,
		hub:          hub,
		restock:      restock,
		now:          time.Now,
		logger:       logger,
	}
}

// today is the UTC calendar day, matching the expiry sweep in the notifier.
func (h *GroceryHandler) today() model.Date {
	return model.DateOf(h.now().UTC())
}

func (h *GroceryHandler) broadcast(householdID int64, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(householdID, msg)
	}
}

func (h *GroceryHandler) record(r *http.Request, userID, householdID int64, action, detail string) {
	if err := h.auditStore.Record(r.Context(), userID, householdID, action, detail); err != nil {
		h.logger.Error("audit write failed", "action", action, "household_id", householdID, "error", err)
	}
}

// authorize parses the household id and checks that the caller may perform
// action in it. It writes the error response itself and reports whether the
// handler should continue.
func (h *GroceryHandler) authorize(w http.ResponseWriter, r *http.Request, action model.Action) (householdID, userID int64, ok bool) {
	hid, err := parseIDParam(r, "household_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	uid := auth.UserID(r.Context())
	if _, err := h.policy.Authorize(r.Context(), uid, hid, action); err != nil {
		writePolicyError(w, h.logger, err)
		return 0, 0, false
	}
	return hid, uid, true
}

// normalizeItem trims the input, fills defaults for omitted fields and
// validates the enumerations.
func normalizeItem(in *model.GroceryItemInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Name == "" {
		return errors.New("name is required")
	}
	if len(in.Name) > maxItemNameLength {
		return errors.New("name must be at most 200 characters")
	}

	if in.Category == "" {
		in.Category = grocery.Categorize(in.Name)
	} else if !in.Category.Valid() {
		return errors.New("unknown category")
	}
	if in.Type == "" {
		in.Type = grocery.DefaultType(in.Category)
	} else if !in.Type.Valid() {
		return errors.New("unknown type")
	}
	if in.Unit == "" {
		in.Unit = model.UnitCount
	} else if !in.Unit.Valid() {
		return errors.New("unknown quantity_unit")
	}
	if in.Status == "" {
		in.Status = model.StatusInStock
	} else if !in.Status.Valid() {
		return errors.New("unknown status")
	}
	if in.Quantity < 0 {
		return errors.New("quantity must not be negative")
	}
	return nil
}

func (h *GroceryHandler) List(w http.ResponseWriter, r *http.Request) {
	hid, _, ok := h.authorize(w, r, model.ActionRead)
	if !ok {
		return
	}

	items, err := h.groceryStore.List(r.Context(), hid, strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		writeStoreError(w, h.logger, "list items", err)
		return
	}
	if items == nil {
		items = []model.GroceryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *GroceryHandler) Create(w http.ResponseWriter, r *http.Request) {
	hid, uid, ok := h.authorize(w, r, model.ActionWriteInventory)
	if !ok {
		return
	}

	var in model.GroceryItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := normalizeItem(&in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.groceryStore.Create(r.Context(), hid, uid, in)
	if err != nil {
		writeStoreError(w, h.logger, "create item", err)
		return
	}

	h.record(r, uid, hid, model.AuditItemCreate, item.Name)
	h.broadcast(hid, websocket.NewMessage("item", "created", item.ID, nil))
	writeJSON(w, http.StatusCreated, item)
}

func (h *GroceryHandler) Get(w http.ResponseWriter, r *http.Request) {
	hid, _, ok := h.authorize(w, r, model.ActionRead)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.groceryStore.Get(r.Context(), hid, id)
	if err != nil {
		writeStoreError(w, h.logger, "get item", err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *GroceryHandler) Update(w http.ResponseWriter, r *http.Request) {
	hid, uid, ok := h.authorize(w, r, model.ActionWriteInventory)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var in model.GroceryItemInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := normalizeItem(&in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.groceryStore.Update(r.Context(), hid, id, uid, in)
	if err != nil {
		writeStoreError(w, h.logger, "update item", err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	h.record(r, uid, hid, model.AuditItemUpdate, item.Name)
	h.broadcast(hid, websocket.NewMessage("item", "updated", item.ID, nil))
	writeJSON(w, http.StatusOK, item)
}

func (h *GroceryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hid, uid, ok := h.authorize(w, r, model.ActionWriteInventory)
	if !ok {
		return
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.groceryStore.Delete(r.Context(), hid, id)
	if err != nil {
		writeStoreError(w, h.logger, "delete item", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	h.record(r, uid, hid, model.AuditItemDelete, targetItem(id))
	h.broadcast(hid, websocket.NewMessage("item", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroceryHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	hid, _, ok := h.authorize(w, r, model.ActionRead)
	if !ok {
		return
	}

	d, err := h.groceryStore.Dashboard(r.Context(), hid, h.today(), h.restock)
	if err != nil {
		writeStoreError(w, h.logger, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type metaResponse struct {
	Categories []model.Category   `json:"categories"`
	Units      []model.Unit       `json:"units"`
	Statuses   []statusOption     `json:"statuses"`
	Types      []model.ItemType   `json:"types"`
	Restock    []model.ItemStatus `json:"restock_statuses"`
}

type statusOption struct {
	Value model.ItemStatus `json:"value"`
	Label string           `json:"label"`
}

// Meta lists the values clients may use in item forms.
func (h *GroceryHandler) Meta(w http.ResponseWriter, r *http.Request) {
	statuses := make([]statusOption, 0, len(model.Statuses))
	for _, s := range model.Statuses {
		statuses = append(statuses, statusOption{Value: s, Label: s.Label()})
	}
	writeJSON(w, http.StatusOK, metaResponse{
		Categories: model.Categories,
		Units:      model.Units,
		Statuses:   statuses,
		Types:      []model.ItemType{model.TypePerishable, model.TypeNonPerishable},
		Restock:    h.restock,
	})
}

func targetItem(id int64) string {
	return "item_id=" + strconv.FormatInt(id, 10)
}
