package handler

import (
	"net/http"
	"time"

	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/shopping"
)

type shoppingExport struct {
	shopping.Export
	GeneratedAt time.Time `json:"generated_at"`
}

// ShoppingList derives the list from the household's current inventory.
// Nothing is persisted.
func (h *GroceryHandler) ShoppingList(w http.ResponseWriter, r *http.Request) {
	items, ok := h.householdItems(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, shopping.Derive(items, h.today(), h.restock))
}

func (h *GroceryHandler) ShoppingExport(w http.ResponseWriter, r *http.Request) {
	items, ok := h.householdItems(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, shoppingExport{
		Export:      shopping.DeriveExport(items, h.today(), h.restock),
		GeneratedAt: h.now().UTC(),
	})
}

func (h *GroceryHandler) householdItems(w http.ResponseWriter, r *http.Request) ([]model.GroceryItem, bool) {
	hid, _, ok := h.authorize(w, r, model.ActionRead)
	if !ok {
		return nil, false
	}
	items, err := h.groceryStore.List(r.Context(), hid, "")
	if err != nil {
		writeStoreError(w, h.logger, "list items", err)
		return nil, false
	}
	return items, true
}
