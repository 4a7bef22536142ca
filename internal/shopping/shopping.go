// Package shopping derives shopping lists from a household's inventory.
// Lists are recomputed on demand and never stored.
package shopping

import (
	"sort"

	"github.com/dukerupert/larder/internal/model"
)

// ReasonExpired tags items whose expiry date has passed. It wins over any
// restock status.
const ReasonExpired = "Expired"

type Entry struct {
	ItemID     int64            `json:"item_id"`
	Name       string           `json:"name"`
	Category   model.Category   `json:"category"`
	Quantity   float64          `json:"quantity"`
	Unit       model.Unit       `json:"quantity_unit"`
	Status     model.ItemStatus `json:"status"`
	ExpiryDate *model.Date      `json:"expiry_date"`
	Reason     string           `json:"reason"`
}

type List struct {
	Essential []Entry `json:"essential"`
	Optional  []Entry `json:"optional"`
}

// Export is the printable variant of a list: names only.
type Export struct {
	Essential []string `json:"essential"`
	Optional  []string `json:"optional"`
}

// reason returns why item belongs on the list, or "" if it does not.
func reason(item *model.GroceryItem, today model.Date, restock map[model.ItemStatus]bool) string {
	if item.Expired(today) {
		return ReasonExpired
	}
	if restock[item.Status] {
		return item.Status.Label()
	}
	return ""
}

func restockSet(statuses []model.ItemStatus) map[model.ItemStatus]bool {
	set := make(map[model.ItemStatus]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

// Derive selects items that are expired as of today or whose status is in
// restock, split by the essential flag and sorted by category then name.
func Derive(items []model.GroceryItem, today model.Date, restock []model.ItemStatus) List {
	set := restockSet(restock)
	list := List{Essential: []Entry{}, Optional: []Entry{}}

	for i := range items {
		item := &items[i]
		r := reason(item, today, set)
		if r == "" {
			continue
		}
		e := Entry{
			ItemID:     item.ID,
			Name:       item.Name,
			Category:   item.Category,
			Quantity:   item.Quantity,
			Unit:       item.Unit,
			Status:     item.Status,
			ExpiryDate: item.ExpiryDate,
			Reason:     r,
		}
		if item.IsEssential {
			list.Essential = append(list.Essential, e)
		} else {
			list.Optional = append(list.Optional, e)
		}
	}

	sortByCategory(list.Essential)
	sortByCategory(list.Optional)
	return list
}

// DeriveExport selects the same items as Derive but keeps only their names,
// sorted alphabetically.
func DeriveExport(items []model.GroceryItem, today model.Date, restock []model.ItemStatus) Export {
	list := Derive(items, today, restock)
	return Export{
		Essential: sortedNames(list.Essential),
		Optional:  sortedNames(list.Optional),
	}
}

func sortByCategory(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return entries[i].Name < entries[j].Name
	})
}

func sortedNames(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
