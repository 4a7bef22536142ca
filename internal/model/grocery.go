package model

import (
	"time"
)

type Category string

const (
	CategoryDairyEggs    Category = "Dairy & Eggs"
	CategoryBakery       Category = "Bakery"
	CategoryMeatFish     Category = "Meat & Fish"
	CategoryProduce      Category = "Produce"
	CategorySpices       Category = "Spices"
	CategoryPulses       Category = "Pulses"
	CategoryGrains       Category = "Grains"
	CategoryCondiments   Category = "Condiments & Sauces"
	CategoryBaking       Category = "Baking"
	CategoryBreakfast    Category = "Breakfast & Cereal"
	CategorySnacks       Category = "Snacks"
	CategoryFrozen       Category = "Frozen Foods"
	CategoryBeverages    Category = "Beverages"
	CategoryHousehold    Category = "Household & Cleaning"
	CategoryPersonalCare Category = "Personal Care"
	CategoryOther        Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryDairyEggs, CategoryBakery, CategoryMeatFish, CategoryProduce,
	CategorySpices, CategoryPulses, CategoryGrains, CategoryCondiments,
	CategoryBaking, CategoryBreakfast, CategorySnacks, CategoryFrozen,
	CategoryBeverages, CategoryHousehold, CategoryPersonalCare, CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

type ItemType string

const (
	TypePerishable    ItemType = "perishable"
	TypeNonPerishable ItemType = "non_perishable"
)

func (t ItemType) Valid() bool {
	return t == TypePerishable || t == TypeNonPerishable
}

type Unit string

const (
	UnitCount  Unit = "Count"
	UnitKg     Unit = "kg"
	UnitG      Unit = "g"
	UnitLiters Unit = "liters"
	UnitMl     Unit = "ml"
	UnitPacket Unit = "Packet"
	UnitBottle Unit = "Bottle"
	UnitOther  Unit = "Other"
)

var Units = []Unit{UnitCount, UnitKg, UnitG, UnitLiters, UnitMl, UnitPacket, UnitBottle, UnitOther}

func (u Unit) Valid() bool {
	for _, v := range Units {
		if u == v {
			return true
		}
	}
	return false
}

type ItemStatus string

const (
	StatusRunningLow ItemStatus = "running_low"
	StatusBuyMore    ItemStatus = "buy_more"
	StatusInStock    ItemStatus = "in_stock"
	StatusExcess     ItemStatus = "excess"
	StatusNotNeeded  ItemStatus = "not_needed"
)

var Statuses = []ItemStatus{StatusRunningLow, StatusBuyMore, StatusInStock, StatusExcess, StatusNotNeeded}

var statusLabels = map[ItemStatus]string{
	StatusRunningLow: "Running low",
	StatusBuyMore:    "Buy more",
	StatusInStock:    "In-Stock",
	StatusExcess:     "Excess",
	StatusNotNeeded:  "Not Needed Anymore",
}

func (s ItemStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human-readable name of the status.
func (s ItemStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

type GroceryItem struct {
	ID           int64      `json:"id"`
	HouseholdID  int64      `json:"household_id"`
	Name         string     `json:"name"`
	Category     Category   `json:"category"`
	Type         ItemType   `json:"type"`
	Quantity     float64    `json:"quantity"`
	Unit         Unit       `json:"quantity_unit"`
	Status       ItemStatus `json:"status"`
	IsEssential  bool       `json:"is_essential"`
	PurchaseDate *Date      `json:"purchase_date"`
	ExpiryDate   *Date      `json:"expiry_date"`
	Notes        string     `json:"notes"`
	CreatedBy    *int64     `json:"created_by"`
	ModifiedBy   *int64     `json:"modified_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Expired reports whether the item's expiry date is strictly before today.
func (i *GroceryItem) Expired(today Date) bool {
	return i.ExpiryDate != nil && i.ExpiryDate.Before(today)
}

// GroceryItemInput carries the user-editable fields of a grocery item.
type GroceryItemInput struct {
	Name         string     `json:"name"`
	Category     Category   `json:"category"`
	Type         ItemType   `json:"type"`
	Quantity     float64    `json:"quantity"`
	Unit         Unit       `json:"quantity_unit"`
	Status       ItemStatus `json:"status"`
	IsEssential  bool       `json:"is_essential"`
	PurchaseDate *Date      `json:"purchase_date"`
	ExpiryDate   *Date      `json:"expiry_date"`
	Notes        string     `json:"notes"`
}

// LabelCount is one bucket of a dashboard breakdown.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type ExpiringItem struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ExpiryDate Date   `json:"expiry_date"`
}

// Dashboard aggregates a household's inventory for the overview page.
type Dashboard struct {
	TotalItems       int            `json:"total_items"`
	NeedsRestock     int            `json:"needs_restock"`
	Expired          int            `json:"expired"`
	ByStatus         []LabelCount   `json:"by_status"`
	ByCategory       []LabelCount   `json:"by_category"`
	ByType           []LabelCount   `json:"by_type"`
	UpcomingExpiries []ExpiringItem `json:"upcoming_expiries"`
}
