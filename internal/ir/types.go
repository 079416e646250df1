package ir

import (
	"fmt"
	"time"
)

// Scope is the owning (tenant, location) pair stamped on every row.
// It is passed explicitly into every core call.
type Scope struct {
	TenantID   string `json:"tenant_id" yaml:"tenant_id"`
	LocationID string `json:"location_id" yaml:"location_id"`
}

// Valid reports whether both halves of the scope are set.
func (s Scope) Valid() bool {
	return s.TenantID != "" && s.LocationID != ""
}

// String returns "tenant/location" for logs and lock keys.
func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.TenantID, s.LocationID)
}

// Totals is the cached rollup carried by categories and subcategories.
type Totals struct {
	Quantity    int64   `json:"quantity"`
	GrossWeight float64 `json:"gross_weight"`
	FineWeight  float64 `json:"fine_weight"`
}

// Add returns t+o with weights rounded to 3 decimals.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Quantity:    t.Quantity + o.Quantity,
		GrossWeight: Round3(t.GrossWeight + o.GrossWeight),
		FineWeight:  Round3(t.FineWeight + o.FineWeight),
	}
}

// Neg returns the additive inverse of t.
func (t Totals) Neg() Totals {
	return Totals{Quantity: -t.Quantity, GrossWeight: -t.GrossWeight, FineWeight: -t.FineWeight}
}

// ApproxEqual compares two rollups with Tolerance on the weights.
func (t Totals) ApproxEqual(o Totals) bool {
	return t.Quantity == o.Quantity &&
		ApproxEqual(t.GrossWeight, o.GrossWeight) &&
		ApproxEqual(t.FineWeight, o.FineWeight)
}

// Delta is an increment applied to a cached rollup as one indivisible
// storage operation (field = field + delta). It has the same shape as Totals.
type Delta = Totals

// Category is the top level of the hierarchy. Categories are append-only.
type Category struct {
	ID        string    `json:"id"`
	Scope     Scope     `json:"scope"`
	Name      string    `json:"name"`
	Totals    Totals    `json:"totals"`
	CreatedAt time.Time `json:"created_at"`
}

// SubCategory lives under exactly one Category and caches the sum of its items.
type SubCategory struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id"`
	Scope      Scope     `json:"scope"`
	Name       string    `json:"name"`
	Totals     Totals    `json:"totals"`
	CreatedAt  time.Time `json:"created_at"`
}

// Item is the leaf inventory record.
//
// CategoryName and SubCategoryName are read-side joins; they are never
// written to the items table.
type Item struct {
	ID                    string     `json:"id" yaml:"id,omitempty"`
	Scope                 Scope      `json:"scope" yaml:"scope,omitempty"`
	CategoryID            string     `json:"category_id" yaml:"category_id,omitempty"`
	SubCategoryID         string     `json:"subcategory_id" yaml:"subcategory_id,omitempty"`
	Name                  string     `json:"name" yaml:"name"`
	Quantity              int64      `json:"quantity" yaml:"quantity"`
	GrossWeight           float64    `json:"gross_weight" yaml:"gross_weight"`
	NetWeight             float64    `json:"net_weight" yaml:"net_weight"`
	FineWeight            float64    `json:"fine_weight" yaml:"fine_weight"`
	Purity                Purity     `json:"purity" yaml:"purity"`
	ChargeType            ChargeType `json:"charge_type" yaml:"charge_type"`
	ChargeAmount          float64    `json:"charge_amount" yaml:"charge_amount"`
	TaxRate               float64    `json:"tax_rate" yaml:"tax_rate"`
	HUID                  string     `json:"huid,omitempty" yaml:"huid,omitempty"`
	EntryType             EntryType  `json:"entry_type" yaml:"entry_type"`
	SourceFirmID          string     `json:"source_firm_id,omitempty" yaml:"source_firm_id,omitempty"`
	SourcePurchaseOrderID string     `json:"source_purchase_order_id,omitempty" yaml:"source_purchase_order_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at" yaml:"created_at,omitempty"`

	CategoryName    string `json:"category_name,omitempty" yaml:"-"`
	SubCategoryName string `json:"subcategory_name,omitempty" yaml:"-"`
}

// Contribution is the amount this item adds to its subcategory and category.
func (it Item) Contribution() Totals {
	return Totals{
		Quantity:    it.Quantity,
		GrossWeight: Round3(it.GrossWeight),
		FineWeight:  Round3(it.FineWeight),
	}
}
