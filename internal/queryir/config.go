package queryir

import (
	"time"

	"github.com/roach88/bullion/internal/ir"
)

// FloatRange bounds a weight field. A nil bound is open; both are inclusive.
type FloatRange struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// IntRange bounds an integer field. A nil bound is open; both are inclusive.
type IntRange struct {
	Min *int64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *int64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// FilterConfig is a set of independent optional predicates over items.
// A nil field is ignored; all set fields combine with AND.
type FilterConfig struct {
	CategoryID            *string        `json:"category_id,omitempty" yaml:"category_id,omitempty"`
	SubCategoryID         *string        `json:"subcategory_id,omitempty" yaml:"subcategory_id,omitempty"`
	EntryType             *ir.EntryType  `json:"entry_type,omitempty" yaml:"entry_type,omitempty"`
	Purity                *ir.Purity     `json:"purity,omitempty" yaml:"purity,omitempty"`
	ChargeType            *ir.ChargeType `json:"charge_type,omitempty" yaml:"charge_type,omitempty"`
	DateFrom              *time.Time     `json:"date_from,omitempty" yaml:"date_from,omitempty"`
	DateTo                *time.Time     `json:"date_to,omitempty" yaml:"date_to,omitempty"`
	GrossWeight           *FloatRange    `json:"gross_weight,omitempty" yaml:"gross_weight,omitempty"`
	NetWeight             *FloatRange    `json:"net_weight,omitempty" yaml:"net_weight,omitempty"`
	FineWeight            *FloatRange    `json:"fine_weight,omitempty" yaml:"fine_weight,omitempty"`
	Quantity              *IntRange      `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	SourceFirmID          *string        `json:"source_firm_id,omitempty" yaml:"source_firm_id,omitempty"`
	SourcePurchaseOrderID *string        `json:"source_purchase_order_id,omitempty" yaml:"source_purchase_order_id,omitempty"`

	// Sort orders the delivered results. The zero value sorts by
	// creation date, newest first.
	Sort Sort `json:"sort" yaml:"sort,omitempty"`

	// Limit caps results to the newest Limit matches before sorting.
	// Zero means no limit.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// StartOfDay returns 00:00:00.000 on t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 on t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// Predicate lowers the config into the IR for scope. The scope equalities
// always come first, followed by the set predicates in field order.
func (c FilterConfig) Predicate(scope ir.Scope) Predicate {
	preds := []Predicate{
		Equals{Field: FieldTenantID, Value: scope.TenantID},
		Equals{Field: FieldLocationID, Value: scope.LocationID},
	}
	addEq := func(f Field, v *string) {
		if v != nil {
			preds = append(preds, Equals{Field: f, Value: *v})
		}
	}

	addEq(FieldCategoryID, c.CategoryID)
	addEq(FieldSubCategoryID, c.SubCategoryID)
	if c.EntryType != nil {
		preds = append(preds, Equals{Field: FieldEntryType, Value: string(*c.EntryType)})
	}
	if c.Purity != nil {
		preds = append(preds, Equals{Field: FieldPurity, Value: string(*c.Purity)})
	}
	if c.ChargeType != nil {
		preds = append(preds, Equals{Field: FieldChargeType, Value: string(*c.ChargeType)})
	}

	if c.DateFrom != nil || c.DateTo != nil {
		r := Range{Field: FieldCreatedAt}
		if c.DateFrom != nil {
			r.Min = StartOfDay(*c.DateFrom)
		}
		if c.DateTo != nil {
			r.Max = EndOfDay(*c.DateTo)
		}
		preds = append(preds, r)
	}

	preds = appendFloatRange(preds, FieldGrossWeight, c.GrossWeight)
	preds = appendFloatRange(preds, FieldNetWeight, c.NetWeight)
	preds = appendFloatRange(preds, FieldFineWeight, c.FineWeight)
	if q := c.Quantity; q != nil && (q.Min != nil || q.Max != nil) {
		r := Range{Field: FieldQuantity}
		if q.Min != nil {
			r.Min = *q.Min
		}
		if q.Max != nil {
			r.Max = *q.Max
		}
		preds = append(preds, r)
	}

	addEq(FieldSourceFirmID, c.SourceFirmID)
	addEq(FieldSourcePurchaseOrderID, c.SourcePurchaseOrderID)

	return And{Predicates: preds}
}

func appendFloatRange(preds []Predicate, f Field, fr *FloatRange) []Predicate {
	if fr == nil || (fr.Min == nil && fr.Max == nil) {
		return preds
	}
	r := Range{Field: f}
	if fr.Min != nil {
		r.Min = *fr.Min
	}
	if fr.Max != nil {
		r.Max = *fr.Max
	}
	return append(preds, r)
}

// Validate checks the config by validating its lowered predicate.
func (c FilterConfig) Validate(scope ir.Scope) error {
	return Validate(c.Predicate(scope))
}
