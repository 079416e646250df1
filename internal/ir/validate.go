package ir

import "fmt"

// FieldError describes one rejected field of an item.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the caller-supplied fields of an item.
// Returns every violation found, in a fixed field order; nil means valid.
//
// Identifiers, scope and CreatedAt are assigned by the coordinator and are
// not checked here, except that the parent ids must be present.
func (it Item) Validate() []FieldError {
	var errs []FieldError
	add := func(field, msg string) {
		errs = append(errs, FieldError{Field: field, Message: msg})
	}

	if NormalizeName(it.Name) == "" {
		add("name", "is required")
	}
	if it.CategoryID == "" {
		add("category_id", "is required")
	}
	if it.SubCategoryID == "" {
		add("subcategory_id", "is required")
	}
	if it.Quantity <= 0 {
		add("quantity", "must be greater than 0")
	}
	weight := func(field string, v float64) {
		switch {
		case !Finite(v):
			add(field, "must be a finite number")
		case v < 0:
			add(field, "must not be negative")
		}
	}
	weight("gross_weight", it.GrossWeight)
	weight("net_weight", it.NetWeight)
	weight("fine_weight", it.FineWeight)
	if it.NetWeight > it.GrossWeight+Tolerance/2 {
		add("net_weight", "must not exceed gross_weight")
	}
	if it.FineWeight > it.NetWeight+Tolerance/2 {
		add("fine_weight", "must not exceed net_weight")
	}
	if !it.Purity.Valid() {
		add("purity", fmt.Sprintf("unknown purity %q", it.Purity))
	}
	if !ValidChargeTypes[it.ChargeType] {
		add("charge_type", fmt.Sprintf("unknown charge type %q", it.ChargeType))
	}
	weight("charge_amount", it.ChargeAmount)
	if !Finite(it.TaxRate) || it.TaxRate < 0 || it.TaxRate > 100 {
		add("tax_rate", "must be between 0 and 100")
	}
	if !ValidEntryTypes[it.EntryType] {
		add("entry_type", fmt.Sprintf("unknown entry type %q", it.EntryType))
	}
	if it.EntryType == EntryPurchaseOrder && it.SourcePurchaseOrderID == "" {
		add("source_purchase_order_id", "is required for purchase_order entries")
	}

	return errs
}
