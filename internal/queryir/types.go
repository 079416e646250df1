package queryir

// Field names a filterable item attribute.
type Field string

const (
	FieldTenantID              Field = "tenant_id"
	FieldLocationID            Field = "location_id"
	FieldCategoryID            Field = "category_id"
	FieldSubCategoryID         Field = "subcategory_id"
	FieldEntryType             Field = "entry_type"
	FieldPurity                Field = "purity"
	FieldChargeType            Field = "charge_type"
	FieldCreatedAt             Field = "created_at"
	FieldGrossWeight           Field = "gross_weight"
	FieldNetWeight             Field = "net_weight"
	FieldFineWeight            Field = "fine_weight"
	FieldQuantity              Field = "quantity"
	FieldSourceFirmID          Field = "source_firm_id"
	FieldSourcePurchaseOrderID Field = "source_purchase_order_id"
)

// Kind is the value type a field compares against.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindTime
)

// fieldKinds is the closed set of filterable fields.
var fieldKinds = map[Field]Kind{
	FieldTenantID:              KindString,
	FieldLocationID:            KindString,
	FieldCategoryID:            KindString,
	FieldSubCategoryID:         KindString,
	FieldEntryType:             KindString,
	FieldPurity:                KindString,
	FieldChargeType:            KindString,
	FieldCreatedAt:             KindTime,
	FieldGrossWeight:           KindFloat,
	FieldNetWeight:             KindFloat,
	FieldFineWeight:            KindFloat,
	FieldQuantity:              KindInt,
	FieldSourceFirmID:          KindString,
	FieldSourcePurchaseOrderID: KindString,
}

// KindOf returns the value kind of f and whether f is a known field.
func KindOf(f Field) (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Equals matches rows whose field equals Value.
//
// Value is a string for string fields, int64 for FieldQuantity, float64
// for weights and time.Time for FieldCreatedAt.
type Equals struct {
	Field Field
	Value any
}

func (Equals) predicateNode() {}

// Range matches rows with Min <= field <= Max. A nil bound is open.
// Both bounds are inclusive.
type Range struct {
	Field Field
	Min   any
	Max   any
}

func (Range) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
