package queryir

// SortField names a column results can be ordered by.
type SortField string

const (
	SortID              SortField = "id"
	SortGrossWeight     SortField = "gross_weight"
	SortNetWeight       SortField = "net_weight"
	SortFineWeight      SortField = "fine_weight"
	SortQuantity        SortField = "quantity"
	SortCategoryName    SortField = "category_name"
	SortSubCategoryName SortField = "subcategory_name"
	SortPurity          SortField = "purity"
	SortEntryType       SortField = "entry_type"
	SortCreatedAt       SortField = "created_at"
)

// ValidSortFields is the fixed set of sortable fields.
var ValidSortFields = map[SortField]bool{
	SortID:              true,
	SortGrossWeight:     true,
	SortNetWeight:       true,
	SortFineWeight:      true,
	SortQuantity:        true,
	SortCategoryName:    true,
	SortSubCategoryName: true,
	SortPurity:          true,
	SortEntryType:       true,
	SortCreatedAt:       true,
}

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is a (field, direction) pair.
type Sort struct {
	Field     SortField `json:"field" yaml:"field"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// DefaultSort is creation date, newest first.
var DefaultSort = Sort{Field: SortCreatedAt, Direction: Desc}

// Normalize returns DefaultSort for an unrecognized field. A recognized
// field with an unrecognized direction sorts ascending.
func (s Sort) Normalize() Sort {
	if !ValidSortFields[s.Field] {
		return DefaultSort
	}
	if s.Direction != Desc {
		s.Direction = Asc
	}
	return s
}
