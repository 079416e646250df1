// Package querysql compiles queryir predicates to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/bullion/internal/queryir"
)

// columns maps every IR field to its column in the store's item view
// (alias i for items). Only these strings ever reach the SQL text.
var columns = map[queryir.Field]string{
	queryir.FieldTenantID:              "i.tenant_id",
	queryir.FieldLocationID:            "i.location_id",
	queryir.FieldCategoryID:            "i.category_id",
	queryir.FieldSubCategoryID:         "i.sub_category_id",
	queryir.FieldEntryType:             "i.entry_type",
	queryir.FieldPurity:                "i.purity",
	queryir.FieldChargeType:            "i.charge_type",
	queryir.FieldCreatedAt:             "i.created_at",
	queryir.FieldGrossWeight:           "i.gross_weight",
	queryir.FieldNetWeight:             "i.net_weight",
	queryir.FieldFineWeight:            "i.fine_weight",
	queryir.FieldQuantity:              "i.quantity",
	queryir.FieldSourceFirmID:          "i.source_firm_id",
	queryir.FieldSourcePurchaseOrderID: "i.source_purchase_order_id",
}

// Compile converts a predicate into a WHERE fragment and its parameters.
// The predicate is validated first.
//
// CRITICAL: values are NEVER interpolated - always ? placeholders.
// Timestamps are passed as Unix milliseconds, the store's encoding.
func Compile(p queryir.Predicate) (string, []any, error) {
	if err := queryir.Validate(p); err != nil {
		return "", nil, fmt.Errorf("invalid predicate: %w", err)
	}
	return compilePredicate(p)
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.Range:
		return compileRange(pred)
	case *queryir.Range:
		return compileRange(*pred)
	case queryir.And:
		return compileAnd(pred)
	case *queryir.And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func column(f queryir.Field) (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", fmt.Errorf("no column for field %q", f)
	}
	return col, nil
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	col, err := column(eq.Field)
	if err != nil {
		return "", nil, err
	}
	return col + " = ?", []any{toParam(eq.Value)}, nil
}

func compileRange(r queryir.Range) (string, []any, error) {
	col, err := column(r.Field)
	if err != nil {
		return "", nil, err
	}

	var parts []string
	var params []any
	if r.Min != nil {
		parts = append(parts, col+" >= ?")
		params = append(params, toParam(r.Min))
	}
	if r.Max != nil {
		parts = append(parts, col+" <= ?")
		params = append(params, toParam(r.Max))
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Always true (vacuous truth)
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		switch pred.(type) {
		case queryir.And, *queryir.And:
			sql = "(" + sql + ")"
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

// toParam converts an IR value to a driver parameter.
func toParam(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli()
	}
	return v
}
