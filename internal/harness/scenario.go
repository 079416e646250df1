package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/queryir"
)

// DefaultScope is used when a scenario does not name one.
var DefaultScope = ir.Scope{TenantID: "tenant-1", LocationID: "shop-1"}

// Scenario is one executable inventory scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Scope owns every row the scenario writes. Defaults to DefaultScope.
	Scope ir.Scope `yaml:"scope,omitempty"`

	// Catalog is CUE source declaring the categories and subcategories.
	Catalog string `yaml:"catalog"`

	// Setup steps run before the flow. Any failure aborts the run.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are traced and checked against their expect clauses.
	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpInsert  = "insert"
	OpDelete  = "delete"
	OpUpdate  = "update"
	OpRecalc  = "recalc"
	OpFilter  = "filter"
	OpCorrupt = "corrupt"
)

// Step is a single operation.
type Step struct {
	Op string `yaml:"op"`

	// Ref names an item for later steps. Insert and update bind it to the
	// new id; delete and update look it up. An unbound ref is used as a
	// literal id.
	Ref string `yaml:"ref,omitempty"`

	// Category and SubCategory are parent names. For delete they are
	// passed as explicit parent ids; for filter they narrow the result; for
	// corrupt they select the row to overwrite.
	Category    string `yaml:"category,omitempty"`
	SubCategory string `yaml:"subcategory,omitempty"`

	Item   *ir.Item              `yaml:"item,omitempty"`
	Filter *queryir.FilterConfig `yaml:"filter,omitempty"`

	// Totals is the value written by corrupt.
	Totals *TotalsSpec `yaml:"totals,omitempty"`

	// FailAt makes the first write at this chain stage fail.
	FailAt coordinator.Stage `yaml:"fail_at,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a flow step's outcome.
type Expect struct {
	// Outcome is "ok", "noop" or an error code such as "WRITE_FAILURE".
	Outcome string `yaml:"outcome"`

	// Stage is the failed chain stage for WRITE_FAILURE.
	Stage coordinator.Stage `yaml:"stage,omitempty"`

	// Items is the filter result as refs, in order.
	Items []string `yaml:"items,omitempty"`

	// Drift and Anomalies are recalc row counts.
	Drift     *int `yaml:"drift,omitempty"`
	Anomalies *int `yaml:"anomalies,omitempty"`
}

// TotalsSpec is a partial rollup. Unset fields are not compared; corrupt
// writes them as zero.
type TotalsSpec struct {
	Quantity    *int64   `yaml:"quantity,omitempty"`
	GrossWeight *float64 `yaml:"gross_weight,omitempty"`
	FineWeight  *float64 `yaml:"fine_weight,omitempty"`
}

// Totals returns the partial totals with unset fields as zero.
func (t TotalsSpec) Totals() ir.Totals {
	var out ir.Totals
	if t.Quantity != nil {
		out.Quantity = *t.Quantity
	}
	if t.GrossWeight != nil {
		out.GrossWeight = *t.GrossWeight
	}
	if t.FineWeight != nil {
		out.FineWeight = *t.FineWeight
	}
	return out
}

// Assertion validates the final state or the trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Category and SubCategory select the row for totals.
	Category    string `yaml:"category,omitempty"`
	SubCategory string `yaml:"subcategory,omitempty"`

	Expect *TotalsSpec `yaml:"expect,omitempty"`

	// Op and Outcome select trace events for trace_count.
	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number for item_count and trace_count.
	Count int `yaml:"count"`
}

// Assertion types.
const (
	AssertTotals     = "totals"
	AssertItemCount  = "item_count"
	AssertConsistent = "consistent"
	AssertTraceCount = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.Scope == (ir.Scope{}) {
		scenario.Scope = DefaultScope
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !s.Scope.Valid() {
		return fmt.Errorf("scope needs both tenant_id and location_id")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpInsert:
		if step.Item == nil || step.Category == "" || step.SubCategory == "" {
			return fmt.Errorf("insert needs item, category and subcategory")
		}
	case OpUpdate:
		if step.Ref == "" || step.Item == nil || step.Category == "" || step.SubCategory == "" {
			return fmt.Errorf("update needs ref, item, category and subcategory")
		}
	case OpDelete:
		if step.Ref == "" {
			return fmt.Errorf("delete needs ref")
		}
	case OpCorrupt:
		if step.Category == "" || step.Totals == nil {
			return fmt.Errorf("corrupt needs category and totals")
		}
	case OpRecalc, OpFilter:
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	switch step.FailAt {
	case "", coordinator.StageItem, coordinator.StageSubCategoryDelta, coordinator.StageCategoryDelta:
	default:
		return fmt.Errorf("unknown fail_at stage %q", step.FailAt)
	}
	if step.Expect != nil && step.Expect.Outcome == "" {
		return fmt.Errorf("expect.outcome is required")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTotals:
		if a.Category == "" {
			return fmt.Errorf("category is required for totals")
		}
		if a.Expect == nil {
			return fmt.Errorf("expect is required for totals")
		}
	case AssertItemCount, AssertConsistent:
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("op is required for trace_count")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}
	return nil
}
