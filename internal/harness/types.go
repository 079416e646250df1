package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Op      string         `json:"op"`
	Ref     string         `json:"ref,omitempty"`
	ItemID  string         `json:"item_id,omitempty"`
	Outcome string         `json:"outcome"`
	Stage   string         `json:"stage,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Outcome values recorded in the trace. Errors use the coordinator's code.
const (
	OutcomeOK   = "ok"
	OutcomeNoop = "noop"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// State is the final hierarchy in canonical form, as written to golden
	// files.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev, numbering it from 1.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
