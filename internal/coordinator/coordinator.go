package coordinator

import (
	"context"
	"log/slog"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/metrics"
)

// Store is the subset of the hierarchy store the coordinator writes through.
// *store.Store implements it; tests substitute fakes to inject stage failures.
type Store interface {
	GetCategory(ctx context.Context, scope ir.Scope, id string) (ir.Category, error)
	GetSubCategory(ctx context.Context, scope ir.Scope, id string) (ir.SubCategory, error)
	GetItem(ctx context.Context, scope ir.Scope, id string) (ir.Item, error)
	InsertItem(ctx context.Context, it ir.Item) error
	DeleteItem(ctx context.Context, scope ir.Scope, id string) (int64, error)
	ApplyDeltaToSubCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error)
	ApplyDeltaToCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error)

	// AtomicDeltas reports whether ApplyDelta* are single indivisible
	// operations. When false, chains are serialized per (category, subcategory).
	AtomicDeltas() bool
}

// Coordinator runs InsertItem / DeleteItem compensation chains.
//
// Thread-safety: all methods are safe for concurrent use.
type Coordinator struct {
	store     Store
	ids       IDGenerator
	clock     Clock
	metrics   *metrics.Metrics
	gate      *Gate
	stripes   *stripedMutex
	serialize bool
	logger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithIDGenerator sets the item id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithClock sets the CreatedAt source. Default: SystemClock.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithMetrics records chain outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithGate shares a scope gate with a reconciliation runner.
// Without it the coordinator uses a private gate, which only orders
// chains against each other.
func WithGate(g *Gate) Option {
	return func(c *Coordinator) {
		c.gate = g
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithSerializedChains forces the striped per-(category, subcategory) lock
// even when the store applies deltas atomically.
func WithSerializedChains() Option {
	return func(c *Coordinator) {
		c.serialize = true
	}
}

// New creates a Coordinator writing through s.
func New(s Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   s,
		ids:     UUIDv7Generator{},
		clock:   SystemClock{},
		stripes: &stripedMutex{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gate == nil {
		c.gate = NewGate()
	}
	if !s.AtomicDeltas() {
		c.serialize = true
	}
	return c
}

// Gate returns the scope gate, for sharing with a reconciliation runner.
func (c *Coordinator) Gate() *Gate {
	return c.gate
}

// lockChain takes the stripe for (category, subcategory) when chains are
// serialized. The returned func is always safe to call.
func (c *Coordinator) lockChain(scope ir.Scope, categoryID, subCategoryID string) func() {
	if !c.serialize {
		return func() {}
	}
	return c.stripes.lock(scope, categoryID, subCategoryID)
}

func (c *Coordinator) fail(op string, stage Stage, it ir.Item, err error) error {
	wf := &WriteFailure{Op: op, Stage: stage, ItemID: it.ID, Err: err}
	c.logger.Error("compensation chain failed",
		"op", op,
		"stage", string(stage),
		"scope", it.Scope.String(),
		"item_id", it.ID,
		"category_id", it.CategoryID,
		"subcategory_id", it.SubCategoryID,
		"needs_recalc", wf.NeedsRecalc(),
		"error", err,
	)
	c.metrics.WriteFailure(op, string(stage))
	return wf
}

func outcomeOf(err error) string {
	switch CodeOf(err) {
	case "":
		return metrics.OutcomeOK
	case ErrCodeValidation:
		return metrics.OutcomeValidation
	case ErrCodeNotFound:
		return metrics.OutcomeNotFound
	case ErrCodeWriteFailure:
		return metrics.OutcomeFailure
	default:
		return metrics.OutcomeInternal
	}
}
