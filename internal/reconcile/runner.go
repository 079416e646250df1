package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/metrics"
)

// Store is what a reconciliation pass reads and writes.
type Store interface {
	ListCategories(ctx context.Context, scope ir.Scope) ([]ir.Category, error)
	ListSubCategories(ctx context.Context, scope ir.Scope) ([]ir.SubCategory, error)
	ListItems(ctx context.Context, scope ir.Scope) ([]ir.Item, error)
	WriteRollups(ctx context.Context, scope ir.Scope, subs, cats map[string]ir.Totals) error
}

// Locker excludes mutation chains from a scope. *coordinator.Gate implements it.
type Locker interface {
	Exclusive(scope ir.Scope) (release func())
}

type noLock struct{}

func (noLock) Exclusive(ir.Scope) func() { return func() {} }

// Report summarizes one RecalcAll pass.
type Report struct {
	Scope         ir.Scope      `json:"scope"`
	Items         int           `json:"items"`
	SubCategories int           `json:"subcategories"`
	Categories    int           `json:"categories"`
	Drift         []DriftRow    `json:"drift"`
	Anomalies     []Anomaly     `json:"anomalies"`
	Duration      time.Duration `json:"-"`
}

// AnomalyCounts groups anomalies by kind.
func (r *Report) AnomalyCounts() map[string]int {
	counts := make(map[string]int)
	for _, a := range r.Anomalies {
		counts[string(a.Kind)]++
	}
	return counts
}

func (r *Report) driftByLevel() (subs, cats int) {
	for _, d := range r.Drift {
		if d.Level == "category" {
			cats++
		} else {
			subs++
		}
	}
	return subs, cats
}

// Runner performs reconciliation passes.
type Runner struct {
	store   Store
	gate    Locker
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithGate shares the coordinator's scope gate so passes exclude chains.
func WithGate(l Locker) Option {
	return func(r *Runner) {
		r.gate = l
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics records pass outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner over s.
func NewRunner(s Store, opts ...Option) *Runner {
	r := &Runner{
		store:  s,
		gate:   noLock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecalcAll recomputes and writes back every rollup in scope.
//
// Orphaned rows are reported in the Report, not returned as errors. The
// returned error is non-nil only when the store could not be read or
// written; in that case no rollup has changed.
func (r *Runner) RecalcAll(ctx context.Context, scope ir.Scope) (*Report, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("recalc: invalid scope %q", scope.String())
	}

	start := time.Now()
	report, err := r.recalc(ctx, scope)
	elapsed := time.Since(start)

	if err != nil {
		r.logger.Error("recalc failed", "scope", scope.String(), "error", err)
		r.metrics.ObserveRecalc(err, elapsed, 0, 0, nil)
		return nil, err
	}

	report.Duration = elapsed
	subDrift, catDrift := report.driftByLevel()
	r.metrics.ObserveRecalc(nil, elapsed, subDrift, catDrift, report.AnomalyCounts())

	for _, a := range report.Anomalies {
		r.logger.Warn("recalc anomaly", "scope", scope.String(), "kind", string(a.Kind), "id", a.ID, "ref", a.Ref)
	}
	for _, d := range report.Drift {
		r.logger.Info("rollup corrected",
			"scope", scope.String(),
			"level", d.Level,
			"id", d.ID,
			"cached_gross", d.Cached.GrossWeight,
			"computed_gross", d.Computed.GrossWeight,
		)
	}
	r.logger.Info("recalc complete",
		"scope", scope.String(),
		"items", report.Items,
		"drift", len(report.Drift),
		"anomalies", len(report.Anomalies),
		"duration", elapsed,
	)
	return report, nil
}

func (r *Runner) recalc(ctx context.Context, scope ir.Scope) (*Report, error) {
	release := r.gate.Exclusive(scope)
	defer release()

	cats, err := r.store.ListCategories(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("recalc: %w", err)
	}
	subs, err := r.store.ListSubCategories(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("recalc: %w", err)
	}
	items, err := r.store.ListItems(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("recalc: %w", err)
	}

	res := Compute(cats, subs, items)
	report := &Report{
		Scope:         scope,
		Items:         len(items),
		SubCategories: len(subs),
		Categories:    len(cats),
		Drift:         res.Drift(cats, subs),
		Anomalies:     res.Anomalies,
	}

	if err := r.store.WriteRollups(ctx, scope, res.SubCategories, res.Categories); err != nil {
		return nil, fmt.Errorf("recalc: %w", err)
	}
	return report, nil
}

// RecalcAsync runs RecalcAll in the background. Errors are logged only.
// Use Wait to block until every started pass has finished.
func (r *Runner) RecalcAsync(ctx context.Context, scope ir.Scope) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// RecalcAll already logs failures.
		_, _ = r.RecalcAll(ctx, scope)
	}()
}

// Wait blocks until all RecalcAsync passes have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
