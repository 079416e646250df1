package harness

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/ir"
)

// errInjected is the storage error returned by an armed stage.
var errInjected = errors.New("injected write failure")

// faultyStore fails the next write at the armed stage, then behaves normally.
type faultyStore struct {
	coordinator.Store

	mu    sync.Mutex
	armed coordinator.Stage
}

func (f *faultyStore) arm(stage coordinator.Stage) {
	f.mu.Lock()
	f.armed = stage
	f.mu.Unlock()
}

func (f *faultyStore) trip(stage coordinator.Stage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed != "" && f.armed == stage {
		f.armed = ""
		return true
	}
	return false
}

func (f *faultyStore) InsertItem(ctx context.Context, it ir.Item) error {
	if f.trip(coordinator.StageItem) {
		return errInjected
	}
	return f.Store.InsertItem(ctx, it)
}

func (f *faultyStore) DeleteItem(ctx context.Context, scope ir.Scope, id string) (int64, error) {
	if f.trip(coordinator.StageItem) {
		return 0, errInjected
	}
	return f.Store.DeleteItem(ctx, scope, id)
}

func (f *faultyStore) ApplyDeltaToSubCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	if f.trip(coordinator.StageSubCategoryDelta) {
		return ir.Totals{}, errInjected
	}
	return f.Store.ApplyDeltaToSubCategory(ctx, scope, id, d)
}

func (f *faultyStore) ApplyDeltaToCategory(ctx context.Context, scope ir.Scope, id string, d ir.Delta) (ir.Totals, error) {
	if f.trip(coordinator.StageCategoryDelta) {
		return ir.Totals{}, errInjected
	}
	return f.Store.ApplyDeltaToCategory(ctx, scope, id, d)
}
