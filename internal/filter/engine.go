package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/metrics"
	"github.com/roach88/bullion/internal/queryir"
	"github.com/roach88/bullion/internal/querysql"
)

// Source runs compiled filters and signals changes. *store.Store implements it.
type Source interface {
	QueryItems(ctx context.Context, where string, args []any, limit int) ([]ir.Item, error)
	Watch(scope ir.Scope) (<-chan struct{}, func())
}

// Engine owns the subscription slots.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	src     Source
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	slots map[string]*slot
}

// slot is the per-key state. gen identifies the request allowed to publish.
type slot struct {
	mu     sync.Mutex
	gen    uint64
	state  State
	buffer []ir.Item
	err    error
	cancel context.CancelFunc
	done   chan struct{} // closed when the current request's goroutine exits
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records request churn into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine reading from src.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:    src,
		logger: slog.Default(),
		now:    time.Now,
		slots:  make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) slot(key string) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[key]
	if !ok {
		s = &slot{}
		e.slots[key] = s
	}
	return s
}

// Subscription is the handle for one request.
type Subscription struct {
	updates <-chan Snapshot
	cancel  context.CancelFunc
	done    <-chan struct{}
}

// Updates delivers snapshots, latest first: if the receiver falls behind,
// an unread snapshot is replaced by the newer one. The channel is closed
// when the request ends.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Cancel stops the request and waits for it to exit. Idempotent.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Done is closed when the request has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Filter starts a request on slotKey, cancelling the slot's previous one.
//
// The slot's buffer is cleared and its state set to Running before Filter
// returns. The request runs until ctx is done, Cancel is called, a newer
// Filter on the same slot supersedes it, or its query fails.
func (e *Engine) Filter(ctx context.Context, slotKey string, scope ir.Scope, cfg queryir.FilterConfig) *Subscription {
	s := e.slot(slotKey)
	reqCtx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot, 1)
	done := make(chan struct{})

	s.mu.Lock()
	prevCancel, prevDone := s.cancel, s.done
	if s.state == StateRunning || s.state == StateDelivered {
		if s.state == StateRunning {
			s.state = StateCancelled
		}
		e.metrics.FilterCancelled()
	}
	s.gen++
	gen := s.gen
	s.state = StateRunning
	s.buffer = nil
	s.err = nil
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	e.metrics.FilterStarted()
	e.logger.Debug("filter started", "slot", slotKey, "gen", gen, "scope", scope.String())

	go e.run(reqCtx, s, slotKey, gen, scope, cfg, out, done)

	return &Subscription{updates: out, cancel: cancel, done: done}
}

func (e *Engine) run(ctx context.Context, s *slot, key string, gen uint64, scope ir.Scope, cfg queryir.FilterConfig, out chan Snapshot, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer e.finish(s, gen)

	if !scope.Valid() {
		e.publish(s, key, gen, out, Snapshot{Seq: 1, At: e.now(), Err: fmt.Errorf("filter: invalid scope %q", scope.String())})
		return
	}
	where, args, err := querysql.Compile(cfg.Predicate(scope))
	if err != nil {
		e.publish(s, key, gen, out, Snapshot{Seq: 1, At: e.now(), Err: fmt.Errorf("filter: %w", err)})
		return
	}

	// Watch before the first query so no change between query and wait is missed.
	changes, stop := e.src.Watch(scope)
	defer stop()

	for seq := uint64(1); ; seq++ {
		items, err := e.src.QueryItems(ctx, where, args, cfg.Limit)
		if ctx.Err() != nil {
			return
		}
		snap := Snapshot{Seq: seq, At: e.now()}
		if err != nil {
			snap.Err = fmt.Errorf("filter: %w", err)
		} else {
			SortItems(items, cfg.Sort)
			snap.Items = items
		}
		if !e.publish(s, key, gen, out, snap) || snap.Err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
	}
}

// publish stores snap in the slot and offers it to the subscriber, but only
// while gen is still the slot's current request. Returns false when the
// request has been superseded.
func (e *Engine) publish(s *slot, key string, gen uint64, out chan Snapshot, snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false
	}
	if snap.Err != nil {
		s.state = StateFailed
		s.buffer = nil
		s.err = snap.Err
		e.logger.Warn("filter failed", "slot", key, "gen", gen, "error", snap.Err)
	} else {
		s.state = StateDelivered
		s.buffer = snap.Items
		e.logger.Debug("filter delivered", "slot", key, "gen", gen, "seq", snap.Seq, "items", len(snap.Items))
	}
	e.metrics.FilterPublished(snap.Err, len(snap.Items))

	// Latest wins: drop an unread snapshot rather than block.
	select {
	case <-out:
	default:
	}
	out <- snap
	return true
}

// finish marks a request that exits before publishing as cancelled.
func (e *Engine) finish(s *slot, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state == StateRunning {
		s.state = StateCancelled
		e.metrics.FilterCancelled()
	}
}

// Buffer returns a copy of the slot's current results and its state.
// An unknown slot is Idle with no results.
func (e *Engine) Buffer(slotKey string) ([]ir.Item, State) {
	e.mu.Lock()
	s, ok := e.slots[slotKey]
	e.mu.Unlock()
	if !ok {
		return nil, StateIdle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ir.Item(nil), s.buffer...), s.state
}

// Err returns the error of a Failed slot.
func (e *Engine) Err(slotKey string) error {
	e.mu.Lock()
	s, ok := e.slots[slotKey]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels every slot's request and waits for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	slots := make([]*slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
	}
}
