package coordinator

import (
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/roach88/bullion/internal/ir"
)

// Gate is a per-scope reader/writer lock shared by the coordinator and the
// reconciliation runner. Mutation chains hold it shared; RecalcAll holds it
// exclusively.
//
// Shared holds must not nest: a pending Exclusive blocks new readers, so a
// goroutine taking Shared twice can deadlock against a waiting recalc.
type Gate struct {
	mu     sync.Mutex
	scopes map[ir.Scope]*sync.RWMutex
}

// NewGate returns an empty gate.
func NewGate() *Gate {
	return &Gate{scopes: make(map[ir.Scope]*sync.RWMutex)}
}

func (g *Gate) lockFor(scope ir.Scope) *sync.RWMutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.scopes[scope]
	if !ok {
		l = &sync.RWMutex{}
		g.scopes[scope] = l
	}
	return l
}

// Shared acquires scope for a mutation chain and returns the release func.
func (g *Gate) Shared(scope ir.Scope) func() {
	l := g.lockFor(scope)
	l.RLock()
	return l.RUnlock
}

// Exclusive acquires scope for a reconciliation pass and returns the
// release func.
func (g *Gate) Exclusive(scope ir.Scope) func() {
	l := g.lockFor(scope)
	l.Lock()
	return l.Unlock
}

const stripeCount = 64

// stripedMutex serializes chains on the same (scope, category, subcategory)
// when the store cannot apply deltas atomically. Distinct pairs usually land
// on distinct stripes; a collision only costs parallelism.
type stripedMutex struct {
	stripes [stripeCount]sync.Mutex
}

func stripeIndex(scope ir.Scope, categoryID, subCategoryID string) uint32 {
	key := scope.TenantID + "\x00" + scope.LocationID + "\x00" + categoryID + "\x00" + subCategoryID
	return murmur3.Sum32([]byte(key)) % stripeCount
}

func (s *stripedMutex) lock(scope ir.Scope, categoryID, subCategoryID string) func() {
	m := &s.stripes[stripeIndex(scope, categoryID, subCategoryID)]
	m.Lock()
	return m.Unlock
}
