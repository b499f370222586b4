package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum interval between consecutive calls to one
// logical provider. One instance is shared by every caller of a client, so
// concurrent requests serialize through it; that is the intended effect.
//
// A nil *Throttle never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a throttle allowing at most one call per minInterval.
// A non-positive interval disables throttling.
func NewThrottle(minInterval time.Duration) *Throttle {
	if minInterval <= 0 {
		return nil
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the next call is allowed or ctx is cancelled. A
// cancelled wait returns the reserved slot, so an aborted request does not
// push back later callers.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// BudgetExceededError means a provider's call budget is spent. The caller
// never reached the network.
type BudgetExceededError struct {
	Provider string
	Max      int
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("provider %s: call budget of %d requests exhausted", e.Provider, e.Max)
}

// CallBudget caps the total number of calls a client may dispatch over its
// lifetime. Zero max means unlimited. A nil *CallBudget never refuses.
type CallBudget struct {
	mu       sync.Mutex
	provider string
	max      int
	used     int
}

// NewCallBudget creates a budget of max calls for the named provider.
func NewCallBudget(provider string, max int) *CallBudget {
	if max <= 0 {
		return nil
	}
	return &CallBudget{provider: provider, max: max}
}

// Spend consumes one call from the budget, or fails with
// *BudgetExceededError before any network activity.
func (b *CallBudget) Spend() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.max {
		return &BudgetExceededError{Provider: b.provider, Max: b.max}
	}
	b.used++
	return nil
}

// Remaining reports how many calls are left, or -1 for unlimited.
func (b *CallBudget) Remaining() int {
	if b == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max - b.used
}
