// Package sync reconciles the live site with the database: it discovers
// pages, extracts records through a bounded worker gate and applies
// upserts and stale-row deletions.
package sync

import (
	"context"
	"fmt"
)

// Gate bounds the number of extraction tasks in flight for one batch.
// Each batch constructs its own gate so tests can inject small widths.
type Gate struct {
	slots chan struct{}
}

// NewGate builds a gate admitting at most width concurrent holders.
func NewGate(width int) *Gate {
	if width <= 0 {
		width = 1
	}
	return &Gate{slots: make(chan struct{}, width)}
}

// Acquire blocks until a slot frees up or the context ends. On success
// it returns the release func for the slot.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.slots <- struct{}{}:
		return func() { <-g.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire extraction slot: %w", ctx.Err())
	}
}
