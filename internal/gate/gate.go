// Package gate provides a counting admission gate whose capacity can change
// while permits are held.
//
// Shrinking never revokes a granted permit. Lowering the capacity only stops
// new admissions until enough holders release, so the pool drains lazily to
// the new bound.
package gate

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCapacityOutOfRange is returned for capacities outside [1, max].
var ErrCapacityOutOfRange = errors.New("capacity out of range")

// Gate bounds concurrent holders.
type Gate struct {
	mu       sync.Mutex
	max      int
	capacity int
	inUse    int
	waiters  list.List // of chan struct{}
}

// New returns a gate admitting initial holders, resizable up to max.
func New(initial, max int) (*Gate, error) {
	if max < 1 {
		return nil, fmt.Errorf("%w: max %d must be at least 1", ErrCapacityOutOfRange, max)
	}
	if initial < 1 || initial > max {
		return nil, fmt.Errorf("%w: initial %d not in [1, %d]", ErrCapacityOutOfRange, initial, max)
	}
	return &Gate{max: max, capacity: initial}, nil
}

// Acquire blocks until a permit is available or ctx is done. A context that
// is already done fails even when a permit is free.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	if g.inUse < g.capacity && g.waiters.Len() == 0 {
		g.inUse++
		g.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	elem := g.waiters.PushBack(ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-ready:
			// Granted while cancelling; hand the permit back.
			if g.inUse > 0 {
				g.inUse--
			}
			g.notifyLocked()
		default:
			g.waiters.Remove(elem)
			// Removing the head may unblock the next waiter.
			g.notifyLocked()
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns a permit. Releasing more than was acquired is reconciled
// to zero holders instead of failing.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inUse > 0 {
		g.inUse--
	}
	g.notifyLocked()
}

// Resize changes the capacity. Growing admits waiters immediately; shrinking
// takes effect as current holders release. It never blocks.
func (g *Gate) Resize(capacity int) error {
	if capacity < 1 || capacity > g.max {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrCapacityOutOfRange, capacity, g.max)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.capacity = capacity
	g.notifyLocked()
	return nil
}

// Capacity returns the current capacity.
func (g *Gate) Capacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacity
}

// InUse returns the number of permits currently held.
func (g *Gate) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// Max returns the hard ceiling for Resize.
func (g *Gate) Max() int {
	return g.max
}

// Waiting returns the number of blocked Acquire calls.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters.Len()
}

func (g *Gate) notifyLocked() {
	for g.inUse < g.capacity {
		front := g.waiters.Front()
		if front == nil {
			return
		}
		g.inUse++
		g.waiters.Remove(front)
		close(front.Value.(chan struct{}))
	}
}
