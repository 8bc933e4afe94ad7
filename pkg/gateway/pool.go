package gateway

import (
	"fmt"
	"sync"
)

// Pool is a fixed array of Session Contexts created once at startup, plus a
// LIFO of free indices (§4.4). The free-index mutex is the only lock the
// pool itself holds; each Session Context protects its own state.
type Pool struct {
	sessions []*SessionContext

	mu   sync.Mutex
	free []int // LIFO: free[len-1] is acquired next (hot cache, §4.4 Ordering)
}

// NewPool constructs n Session Contexts eagerly via factory and adds all of
// them to the free list. Any single construction failure aborts the whole
// pool (§4.4 Init: "Any Init failure aborts startup").
func NewPool(n int, factory ExecutorFactory, opts ExecutorOptions, logger Logger) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("gateway: pool: max_sessions must be positive, got %d", n)
	}
	p := &Pool{
		sessions: make([]*SessionContext, n),
		free:     make([]int, 0, n),
	}
	for i := 0; i < n; i++ {
		ctx, err := NewSessionContext(i, factory, opts, logger)
		if err != nil {
			p.closeAll(i)
			return nil, fmt.Errorf("gateway: pool: session %d: %w", i, err)
		}
		p.sessions[i] = ctx
		p.free = append(p.free, i)
	}
	return p, nil
}

func (p *Pool) closeAll(upTo int) {
	for i := 0; i < upTo; i++ {
		if p.sessions[i] != nil && p.sessions[i].executor != nil {
			p.sessions[i].executor.Close()
		}
	}
}

// Len returns the total number of slots in the pool.
func (p *Pool) Len() int { return len(p.sessions) }

// Acquire pops a free slot, resets it for reuse, and binds sock to it. It
// never blocks: if the pool is empty it returns ErrPoolExhausted
// immediately, matching §4.4's "Server busy" refusal behavior.
func (p *Pool) Acquire(sock Socket) (*SessionContext, error) {
	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.mu.Unlock()

	ctx := p.sessions[idx]
	if err := ctx.ResetForReuse(); err != nil {
		p.mu.Lock()
		p.free = append(p.free, idx)
		p.mu.Unlock()
		return nil, fmt.Errorf("gateway: pool: reset slot %d: %w", idx, err)
	}
	if _, err := ctx.Start(sock); err != nil {
		p.mu.Lock()
		p.free = append(p.free, idx)
		p.mu.Unlock()
		return nil, fmt.Errorf("gateway: pool: start slot %d: %w", idx, err)
	}
	return ctx, nil
}

// Release detaches the socket from ctx and returns its index to the free
// list.
func (p *Pool) Release(ctx *SessionContext) {
	ctx.Stop()
	p.mu.Lock()
	p.free = append(p.free, ctx.Index())
	p.mu.Unlock()
}

// Get returns the slot at index. The index is assumed valid, per §4.4.
func (p *Pool) Get(index int) *SessionContext {
	return p.sessions[index]
}

// Close releases every executor bundle held by the pool. Used on server
// shutdown.
func (p *Pool) Close() {
	for _, ctx := range p.sessions {
		if ctx != nil && ctx.executor != nil {
			ctx.executor.Close()
		}
	}
}
