package protocol

import (
	"sync"
	"time"
)

// connGroup is N shared, reference-counted lazy clients dialed to one
// host:port. Requests round-robin across them so a single slow call
// cannot starve every consumer sharing the connection (§4.6).
type connGroup struct {
	clients []*LazyClient
	refs    int

	pickMu sync.Mutex
	next   int
}

// pool is the process-wide cache of connGroups keyed by host:port. A
// group under construction is marked in the pending set, and the cond
// variable lets concurrent Refer calls for the same address wait for
// the first caller to finish dialing instead of racing to create two
// groups, mirroring the teacher's connection-pool guard pattern adapted
// to a per-key pending sentinel.
type pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	groups  map[string]*connGroup
	pending map[string]bool
}

func newPool() *pool {
	p := &pool{groups: make(map[string]*connGroup), pending: make(map[string]bool)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// acquire returns the shared connGroup for addr, creating it with n
// clients via dial the first time any caller asks for addr. Callers
// racing on the same addr block on the pool's cond variable rather than
// dialing n clients each.
func (p *pool) acquire(addr string, n int, dial func() *LazyClient) *connGroup {
	p.mu.Lock()
	for {
		if g, ok := p.groups[addr]; ok {
			g.refs++
			p.mu.Unlock()
			return g
		}
		if !p.pending[addr] {
			break
		}
		p.cond.Wait()
	}
	p.pending[addr] = true
	p.mu.Unlock()

	clients := make([]*LazyClient, n)
	for i := range clients {
		clients[i] = dial()
	}

	p.mu.Lock()
	g := &connGroup{clients: clients, refs: 1}
	p.groups[addr] = g
	delete(p.pending, addr)
	p.cond.Broadcast()
	p.mu.Unlock()
	return g
}

// release drops one reference on addr's group, closing and removing it
// once the last referer is gone.
func (p *pool) release(addr string, timeout time.Duration) {
	p.mu.Lock()
	g, ok := p.groups[addr]
	if !ok {
		p.mu.Unlock()
		return
	}
	g.refs--
	done := g.refs <= 0
	if done {
		delete(p.groups, addr)
	}
	p.mu.Unlock()

	if done {
		for _, c := range g.clients {
			c.Close(timeout)
		}
	}
}

// destroyAll force-closes every group regardless of refcount, for
// Protocol.Destroy — unlike release, it ignores how many referers remain.
func (p *pool) destroyAll(timeout time.Duration) {
	p.mu.Lock()
	groups := make([]*connGroup, 0, len(p.groups))
	for addr, g := range p.groups {
		groups = append(groups, g)
		delete(p.groups, addr)
	}
	p.mu.Unlock()

	for _, g := range groups {
		for _, c := range g.clients {
			c.Close(timeout)
		}
	}
}

// pick returns the next client in the group, round-robin by index
// count % len, shared across every invoker referring this group.
func (g *connGroup) pick() *LazyClient {
	g.pickMu.Lock()
	c := g.clients[g.next%len(g.clients)]
	g.next++
	g.pickMu.Unlock()
	return c
}

// refCount reports how many Refer callers currently share this group.
func (g *connGroup) refCount() int {
	return g.refs
}

// refreshIfReadonly swaps out any client in the group whose current
// channel has gone readonly, forcing a fresh connect on next use — §4.6's
// "lazily repaired" behavior triggered by a readonly notice rather than a
// background health check.
func (g *connGroup) refreshIfReadonly() {
	for _, c := range g.clients {
		c.refreshIfReadonly()
	}
}
