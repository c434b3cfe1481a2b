package membership

import "sync"

// Table is the append-only list of peer addresses a node knows about.
// Addresses are never removed for the lifetime of the process.
type Table struct {
	mu    sync.RWMutex
	order []string
	known map[string]struct{}
}

func New() *Table {
	return &Table{known: make(map[string]struct{})}
}

// Register appends addr and reports whether it was new.
func (t *Table) Register(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.known[addr]; ok {
		return false
	}
	t.known[addr] = struct{}{}
	t.order = append(t.order, addr)
	return true
}

func (t *Table) Contains(addr string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.known[addr]
	return ok
}

// List returns a copy of the addresses in registration order.
func (t *Table) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Except lists every address not in exclude, keeping registration order.
func (t *Table) Except(exclude ...string) []string {
	all := t.List()
	out := all[:0]
	for _, addr := range all {
		skip := false
		for _, x := range exclude {
			if addr == x {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, addr)
		}
	}
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
