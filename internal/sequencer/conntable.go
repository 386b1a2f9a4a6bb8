package sequencer

import "time"

// roundTripper is the fan-out capability the Sequencer needs from a
// connected strategy's transport binding. *transport.Requester
// satisfies it; tests substitute fakes so the tick algorithm can be
// verified without a running NATS broker.
type roundTripper interface {
	Request(data []byte, timeout time.Duration) ([]byte, error)
}

// connTable maps connection_id to its request/reply requester, in
// insertion order. It is touched only from the Sequencer's single
// owning goroutine (add/remove from the main loop, snapshot before a
// fan-out starts), so it needs no locking — see the "shared-resource
// policy" this mirrors: one owner, no shared memory.
type connTable struct {
	ids  []string
	reqs map[string]roundTripper
}

func newConnTable() *connTable {
	return &connTable{reqs: make(map[string]roundTripper)}
}

func (t *connTable) add(id string, req roundTripper) {
	if _, exists := t.reqs[id]; exists {
		t.reqs[id] = req
		return
	}
	t.ids = append(t.ids, id)
	t.reqs[id] = req
}

func (t *connTable) remove(id string) {
	if _, exists := t.reqs[id]; !exists {
		return
	}
	delete(t.reqs, id)
	for i, existing := range t.ids {
		if existing == id {
			t.ids = append(t.ids[:i], t.ids[i+1:]...)
			break
		}
	}
}

func (t *connTable) has(id string) bool {
	_, ok := t.reqs[id]
	return ok
}

// snapshot returns the connections in fixed fan-out order: the order
// they connected in, stable across ticks until one connects or
// disconnects.
func (t *connTable) snapshot() ([]string, []roundTripper) {
	ids := make([]string, len(t.ids))
	copy(ids, t.ids)
	reqs := make([]roundTripper, len(ids))
	for i, id := range ids {
		reqs[i] = t.reqs[id]
	}
	return ids, reqs
}

func (t *connTable) len() int {
	return len(t.ids)
}
