package taskqueue

import "sync"

// CallbackToken identifies a registration made through
// Queue.AddStatusChangedCallback, required to remove it again. Go func
// values aren't comparable, so identity is tracked by this opaque handle
// rather than by the callback's address.
type CallbackToken uint64

// observerRegistry is the guarded set of status-changed callbacks. Callers
// must never acquire the primary lock from inside a callback, and must
// never call back into the queue: callbacks run with the observer lock
// released but are invoked from worker/admin goroutines that may be
// mid-sweep.
type observerRegistry struct {
	mu      sync.Mutex
	next    CallbackToken
	entries []observerEntry
}

type observerEntry struct {
	token CallbackToken
	cb    func()
}

// add registers cb and returns the token needed to remove it.
func (r *observerRegistry) add(cb func()) CallbackToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	token := r.next
	r.entries = append(r.entries, observerEntry{token: token, cb: cb})
	return token
}

// remove unregisters the callback matching token. Removing an unknown
// token is a silent no-op, per spec.
func (r *observerRegistry) remove(token CallbackToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.token == token {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// notify invokes every registered callback with the observer lock
// released, snapshotting the callback list first so a callback that
// races with add/remove never sees a torn registry.
func (r *observerRegistry) notify() {
	r.mu.Lock()
	callbacks := make([]func(), len(r.entries))
	for i, e := range r.entries {
		callbacks[i] = e.cb
	}
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}
