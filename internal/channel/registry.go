package channel

import (
	"slices"
)

// Handle addresses a subscription inside a Registry. A handle becomes stale
// once its subscription is removed, even if the slot is reused.
type Handle struct {
	index int
	gen   uint32
}

type slot struct {
	gen uint32
	sub *Subscription
}

// Registry is an arena of subscriptions addressed by Handle, with a slug index.
// It is not safe for concurrent use; the owning session serializes access.
type Registry struct {
	slots      []slot
	free       []int
	bySlug     map[string]Handle
	bufferSize int
}

// NewRegistry creates an empty registry whose subscriptions buffer up to
// bufferSize realtime messages each.
func NewRegistry(bufferSize int) *Registry {
	return &Registry{
		bySlug:     make(map[string]Handle),
		bufferSize: bufferSize,
	}
}

// Register creates joining state for slug. If slug is already registered the
// existing handle is returned with created=false.
func (r *Registry) Register(slug string) (h Handle, created bool) {
	if h, ok := r.bySlug[slug]; ok {
		return h, false
	}
	sub := newSubscription(slug, r.bufferSize)
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].sub = sub
		h = Handle{index: idx, gen: r.slots[idx].gen}
	} else {
		r.slots = append(r.slots, slot{sub: sub})
		h = Handle{index: len(r.slots) - 1}
	}
	r.bySlug[slug] = h
	return h, true
}

// Lookup returns the handle registered for slug.
func (r *Registry) Lookup(slug string) (Handle, bool) {
	h, ok := r.bySlug[slug]
	return h, ok
}

// Get resolves a handle. It returns nil for stale handles.
func (r *Registry) Get(h Handle) *Subscription {
	if h.index < 0 || h.index >= len(r.slots) {
		return nil
	}
	s := r.slots[h.index]
	if s.gen != h.gen || s.sub == nil {
		return nil
	}
	return s.sub
}

// BySlug resolves a slug directly.
func (r *Registry) BySlug(slug string) *Subscription {
	h, ok := r.bySlug[slug]
	if !ok {
		return nil
	}
	return r.Get(h)
}

// Remove destroys the subscription behind h and reports whether it existed.
func (r *Registry) Remove(h Handle) bool {
	sub := r.Get(h)
	if sub == nil {
		return false
	}
	delete(r.bySlug, sub.slug)
	r.slots[h.index].sub = nil
	r.slots[h.index].gen++
	r.free = append(r.free, h.index)
	return true
}

// Slugs returns every registered slug, sorted.
func (r *Registry) Slugs() []string {
	out := make([]string, 0, len(r.bySlug))
	for slug := range r.bySlug {
		out = append(out, slug)
	}
	slices.Sort(out)
	return out
}

// Each calls fn for every live subscription in slug order.
func (r *Registry) Each(fn func(*Subscription)) {
	for _, slug := range r.Slugs() {
		fn(r.BySlug(slug))
	}
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int { return len(r.bySlug) }

// Reset removes every subscription.
func (r *Registry) Reset() {
	for _, h := range r.bySlug {
		r.Remove(h)
	}
}
