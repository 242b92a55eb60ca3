// Package dedup remembers which identities have already been announced in a
// session
package dedup

// Deduplicator is an insertion-ordered set of names. Entries never expire;
// Reset starts over. Not safe for concurrent use.
type Deduplicator struct {
	seen  map[string]struct{}
	order []string
}

// New returns an empty deduplicator
func New() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// NotifyOnce reports whether name is new to this session and records it
func (d *Deduplicator) NotifyOnce(name string) bool {
	if _, ok := d.seen[name]; ok {
		return false
	}
	d.seen[name] = struct{}{}
	d.order = append(d.order, name)
	return true
}

// Contains reports whether name has been recorded
func (d *Deduplicator) Contains(name string) bool {
	_, ok := d.seen[name]
	return ok
}

// Seen returns the recorded names in first-seen order
func (d *Deduplicator) Seen() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Len returns the number of recorded names
func (d *Deduplicator) Len() int {
	return len(d.order)
}

// Reset discards every recorded name
func (d *Deduplicator) Reset() {
	d.seen = make(map[string]struct{})
	d.order = nil
}
