package model

import "sort"

// Entry is one accepted identity with its provenance.
type Entry struct {
	Phone  Phone
	Source string
	Seq    int
}

// AcceptedSet holds every accepted identity. It only grows and is owned by
// a single collector, so it does no locking.
type AcceptedSet struct {
	entries map[Phone]Entry
	next    int
}

func NewAcceptedSet() *AcceptedSet {
	return &AcceptedSet{entries: make(map[Phone]Entry)}
}

// Add inserts p unless it is already present. It reports whether p was new.
func (s *AcceptedSet) Add(p Phone, source string) bool {
	if _, ok := s.entries[p]; ok {
		return false
	}
	s.next++
	s.entries[p] = Entry{Phone: p, Source: source, Seq: s.next}
	return true
}

func (s *AcceptedSet) Contains(p Phone) bool {
	_, ok := s.entries[p]
	return ok
}

func (s *AcceptedSet) Get(p Phone) (Entry, bool) {
	e, ok := s.entries[p]
	return e, ok
}

func (s *AcceptedSet) Len() int { return len(s.entries) }

// Sorted returns all entries ordered by identity string so output does not
// depend on crawl order.
func (s *AcceptedSet) Sorted() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out
}

// Merge adds every entry of other in its sequence order, keeping the first
// seen source for identities already present. It returns the number added.
func (s *AcceptedSet) Merge(other *AcceptedSet) int {
	entries := make([]Entry, 0, other.Len())
	for _, e := range other.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	added := 0
	for _, e := range entries {
		if s.Add(e.Phone, e.Source) {
			added++
		}
	}
	return added
}
