package hook

import "sync"

// Session holds per-region match state and hook counts. Counts survive
// stop/start and only go down through ResetCounts.
type Session struct {
	mu      sync.Mutex
	regions []Region
	counts  map[string]int
	matched map[string]bool
}

// NewSession creates a session with all counts at zero and no region matched.
func NewSession(regions []Region) *Session {
	return &Session{
		regions: regions,
		counts:  make(map[string]int, len(regions)),
		matched: make(map[string]bool, len(regions)),
	}
}

// Regions returns the tracked regions in configured order.
func (s *Session) Regions() []Region { return s.regions }

// Observe records this cycle's match result for id. The count goes up only
// on a not-matching to matching edge.
func (s *Session) Observe(id string, matched bool) (count int, incremented bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if matched && !s.matched[id] {
		s.counts[id]++
		incremented = true
	}
	s.matched[id] = matched
	return s.counts[id], incremented
}

// Count returns the hook count of id.
func (s *Session) Count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[id]
}

// Matched returns the last match result of id.
func (s *Session) Matched(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matched[id]
}

// Counts returns a copy of all counts.
func (s *Session) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.regions))
	for _, r := range s.regions {
		out[r.ID] = s.counts[r.ID]
	}
	return out
}

// ResetMatches clears match state so the first match of a new run counts.
func (s *Session) ResetMatches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.matched)
}

// ResetCounts zeroes every count.
func (s *Session) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.counts)
}
