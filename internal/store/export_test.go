package store

// Slots counts map entries, including ones that have not committed yet.
func (s *Store) Slots() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
