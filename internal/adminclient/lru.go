package adminclient

import "container/list"

// executedSet is the bounded, LRU-evicted "already executed" command id
// cache (spec.md §4.9: "default 1024 entries, LRU-evicted"). No pack
// example carries a general-purpose LRU library, and the need here is a
// plain bounded set, so this is a small bespoke list+map implementation.
type executedSet struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newExecutedSet(capacity int) *executedSet {
	if capacity <= 0 {
		capacity = 1024
	}
	return &executedSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Contains reports whether id was previously marked done.
func (s *executedSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add marks id as done, evicting the least-recently-added entry if the
// set is at capacity.
func (s *executedSet) Add(id string) {
	if elem, ok := s.index[id]; ok {
		s.order.MoveToFront(elem)
		return
	}
	elem := s.order.PushFront(id)
	s.index[id] = elem

	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
}
