package events

const defaultRecentCapacity = 512

// recentSet remembers the most recent names in insertion order.
type recentSet struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newRecentSet(capacity int) *recentSet {
	if capacity <= 0 {
		capacity = defaultRecentCapacity
	}
	return &recentSet{capacity: capacity, members: make(map[string]struct{}, capacity)}
}

// add records name and reports whether it was absent.
func (s *recentSet) add(name string) bool {
	if _, ok := s.members[name]; ok {
		return false
	}
	if len(s.order) == s.capacity {
		delete(s.members, s.order[0])
		s.order = s.order[1:]
	}
	s.order = append(s.order, name)
	s.members[name] = struct{}{}
	return true
}

func (s *recentSet) remove(name string) {
	if _, ok := s.members[name]; !ok {
		return
	}
	delete(s.members, name)
	for idx, n := range s.order {
		if n == name {
			s.order = append(s.order[:idx], s.order[idx+1:]...)
			break
		}
	}
}
