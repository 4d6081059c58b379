package detect

// nameSet is an insertion-ordered set of identifiers.
type nameSet struct {
	order []string
	index map[string]struct{}
}

func (s *nameSet) add(name string) {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[name]; ok {
		return
	}
	s.index[name] = struct{}{}
	s.order = append(s.order, name)
}

func (s *nameSet) has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *nameSet) names() []string { return s.order }

func (s *nameSet) clear() {
	s.order = nil
	s.index = nil
}

// window is the tracking state for one function body. In flat mode a nested
// definition reuses its enclosing function's window, so the window does not
// know which function it belongs to; exit is told.
type window struct {
	defined nameSet
	used    nameSet
}

func (w *window) reset() {
	w.defined.clear()
	w.used.clear()
}

// unused returns defined names never read, in first-assignment order.
func (w *window) unused() []string {
	var out []string
	for _, name := range w.defined.names() {
		if !w.used.has(name) {
			out = append(out, name)
		}
	}
	return out
}
