package state

import "strings"

// Group names one logical slice of the store for change notification.
type Group uint8

const (
	GroupConnection Group = 1 << iota
	GroupSeed
	GroupRoster
	GroupChat
	GroupTelemetry

	GroupAll = GroupConnection | GroupSeed | GroupRoster | GroupChat | GroupTelemetry
)

func (g Group) Has(o Group) bool { return g&o != 0 }

func (g Group) String() string {
	if g == 0 {
		return "none"
	}
	var parts []string
	for _, n := range []struct {
		g    Group
		name string
	}{
		{GroupConnection, "connection"},
		{GroupSeed, "seed"},
		{GroupRoster, "roster"},
		{GroupChat, "chat"},
		{GroupTelemetry, "telemetry"},
	} {
		if g.Has(n.g) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Change is delivered to watchers after a commit. View is the complete state
// at that commit, never a partial update.
type Change struct {
	Groups Group
	View   View
}

type watcher struct {
	mask Group
	fn   func(Change)
}

// Watch calls fn after every commit that touches a group in mask. Calls are
// made on the committing goroutine, outside the state lock, so fn may read
// the store. The returned func stops delivery.
func (s *Store) Watch(mask Group, fn func(Change)) (cancel func()) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = watcher{mask: mask, fn: fn}
	s.watchMu.Unlock()
	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.watchMu.Lock()
	ws := make([]watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		if w.mask&c.Groups != 0 {
			ws = append(ws, w)
		}
	}
	s.watchMu.Unlock()
	for _, w := range ws {
		w.fn(c)
	}
}
