package route

import (
	"slices"

	"tvroute/internal/command"
	applog "tvroute/internal/log"
)

// PathSet is a duplicate-free set of decode sessions.
type PathSet struct {
	ids map[command.SessionID]struct{}
}

// NewPathSet returns an empty set.
func NewPathSet() *PathSet {
	return &PathSet{ids: make(map[command.SessionID]struct{})}
}

// Add inserts id and reports whether it was new.
func (s *PathSet) Add(id command.SessionID) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (s *PathSet) Remove(id command.SessionID) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

func (s *PathSet) Contains(id command.SessionID) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *PathSet) Len() int { return len(s.ids) }

func (s *PathSet) Clear() { clear(s.ids) }

// IDs returns the members in ascending order.
func (s *PathSet) IDs() []command.SessionID {
	out := make([]command.SessionID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// PathTracker keeps the path set consistent with the patch: paths exist only
// while a patch does, and the last close releases it.
type PathTracker struct {
	set     *PathSet
	mgr     *PatchManager
	metrics *Metrics
	emit    func(EventType, any)
	// released runs after the tracker released the patch.
	released func()
}

// NewPathTracker ties a path set to mgr. released may be nil.
func NewPathTracker(mgr *PatchManager, metrics *Metrics, emit func(EventType, any), released func()) *PathTracker {
	if emit == nil {
		emit = func(EventType, any) {}
	}
	if released == nil {
		released = func() {}
	}
	return &PathTracker{set: NewPathSet(), mgr: mgr, metrics: metrics, emit: emit, released: released}
}

// Open records id on the live patch. Without a patch the set is cleared: a
// new pairing starts from scratch.
func (t *PathTracker) Open(id command.SessionID) {
	if t.mgr.State() != PatchActive {
		if t.set.Len() > 0 {
			applog.Warnf("PathTracker: open %d without a patch, dropping %v", id, t.set.IDs())
		}
		t.set.Clear()
		t.metrics.paths(0)
		return
	}
	if t.set.Add(id) {
		t.metrics.paths(t.set.Len())
		t.emit(EventPathOpened, t.pathData(id))
	}
}

// Close forgets id. The last close releases the patch.
func (t *PathTracker) Close(id command.SessionID) {
	if !t.set.Remove(id) {
		applog.Debugf("PathTracker: close of unknown path %d", id)
		return
	}
	t.metrics.paths(t.set.Len())
	t.emit(EventPathClosed, t.pathData(id))
	if t.set.Len() > 0 {
		return
	}
	if err := t.mgr.Release("last path closed"); err != nil {
		applog.Warnf("PathTracker: release after last close failed: %v", err)
	}
	t.released()
}

// ForceReleaseAll drops every path and releases the patch regardless of
// membership.
func (t *PathTracker) ForceReleaseAll(reason string) {
	t.Clear()
	if err := t.mgr.Release(reason); err != nil {
		applog.Warnf("PathTracker: forced release failed: %v", err)
	}
	t.released()
}

// Clear empties the set without touching the patch.
func (t *PathTracker) Clear() {
	t.set.Clear()
	t.metrics.paths(0)
}

// Paths returns the open paths in ascending order.
func (t *PathTracker) Paths() []command.SessionID { return t.set.IDs() }

// Len returns the number of open paths.
func (t *PathTracker) Len() int { return t.set.Len() }

func (t *PathTracker) pathData(id command.SessionID) PathData {
	ids := t.set.IDs()
	d := PathData{Session: int32(id), Paths: make([]int32, len(ids))}
	for i, v := range ids {
		d.Paths[i] = int32(v)
	}
	return d
}
