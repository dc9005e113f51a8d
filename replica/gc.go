package replica

import (
	"github.com/Polqt/yrepl/item"
	"github.com/Polqt/yrepl/store"
)

// GCSweep replaces deleted (non-gc) items with GC tombstones wherever GC
// is currently enabled (spec.md §4.7: disabled while any UndoManager is
// attached). It is driven by session.Hub.Run's background maintenance
// loop, never by a single transaction commit,
// since an item may still be needed by a not-yet-arrived concurrent op.
func (r *Replica) GCSweep() int {
	r.mu.RLock()
	enabled := r.gcEnabled
	r.mu.RUnlock()
	if !enabled {
		return 0
	}

	collected := 0
	for _, client := range r.opStore.ClientIDs() {
		entries := r.opStore.AllForClient(client)
		for _, e := range entries {
			it, ok := e.(*item.Item)
			if !ok || !it.Deleted {
				continue
			}
			if !r.deleteStore.IsDeleted(it.ID()) {
				continue
			}
			run, ok := r.deleteStore.RunCovering(it.ID())
			if ok && run.GC {
				continue // already collected
			}
			gcEntry := item.CollapseToGC(it)
			r.opStore.Put(gcEntry)
			r.deleteStore.Mark(it.ID(), it.Len(), true)
			collected++
		}
	}
	return collected
}

// DeleteRunsSnapshot returns the full delete set as sync wire data.
func (r *Replica) DeleteRunsSnapshot() map[uint32][]store.DeleteRun {
	out := make(map[uint32][]store.DeleteRun)
	for _, c := range r.deleteStore.Clients() {
		out[c] = r.deleteStore.RunsForClient(c)
	}
	return out
}
