package joinmgr

import (
	"context"
	"os"
	"time"

	"github.com/google/btree"

	"github.com/geoserve/joins/internal/jointable"
)

// retentionItem orders candidates for the sweep ascending by
// timestamp, tying by id (spec §4.3's tightened tie-break, Design
// Notes §9).
type retentionItem struct {
	ref jointable.SourceRef
	at  time.Time
}

func (a retentionItem) Less(than btree.Item) bool {
	b := than.(retentionItem)
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.ref.ID < b.ref.ID
}

// cleanupAll runs the retention sweep across every collection known to
// the index; called once at Manager construction.
func (m *Manager) cleanupAll(ctx context.Context) {
	collections, err := m.store.Collections()
	if err != nil {
		m.cfg.log(err, "could not list collections for initial cleanup")
		return
	}
	for _, c := range collections {
		m.cleanupCollection(ctx, c)
	}
}

// cleanupCollection enforces MaxDays and MaxFiles for collectionID and
// reaps any orphaned index entries, per spec §4.3:
//  1. gather and order candidates ascending by timestamp (tie: id)
//  2. if MaxDays > 0, drop everything older than MaxDays
//  3. if MaxFiles > 0 and more than MaxFiles remain, keep the newest
//     MaxFiles and drop the rest
//  4. drop any entry whose file is already gone
//
// All deletions use silent mode: an I/O failure is logged and the
// entry is left for the next sweep to retry (spec §4.1, §4.3).
func (m *Manager) cleanupCollection(ctx context.Context, collectionID string) {
	refs, err := m.store.List(collectionID)
	if err != nil {
		m.cfg.log(err, "could not list %s for cleanup", collectionID)
		return
	}
	if len(refs) == 0 {
		return
	}

	tree := btree.New(32)
	for _, ref := range refs {
		item := retentionItem{ref: ref, at: ref.CreatedAt()}
		tree.ReplaceOrInsert(item)
	}

	now := time.Now().UTC()

	if m.cfg.MaxDays > 0 {
		cutoff := now.AddDate(0, 0, -m.cfg.MaxDays)
		var expired []retentionItem
		tree.Ascend(func(it btree.Item) bool {
			ri := it.(retentionItem)
			if ri.at.Before(cutoff) {
				expired = append(expired, ri)
			}
			return true
		})
		for _, ri := range expired {
			m.deleteSilently(ctx, ri)
			tree.Delete(ri)
		}
	}

	if m.cfg.MaxFiles > 0 && tree.Len() > m.cfg.MaxFiles {
		var ordered []retentionItem
		tree.Ascend(func(it btree.Item) bool {
			ordered = append(ordered, it.(retentionItem))
			return true
		})
		// Keep the newest MaxFiles (the tail of the ascending list);
		// delete the rest.
		cut := len(ordered) - m.cfg.MaxFiles
		for _, ri := range ordered[:cut] {
			m.deleteSilently(ctx, ri)
		}
	}

	// Orphan reap: any ref whose file has already vanished is dropped
	// from the index even if it survived the age/count sweep above.
	for _, ref := range refs {
		if _, err := os.Stat(ref.Ref); err != nil {
			if os.IsNotExist(err) {
				if delErr := m.store.RemoveIndexEntry(ctx, collectionID, ref.ID); delErr != nil {
					m.cfg.log(delErr, "could not reap orphan %s/%s", collectionID, ref.ID)
				}
				m.cache.invalidate(collectionID, ref.ID)
			}
		}
	}
}

func (m *Manager) deleteSilently(ctx context.Context, ri retentionItem) {
	ref := ri.ref
	ok, err := m.store.Delete(ctx, ref.CollectionID, ref.ID, ref.Ref, true)
	if err != nil {
		m.cfg.log(err, "retention delete failed for %s/%s", ref.CollectionID, ref.ID)
		return
	}
	if ok {
		m.cache.invalidate(ref.CollectionID, ref.ID)
	}
}
