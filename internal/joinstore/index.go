package joinstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/geoserve/joins/internal/jointable"
)

// index is the side index: an embedded key/value document store
// (boltdb), one bucket per collection, keyed by table id, storing
// JSON-encoded SourceRef documents. It is the fast lookup; the JSON
// file on disk remains the source of truth (spec §3 invariant 1).
//
// Every mutating operation additionally takes the index-wide advisory
// lock (sourceDir/index.lock) around its bolt transaction, per spec
// §4.1's "file lock first, index lock second" ordering: callers that
// also hold a per-file lock must acquire it before calling into index.
type index struct {
	db       *bolt.DB
	lockPath string
	timeout  time.Duration
}

func openIndex(boltPath, lockPath string, timeout time.Duration) (*index, error) {
	db, err := bolt.Open(boltPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("could not open side index %s: %w", boltPath, err)
	}
	return &index{db: db, lockPath: lockPath, timeout: timeout}, nil
}

func (ix *index) close() error {
	return ix.db.Close()
}

// upsert writes or replaces the SourceRef for ref.CollectionID/ref.ID.
func (ix *index) upsert(ctx context.Context, ref jointable.SourceRef) error {
	release, err := acquire(ctx, ix.lockPath, ix.timeout)
	if err != nil {
		return err
	}
	defer release()

	buf, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("could not encode index entry: %w", err)
	}

	return ix.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ref.CollectionID))
		if err != nil {
			return err
		}
		return b.Put([]byte(ref.ID), buf)
	})
}

// get returns the SourceRef for (collectionId, id), or (zero, false).
func (ix *index) get(collectionID, id string) (jointable.SourceRef, bool, error) {
	var ref jointable.SourceRef
	found := false

	err := ix.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collectionID))
		if b == nil {
			return nil
		}
		buf := b.Get([]byte(id))
		if buf == nil {
			return nil
		}
		if err := json.Unmarshal(buf, &ref); err != nil {
			return fmt.Errorf("could not decode index entry %s/%s: %w", collectionID, id, err)
		}
		found = true
		return nil
	})
	return ref, found, err
}

// list returns every SourceRef currently indexed for collectionID.
func (ix *index) list(collectionID string) ([]jointable.SourceRef, error) {
	var refs []jointable.SourceRef

	err := ix.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collectionID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, buf []byte) error {
			var ref jointable.SourceRef
			if err := json.Unmarshal(buf, &ref); err != nil {
				return fmt.Errorf("could not decode index entry in %s: %w", collectionID, err)
			}
			refs = append(refs, ref)
			return nil
		})
	})
	return refs, err
}

// delete removes the (collectionId, id) entry. It is not an error if
// the entry is already absent.
func (ix *index) delete(ctx context.Context, collectionID, id string) error {
	release, err := acquire(ctx, ix.lockPath, ix.timeout)
	if err != nil {
		return err
	}
	defer release()

	return ix.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collectionID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// collections returns every collection id with at least one bucket,
// used by the retention sweep to iterate every known collection.
func (ix *index) collections() ([]string, error) {
	var names []string
	err := ix.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}
