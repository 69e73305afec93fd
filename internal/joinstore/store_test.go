package joinstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"github.com/geoserve/joins/internal/jointable"
)

func testLog(t *testing.T) LogFunc {
	return func(err error, format string, args ...interface{}) {
		if err != nil {
			format = "ERROR: " + format + ": %s"
			args = append(args, err)
		}
		t.Logf(format, args...)
	}
}

func newTestTable(t *testing.T, collectionID string) jointable.JoinTable {
	id, err := uuid.NewRandom()
	assert.NilError(t, err)
	return jointable.JoinTable{
		ID:            id.String(),
		TimeStamp:     time.Now().UTC().Format(jointable.TimeFormat),
		CollectionID:  collectionID,
		CollectionKey: "id",
		JoinSource:    "demo.csv",
		JoinKey:       "id",
		JoinFields:    []string{"name"},
		NumberOfRows:  1,
		Data:          map[string][]string{"1": {"Alice"}},
	}
}

func TestPutLocateReadDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, time.Second, testLog(t))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	table := newTestTable(t, "parcels")

	ref, err := store.Put(ctx, table)
	assert.NilError(t, err)
	assert.Equal(t, ref.ID, table.ID)
	assert.Equal(t, ref.CollectionID, "parcels")

	res, err := store.Locate(ctx, "parcels", table.ID)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, StatusOK)
	assert.Equal(t, res.Path, ref.Ref)

	got, err := store.Read(ctx, res.Path)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, table)

	ok, err := store.Delete(ctx, "parcels", table.ID, res.Path, false)
	assert.NilError(t, err)
	assert.Equal(t, ok, true)

	res, err = store.Locate(ctx, "parcels", table.ID)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, StatusNotFound)
}

func TestLocateMissingReapsIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, time.Second, testLog(t))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	table := newTestTable(t, "parcels")
	ref, err := store.Put(ctx, table)
	assert.NilError(t, err)

	// Simulate an out-of-band file loss: the index still has the
	// entry, but the backing file is gone.
	assert.NilError(t, os.Remove(ref.Ref))

	res, err := store.Locate(ctx, "parcels", table.ID)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, StatusMissing)

	// The orphan is reaped: a second Locate reports NotFound, not
	// Missing again.
	res, err = store.Locate(ctx, "parcels", table.ID)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, StatusNotFound)
}

func TestRebuildIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, time.Second, testLog(t))
	assert.NilError(t, err)

	ctx := context.Background()
	table := newTestTable(t, "parcels")
	_, err = store.Put(ctx, table)
	assert.NilError(t, err)
	assert.NilError(t, store.Close())

	// Reopen against a fresh index file, simulating a lost/corrupt
	// index that must be rebuilt from the JSON files on disk.
	assert.NilError(t, os.Remove(filepath.Join(dir, indexFileName)))

	store2, err := Open(dir, time.Second, testLog(t))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = store2.Close() })

	assert.NilError(t, store2.RebuildIndex(ctx))

	res, err := store2.Locate(ctx, "parcels", table.ID)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, StatusOK)
}

func TestRebuildIndexSkipsJunkFiles(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "not-a-table.json"), []byte("{}"), 0666))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "table-not-a-uuid.json"), []byte("{}"), 0666))

	store, err := Open(dir, time.Second, testLog(t))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.NilError(t, store.RebuildIndex(context.Background()))

	collections, err := store.Collections()
	assert.NilError(t, err)
	assert.Equal(t, len(collections), 0)
}

func TestClearStaleLocksOnOpen(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "table-leftover.json.lock")
	assert.NilError(t, os.WriteFile(stale, []byte{}, 0666))

	store, err := Open(dir, time.Second, testLog(t))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = os.Stat(stale)
	assert.Assert(t, os.IsNotExist(err))
}

func TestListAndCollections(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, time.Second, testLog(t))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	a := newTestTable(t, "parcels")
	b := newTestTable(t, "parcels")
	c := newTestTable(t, "buildings")
	for _, tbl := range []jointable.JoinTable{a, b, c} {
		_, err := store.Put(ctx, tbl)
		assert.NilError(t, err)
	}

	refs, err := store.List("parcels")
	assert.NilError(t, err)
	assert.Equal(t, len(refs), 2)

	collections, err := store.Collections()
	assert.NilError(t, err)
	assert.Equal(t, len(collections), 2)
}
