// Package joinmgr implements the C5 Manager Facade and the C3
// Retention/Cleanup component: the public API that wires the Source
// Store, CSV Ingestor and Enricher together and holds the invariants
// from spec §3 (spec §4.5).
package joinmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/geoserve/joins/internal/csvingest"
	"github.com/geoserve/joins/internal/enrich"
	"github.com/geoserve/joins/internal/joinerrors"
	"github.com/geoserve/joins/internal/jointable"
	"github.com/geoserve/joins/internal/joinstore"
	"github.com/geoserve/joins/internal/provider"
)

// Manager is the Join Manager facade. A nil *Manager is the disabled
// sentinel FromConfig returns when the joins feature is not configured
// (spec §4.5, §6); callers must check for it before routing requests.
type Manager struct {
	store *joinstore.Store
	cfg   Config
	cache *tableCache
}

// SourceRefView is what List exposes per entry: spec §4.5 omits the
// collection id (the caller already knows it) and the id, which is
// the key of the map List returns.
type SourceRefView struct {
	TimeStamp  string
	JoinSource string
	Ref        string
}

// FromConfig validates cfg and constructs a Manager, or returns
// (nil, nil) -- the disabled sentinel -- when cfg.Enabled is false
// (spec §4.5: "returns no manager when the joins feature is not
// enabled"). It creates SourceDir if needed, verifies writability with
// a touch+unlink probe, then triggers RebuildIndex and an initial
// cleanup pass.
func FromConfig(cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.normalize()

	if err := os.MkdirAll(cfg.SourceDir, 0777); err != nil {
		return nil, joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("source dir %s: %w", cfg.SourceDir, err))
	}
	probe := filepath.Join(cfg.SourceDir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0666); err != nil {
		return nil, joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("source dir %s is not writable: %w", cfg.SourceDir, err))
	}
	_ = os.Remove(probe)

	store, err := joinstore.Open(cfg.SourceDir, cfg.LockTimeout, cfg.Log)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store: store,
		cfg:   cfg,
		cache: newTableCache(cfg.CacheSize),
	}

	ctx := context.Background()
	if err := store.RebuildIndex(ctx); err != nil {
		cfg.log(err, "initial RebuildIndex failed")
	}
	m.cleanupAll(ctx)

	return m, nil
}

// Close releases the Manager's side-index handle.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.store.Close()
}

// ProcessCSV validates and ingests an uploaded CSV against p, persists
// the resulting JoinTable, and triggers a retention sweep for
// collectionID (spec §4.5).
func (m *Manager) ProcessCSV(ctx context.Context, collectionID string, p provider.Provider, form map[string]string, file csvingest.UploadedFile) (jointable.JoinTable, error) {
	opts, err := csvingest.ParseOptionsFromForm(form)
	if err != nil {
		return jointable.JoinTable{}, err
	}

	table, err := csvingest.Ingest(collectionID, p, opts, file)
	if err != nil {
		return jointable.JoinTable{}, err
	}

	if _, err := m.store.Put(ctx, table); err != nil {
		return jointable.JoinTable{}, err
	}

	m.cleanupCollection(ctx, collectionID)

	return table, nil
}

// List returns every non-orphaned join source for collectionID,
// reaping any index entry whose backing file has vanished.
func (m *Manager) List(ctx context.Context, collectionID string) (map[string]SourceRefView, error) {
	refs, err := m.store.List(collectionID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]SourceRefView, len(refs))
	for _, ref := range refs {
		if _, err := os.Stat(ref.Ref); err != nil {
			if os.IsNotExist(err) {
				if delErr := m.store.RemoveIndexEntry(ctx, collectionID, ref.ID); delErr != nil {
					m.cfg.log(delErr, "could not reap orphaned entry %s/%s", collectionID, ref.ID)
				}
				m.cache.invalidate(collectionID, ref.ID)
				continue
			}
			m.cfg.log(err, "could not stat %s", ref.Ref)
			continue
		}
		out[ref.ID] = SourceRefView{TimeStamp: ref.TimeStamp, JoinSource: ref.JoinSource, Ref: ref.Ref}
	}
	return out, nil
}

// Read validates id and returns the decoded JoinTable for
// (collectionId, id), serving from the LRU cache when the file's mtime
// has not changed since it was cached.
func (m *Manager) Read(ctx context.Context, collectionID, id string) (jointable.JoinTable, error) {
	if _, err := uuid.Parse(id); err != nil {
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindInvalidId, "not a valid id: %q", id)
	}

	loc, err := m.store.Locate(ctx, collectionID, id)
	if err != nil {
		return jointable.JoinTable{}, err
	}
	switch loc.Status {
	case joinstore.StatusNotFound:
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindNotFound, "no join source %s/%s", collectionID, id)
	case joinstore.StatusMissing:
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindMissingFile, "join source file missing for %s/%s", collectionID, id)
	}

	var mtime int64
	if info, err := os.Stat(loc.Path); err == nil {
		mtime = info.ModTime().UnixNano()
	}
	key := cacheKey{collectionID: collectionID, id: id, modUnixNano: mtime}
	if table, ok := m.cache.get(key); ok {
		return table, nil
	}

	table, err := m.store.Read(ctx, loc.Path)
	if err != nil {
		return jointable.JoinTable{}, err
	}
	m.cache.set(key, table)
	return table, nil
}

// Remove deletes the join source at (collectionId, id). It returns
// false when there was no such entry, and true both on an ordinary
// delete and when the entry turned out to be an orphan whose file was
// already gone (spec §4.5 state machine).
func (m *Manager) Remove(ctx context.Context, collectionID, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, joinerrors.New(joinerrors.KindInvalidId, "not a valid id: %q", id)
	}

	loc, err := m.store.Locate(ctx, collectionID, id)
	if err != nil {
		return false, err
	}
	m.cache.invalidate(collectionID, id)

	switch loc.Status {
	case joinstore.StatusNotFound:
		return false, nil
	case joinstore.StatusMissing:
		// Locate already reaped the index entry.
		return true, nil
	}

	ok, err := m.store.Delete(ctx, collectionID, id, loc.Path, false)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// PerformJoin left-merges the JoinTable at (collectionId, id) into
// target, which must be *provider.Feature or *provider.FeatureCollection
// (spec §4.4).
func (m *Manager) PerformJoin(ctx context.Context, collectionID, id string, target any) error {
	table, err := m.Read(ctx, collectionID, id)
	if err != nil {
		return err
	}

	switch t := target.(type) {
	case *provider.FeatureCollection:
		enrich.FeatureCollection(t, &table)
	case *provider.Feature:
		enrich.Feature(t, &table)
	default:
		return fmt.Errorf("joinmgr: PerformJoin target must be *provider.Feature or *provider.FeatureCollection, got %T", target)
	}
	return nil
}
