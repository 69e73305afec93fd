// Package joinstore owns the on-disk layout for join sources: one JSON
// file per table, a boltdb side index, and the advisory locks that
// keep both in sync under concurrent access. It is the C1 component of
// the Join Manager (spec §4.1).
package joinstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geoserve/joins/internal/joinerrors"
	"github.com/geoserve/joins/internal/jointable"
)

const (
	indexFileName = "index.bolt"
	indexLockName = "index.lock"
)

// tableNamePattern matches the canonical persisted-file name from spec
// §3 invariant 2: table-<uuid-v4>.json, case-insensitive.
var tableNamePattern = regexp.MustCompile(`(?i)^table-([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\.json$`)

// LogFunc is the injectable logging callback every Join Manager
// component uses, adapted from gcsemu.Options.Log.
type LogFunc func(err error, format string, args ...interface{})

func noopLog(error, string, ...interface{}) {}

// LocateStatus is the tagged outcome of Locate (spec Design Notes:
// "tagged variants ... replace the source's mix of exception types").
type LocateStatus int

const (
	StatusOK LocateStatus = iota
	StatusNotFound
	StatusMissing
)

// LocateResult is what Locate returns: a status plus, when OK, the
// absolute path to the table's JSON file.
type LocateResult struct {
	Status LocateStatus
	Path   string
}

// Store is the Source Store: sourceDir layout owner, side index, and
// lock discipline described in spec §4.1.
type Store struct {
	dir     string
	ix      *index
	timeout time.Duration
	log     LogFunc
}

// Open constructs a Store rooted at dir, clearing any stale sibling
// lock files left behind by a crashed process (Design Notes §9) before
// opening the side index.
func Open(dir string, timeout time.Duration, log LogFunc) (*Store, error) {
	if log == nil {
		log = noopLog
	}
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("could not create source dir %s: %w", dir, err)
	}

	clearStaleLocks(dir, log)

	ix, err := openIndex(filepath.Join(dir, indexFileName), filepath.Join(dir, indexLockName), timeout)
	if err != nil {
		return nil, err
	}

	return &Store{dir: dir, ix: ix, timeout: timeout, log: log}, nil
}

func (s *Store) Close() error {
	return s.ix.close()
}

func clearStaleLocks(dir string, log LogFunc) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".lock") {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
				log(err, "could not clear stale lock file %s", e.Name())
			}
		}
	}
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("table-%s.json", strings.ToLower(id)))
}

// Put writes table to sourceDir/table-<id>.json and upserts its index
// entry, under the combined file-then-index lock (spec §4.1).
func (s *Store) Put(ctx context.Context, table jointable.JoinTable) (jointable.SourceRef, error) {
	path := s.pathFor(table.ID)

	release, err := acquire(ctx, lockFilename(path), s.timeout)
	if err != nil {
		return jointable.SourceRef{}, err
	}
	defer release()

	buf, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return jointable.SourceRef{}, joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("could not encode join table: %w", err))
	}
	if err := os.WriteFile(path, buf, 0666); err != nil {
		return jointable.SourceRef{}, joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("could not write %s: %w", path, err))
	}

	ref := jointable.SourceRef{
		ID:           table.ID,
		CollectionID: table.CollectionID,
		TimeStamp:    table.TimeStamp,
		JoinSource:   table.JoinSource,
		Ref:          path,
	}
	if err := s.ix.upsert(ctx, ref); err != nil {
		return jointable.SourceRef{}, joinerrors.Wrap(joinerrors.KindIO, err)
	}

	return ref, nil
}

// Locate consults the index for (collectionId, id). If the entry
// exists but its file has vanished, the entry is reaped before
// returning StatusMissing (spec §4.1).
func (s *Store) Locate(ctx context.Context, collectionID, id string) (LocateResult, error) {
	ref, found, err := s.ix.get(collectionID, id)
	if err != nil {
		return LocateResult{}, joinerrors.Wrap(joinerrors.KindIO, err)
	}
	if !found {
		return LocateResult{Status: StatusNotFound}, nil
	}

	if _, err := os.Stat(ref.Ref); err != nil {
		if os.IsNotExist(err) {
			if delErr := s.ix.delete(ctx, collectionID, id); delErr != nil {
				s.log(delErr, "could not reap orphaned index entry %s/%s", collectionID, id)
			}
			return LocateResult{Status: StatusMissing}, nil
		}
		return LocateResult{}, joinerrors.Wrap(joinerrors.KindIO, err)
	}

	return LocateResult{Status: StatusOK, Path: ref.Ref}, nil
}

// Read decodes the JoinTable at path under its per-file lock.
func (s *Store) Read(ctx context.Context, path string) (jointable.JoinTable, error) {
	release, err := acquire(ctx, lockFilename(path), s.timeout)
	if err != nil {
		return jointable.JoinTable{}, err
	}
	defer release()

	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return jointable.JoinTable{}, joinerrors.New(joinerrors.KindMissingFile, "join table file missing: %s", path)
		}
		return jointable.JoinTable{}, joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("could not read %s: %w", path, err))
	}

	var table jointable.JoinTable
	if err := json.Unmarshal(buf, &table); err != nil {
		return jointable.JoinTable{}, joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("could not decode %s: %w", path, err))
	}
	return table, nil
}

// Delete unlinks the file at path (no error if already absent) then
// removes its index entry. When silent is true, an I/O failure on the
// file removal is logged and reported via the bool return instead of
// an error, and the index entry is retained so a retention sweep can
// retry later (spec §4.1 failure semantics).
func (s *Store) Delete(ctx context.Context, collectionID, id, path string, silent bool) (bool, error) {
	release, err := acquire(ctx, lockFilename(path), s.timeout)
	if err != nil {
		if silent {
			s.log(err, "could not acquire lock to delete %s", path)
			return false, nil
		}
		return false, err
	}
	defer release()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		if silent {
			s.log(err, "could not delete %s; will retry next sweep", path)
			return false, nil
		}
		return false, joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("could not delete %s: %w", path, err))
	}

	if err := s.ix.delete(ctx, collectionID, id); err != nil {
		if silent {
			s.log(err, "could not remove index entry %s/%s", collectionID, id)
			return false, nil
		}
		return false, joinerrors.Wrap(joinerrors.KindIO, err)
	}

	return true, nil
}

// List returns every indexed SourceRef for collectionID, without
// touching the filesystem. Callers that need to reap orphans (the
// Manager facade) should pair this with a Locate or os.Stat per ref.
func (s *Store) List(collectionID string) ([]jointable.SourceRef, error) {
	refs, err := s.ix.list(collectionID)
	if err != nil {
		return nil, joinerrors.Wrap(joinerrors.KindIO, err)
	}
	return refs, nil
}

// RemoveIndexEntry drops the (collectionId, id) entry without
// touching the backing file; used to reap orphans once the caller has
// already established the file is gone.
func (s *Store) RemoveIndexEntry(ctx context.Context, collectionID, id string) error {
	return s.ix.delete(ctx, collectionID, id)
}

// Collections lists every collection id with at least one index entry.
func (s *Store) Collections() ([]string, error) {
	return s.ix.collections()
}

// RebuildIndex scans sourceDir for files matching the canonical
// table-<uuid>.json pattern, decodes each under its per-file lock, and
// upserts it into the index. Files that fail to decode are logged and
// skipped (spec §4.1).
func (s *Store) RebuildIndex(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return joinerrors.Wrap(joinerrors.KindIO, fmt.Errorf("could not scan source dir %s: %w", s.dir, err))
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := tableNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if _, err := uuid.Parse(m[1]); err != nil {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		table, err := s.Read(ctx, path)
		if err != nil {
			s.log(err, "could not decode candidate join table %s; skipping", path)
			continue
		}

		ref := jointable.SourceRef{
			ID:           table.ID,
			CollectionID: table.CollectionID,
			TimeStamp:    table.TimeStamp,
			JoinSource:   table.JoinSource,
			Ref:          path,
		}
		if err := s.ix.upsert(ctx, ref); err != nil {
			s.log(err, "could not index %s", path)
		}
	}

	return nil
}
