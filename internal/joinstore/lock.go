package joinstore

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/geoserve/joins/internal/joinerrors"
)

// DefaultLockTimeout is the bound spec §5/§9 puts on advisory-lock
// acquisition: a crashed holder must not stall the Manager forever.
const DefaultLockTimeout = 30 * time.Second

// acquire locks the sibling lock file for path (path+".lock" for a
// table file, or the single index-wide lock file), bounded by timeout.
// The returned release func is safe to call from any defer, including
// on the error path of the caller.
func acquire(ctx context.Context, lockPath string, timeout time.Duration) (release func(), err error) {
	fl := flock.New(lockPath)

	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := fl.TryLockContext(lctx, 50*time.Millisecond)
	if err != nil {
		return nil, joinerrors.Wrap(joinerrors.KindLockTimeout, err)
	}
	if !ok {
		return nil, joinerrors.New(joinerrors.KindLockTimeout, "timed out acquiring lock %s after %s", lockPath, timeout)
	}

	return func() {
		_ = fl.Unlock()
	}, nil
}

func lockFilename(path string) string {
	return path + ".lock"
}
