package joinmgr

import (
	"os"
	"time"

	"github.com/geoserve/joins/internal/joinstore"
)

// Config is the ManagerConfig entity from spec §3, read from whatever
// config system the host uses (here: server.joins.* per spec §6).
type Config struct {
	// Enabled mirrors the presence of the "server.joins" key: if
	// false, FromConfig returns the disabled sentinel.
	Enabled bool

	SourceDir string
	MaxDays   int
	MaxFiles  int

	// LockTimeout bounds advisory-lock acquisition (spec §5/§9);
	// defaults to joinstore.DefaultLockTimeout.
	LockTimeout time.Duration

	// Log is the injectable logging callback, adapted from
	// gcsemu.Options.Log.
	Log joinstore.LogFunc

	// CacheSize bounds the in-memory decoded-JoinTable LRU (spec
	// Design Notes §9); 0 uses a sane default.
	CacheSize int
}

// normalize applies the defaults and coercions FromConfig is
// responsible for: negative caps become 0 with a warning, SourceDir
// falls back to the OS temp dir.
func (c *Config) normalize() {
	if c.SourceDir == "" {
		c.SourceDir = os.TempDir()
	}
	if c.MaxDays < 0 {
		c.log(nil, "server.joins.max_days was negative (%d); treating as 0 (no cap)", c.MaxDays)
		c.MaxDays = 0
	}
	if c.MaxFiles < 0 {
		c.log(nil, "server.joins.max_files was negative (%d); treating as 0 (no cap)", c.MaxFiles)
		c.MaxFiles = 0
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = joinstore.DefaultLockTimeout
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
}

func (c *Config) log(err error, format string, args ...interface{}) {
	if c.Log != nil {
		c.Log(err, format, args...)
	}
}
