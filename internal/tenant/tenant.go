// Package tenant manages the per-tenant episode stores behind the
// gateway. Tenants are created lazily on first store. With a data
// directory configured each tenant gets its own disk-backed store
// under a sanitized subdirectory; otherwise tenants live in memory
// for the life of the process.
package tenant

import (
	"strings"

	"github.com/flemzord/agentmem/pkg/episode"
	"github.com/flemzord/agentmem/pkg/memdb"
)

// Backend is the store surface shared by in-memory and disk-backed
// tenants. SaveFile and Checkpoint are no-ops where they do not apply:
// a disk-backed store is already persistent, and an in-memory store
// has no log to checkpoint.
type Backend interface {
	Store(ep episode.Episode) (string, error)
	StoreBatch(eps []episode.Episode) ([]string, error)
	Query(vec []float32, opts memdb.QueryOptions) ([]episode.Episode, error)
	Get(id string) (episode.Episode, error)
	Len() int
	Dim() int
	Kind() memdb.Kind
	PruneOlderThan(cutoffMs int64) (int, error)
	PruneKeepNewest(n int) (int, error)
	PruneKeepHighestReward(n int) (int, error)
	SaveFile(path string) error
	Checkpoint() error
	Close() error
}

// Memory wraps an in-memory store as a Backend.
func Memory(db *memdb.DB) Backend { return memoryBackend{db} }

// Disk wraps a disk-backed store as a Backend.
func Disk(ds *memdb.DiskStore) Backend { return diskBackend{ds} }

type memoryBackend struct{ *memdb.DB }

// Checkpoint is a no-op: in-memory stores have no log to checkpoint.
func (memoryBackend) Checkpoint() error { return nil }

// Close is a no-op: in-memory stores hold no OS resources.
func (memoryBackend) Close() error { return nil }

type diskBackend struct{ *memdb.DiskStore }

// SaveFile is a no-op: disk-backed stores persist every write as it
// happens, so there is no snapshot to take.
func (diskBackend) SaveFile(string) error { return nil }

var (
	_ Backend = memoryBackend{}
	_ Backend = diskBackend{}
)

// SanitizePath maps a tenant id to a safe path component. Characters
// outside [A-Za-z0-9_-] become '_' so a hostile tenant id cannot
// escape the data directory.
func SanitizePath(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
