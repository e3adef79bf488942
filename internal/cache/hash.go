package cache

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// minifyRevision seeds content keys. Bump it whenever the minifier output
// changes so stale entries are never served.
const minifyRevision = 1

// ContentKey creates the cache key for a source file's content
func ContentKey(content []byte) string {
	sum := xxh3.Hash128Seed(content, minifyRevision).Bytes()
	return hex.EncodeToString(sum[:])
}

// RecordID derives a short stable identifier for a build record
func RecordID(digest string, ts time.Time) string {
	d := xxhash.New()
	_, _ = d.WriteString(digest)
	_, _ = d.WriteString(ts.UTC().Format(time.RFC3339Nano))

	return fmt.Sprintf("%016x", d.Sum64())
}

// recordKey orders records chronologically inside the bucket
func recordKey(r Record) []byte {
	return []byte(fmt.Sprintf("%020d-%s", r.Timestamp.UnixNano(), r.ID))
}
