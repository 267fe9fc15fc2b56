// Package dedup remembers listings that have already been reported so a
// listing is notified at most once per process run.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/mhorvath/vintedwatch/internal/model"
)

// Tracker is a process-lifetime fingerprint set safe for concurrent use.
// It never evicts: for a single operator watching a handful of searches
// the growth is bounded in practice, and restarting clears it. Known
// limitation, accepted.
type Tracker struct {
	seen sync.Map
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Fingerprint digests the identity-relevant listing fields. The price is
// part of the identity, so a repriced listing gets a new fingerprint and
// is reported again.
func Fingerprint(l model.Listing) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d-%s-%s", l.ID, l.Title, l.Price.Amount)))
	return hex.EncodeToString(sum[:])
}

// MarkIfNew records the listing's fingerprint and reports whether it was
// absent before the call.
func (t *Tracker) MarkIfNew(l model.Listing) bool {
	_, loaded := t.seen.LoadOrStore(Fingerprint(l), struct{}{})
	return !loaded
}
