package lib

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NewChangeToken generates an opaque token identifying one epoch of a
// folder's content. Tokens are only ever compared for equality.
func NewChangeToken() string {
	return uuid.NewString()
}

var lastUIDValidity atomic.Int64

// NewUIDValidity derives a folder UIDVALIDITY epoch from the current
// wall-clock time, strictly increasing across calls: two bumps within
// the same millisecond must still produce different epochs. The mount
// point id is added on top by the folder view so that the same folder
// mounted twice never presents colliding values.
func NewUIDValidity() int64 {
	for {
		now := time.Now().UnixMilli()
		last := lastUIDValidity.Load()
		if now <= last {
			now = last + 1
		}
		if lastUIDValidity.CompareAndSwap(last, now) {
			return now
		}
	}
}
