package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// HeartbeatRepository remembers when each session was last seen.
//
// Entries never expire on their own: expiry is decided by the reaper against an explicit
// timeout, and records are dropped together with their session.
type HeartbeatRepository struct {
	cache *cache.Cache
}

func NewHeartbeatRepository() *HeartbeatRepository {
	// No default expiration, no janitor goroutine.
	return &HeartbeatRepository{cache: cache.New(cache.NoExpiration, 0)}
}

// Touch records now as the last-seen time of sessionID.
func (r *HeartbeatRepository) Touch(sessionID string, now time.Time) {
	r.cache.Set(sessionID, now, cache.NoExpiration)
}

func (r *HeartbeatRepository) LastSeen(sessionID string) (time.Time, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(time.Time), true
	}
	return time.Time{}, false
}

// IsExpired reports whether more than timeout has passed since the last heartbeat.
// A session without a record is never considered expired; the session store seeds a
// record at creation, so a missing one only means the session is already gone.
func (r *HeartbeatRepository) IsExpired(sessionID string, now time.Time, timeout time.Duration) bool {
	last, ok := r.LastSeen(sessionID)
	if !ok {
		return false
	}
	return now.Sub(last) > timeout
}

func (r *HeartbeatRepository) Remove(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *HeartbeatRepository) Count() int {
	return r.cache.ItemCount()
}
