package bucketing

import (
	"hash"
	"sync"

	"chat-auth-service/internal/config"

	"github.com/spaolacci/murmur3"
)

// BucketingManager spreads record ids over a fixed number of partitions.
// The bucket for an id never changes, so it can always be recomputed.
type BucketingManager struct {
	userBuckets int
	hasherPool  sync.Pool
}

func NewBucketingManager(cfg config.BucketingConfig) *BucketingManager {
	buckets := cfg.UserBuckets
	if buckets <= 0 {
		buckets = 1
	}

	bm := &BucketingManager{userBuckets: buckets}

	// Pool hashers to avoid an allocation per lookup
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetBucket returns the partition for id, in [0, buckets).
func (bm *BucketingManager) GetBucket(id string) int {
	return int(bm.getHash(id) % uint64(bm.userBuckets))
}

func (bm *BucketingManager) GetUserBuckets() int {
	return bm.userBuckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
