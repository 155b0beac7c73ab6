package bucketing

import (
	"fmt"
	"testing"

	"chat-auth-service/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestGetBucket_StableAndInRange(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{UserBuckets: 16})

	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("account-%d", i)
		b := bm.GetBucket(id)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
		assert.Equal(t, b, bm.GetBucket(id))
		seen[b] = true
	}
	assert.Len(t, seen, 16)
}

func TestNewBucketingManager_NonPositiveBuckets(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{UserBuckets: 0})
	assert.Equal(t, 1, bm.GetUserBuckets())
	assert.Equal(t, 0, bm.GetBucket("anything"))
}
