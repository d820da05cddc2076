package kafka

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardIsStablePerKey(t *testing.T) {
	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("order-%d", i))
		first := shard(key, 8)
		for j := 0; j < 10; j++ {
			assert.Equal(t, first, shard(key, 8), "key %s must always map to the same queue", key)
		}
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 8)
	}
}

func TestShardSpreadsKeys(t *testing.T) {
	hit := map[int]bool{}
	for i := 0; i < 1000; i++ {
		hit[shard([]byte(fmt.Sprintf("order-%d", i)), 8)] = true
	}
	assert.Len(t, hit, 8, "1000 distinct keys should reach every queue")
}

func TestShardDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0, shard(nil, 8))
	assert.Equal(t, 0, shard([]byte{}, 8))
	assert.Equal(t, 0, shard([]byte("order-1"), 1))
	assert.Equal(t, 0, shard([]byte("order-1"), 0))
}
