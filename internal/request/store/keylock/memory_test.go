package keylock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golden/internal/request/models"
	dErrors "golden/pkg/domain-errors"
)

func TestShardedLocker_SerializesSameKey(t *testing.T) {
	l := NewShardedLocker()
	key := models.NewDuplicateKey("DE-1", "company")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), key)
			require.NoError(t, err)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestShardedLocker_ContextEndsWait(t *testing.T) {
	l := NewShardedLocker()
	key := models.NewDuplicateKey("DE-2", "company")

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestShardedLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewShardedLocker()
	key := models.NewDuplicateKey("DE-3", "company")

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock()
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := l.Lock(ctx, key)
	require.NoError(t, err)
	again()
}

func TestShardFor_Stable(t *testing.T) {
	key := models.NewDuplicateKey("DE-4", "company").String()
	assert.Equal(t, shardFor(key), shardFor(key))
	assert.Less(t, shardFor(key), uint32(numShards))
}
