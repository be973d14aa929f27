//go:build integration

package keylock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"golden/internal/request/models"
	"golden/internal/request/store/keylock"
	dErrors "golden/pkg/domain-errors"
	"golden/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *keylock.RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.locker = keylock.NewRedisLocker(s.redis.Client,
		keylock.WithTTL(2*time.Second),
		keylock.WithRetryWait(5*time.Millisecond),
	)
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestMutualExclusion() {
	key := models.NewDuplicateKey("DE-1", "company")
	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := s.locker.Lock(ctx, key)
			s.Require().NoError(err)
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	s.False(overlap.Load())
}

func (s *RedisLockerSuite) TestHeldLockTimesOut() {
	key := models.NewDuplicateKey("DE-2", "company")
	unlock, err := s.locker.Lock(context.Background(), key)
	s.Require().NoError(err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.locker.Lock(ctx, key)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *RedisLockerSuite) TestExpiredHolderCannotReleaseSuccessor() {
	short := keylock.NewRedisLocker(s.redis.Client, keylock.WithTTL(50*time.Millisecond))
	key := models.NewDuplicateKey("DE-3", "company")

	staleUnlock, err := short.Lock(context.Background(), key)
	s.Require().NoError(err)
	time.Sleep(100 * time.Millisecond)

	unlock, err := s.locker.Lock(context.Background(), key)
	s.Require().NoError(err)
	defer unlock()

	staleUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.locker.Lock(ctx, key)
	s.Error(err, "successor's lock must survive the stale release")
}
