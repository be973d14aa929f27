// Package keylock serializes work on a duplicate key across goroutines
// (ShardedLocker) or across processes (RedisLocker).
package keylock

import (
	"context"
	"sync"

	"golden/internal/request/models"
	dErrors "golden/pkg/domain-errors"
)

// numShards spreads keys over independent mutexes. Distinct keys may share a
// shard; that only costs contention, never correctness.
const numShards = 128

// ShardedLocker is an in-process KeyLocker. Each shard is a one-slot channel
// so a waiting caller can give up when its context ends.
type ShardedLocker struct {
	shards [numShards]chan struct{}
	once   sync.Once
}

func NewShardedLocker() *ShardedLocker {
	l := &ShardedLocker{}
	l.init()
	return l
}

func (l *ShardedLocker) init() {
	l.once.Do(func() {
		for i := range l.shards {
			l.shards[i] = make(chan struct{}, 1)
		}
	})
}

// Lock blocks until key's shard is free or ctx ends.
func (l *ShardedLocker) Lock(ctx context.Context, key models.DuplicateKey) (func(), error) {
	l.init()
	shard := l.shards[shardFor(key.String())]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "waiting for duplicate key lock")
	}
	var released sync.Once
	return func() {
		released.Do(func() { <-shard })
	}, nil
}

func shardFor(s string) uint32 {
	return hashString(s) % numShards
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
