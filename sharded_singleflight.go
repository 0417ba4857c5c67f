/*
File: sharded_singleflight.go
Version: 2.0.0
Description: A sharded wrapper around singleflight.Group that collapses concurrent analyses
             of the same normalized URL. Waiters can give up on their own context without
             cancelling the shared call.
*/

package main

import (
	"context"
	"hash/maphash"

	"golang.org/x/sync/singleflight"
)

const shardedFlightCount = 512

type ShardedGroup struct {
	shards []*singleflight.Group
	seed   maphash.Seed
}

func NewShardedGroup() *ShardedGroup {
	sg := &ShardedGroup{
		shards: make([]*singleflight.Group, shardedFlightCount),
		seed:   maphash.MakeSeed(),
	}
	for i := 0; i < shardedFlightCount; i++ {
		sg.shards[i] = &singleflight.Group{}
	}
	return sg
}

func (g *ShardedGroup) getShard(key string) *singleflight.Group {
	return g.shards[maphash.String(g.seed, key)&(shardedFlightCount-1)]
}

// Do runs fn once per key among concurrent callers. shared reports whether the result
// was produced for another caller too.
func (g *ShardedGroup) Do(ctx context.Context, key string, fn func() (*Assessment, error)) (*Assessment, bool, error) {
	ch := g.getShard(key).DoChan(key, func() (interface{}, error) {
		return fn()
	})

	select {
	case res := <-ch:
		a, _ := res.Val.(*Assessment)
		return a, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
