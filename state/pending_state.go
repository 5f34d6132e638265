package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v9"

	"github.com/reputation-systems/forum-application/forum"
)

const (
	pendingRedisKey = "forum:pending"
)

type PendingKind string

const (
	PendingComment PendingKind = "comment"
	PendingReply   PendingKind = "reply"
	PendingSpam    PendingKind = "spam"
)

// Pending is an optimistic change waiting for its transaction to show up in
// the indexer. Target is the parent for replies and the flagged comment for
// spam flags.
type Pending struct {
	Kind    PendingKind   `json:"kind"`
	Target  string        `json:"target,omitempty"`
	Comment forum.Comment `json:"comment"`
}

func (p Pending) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// PendingState remembers optimistic changes by transaction id. With a nil
// redis client it is memory only.
type PendingState struct {
	Pending map[string]Pending

	ctx context.Context
	rdb *redis.Client
	mu  sync.Mutex
}

func NewPendingState(ctx context.Context, rdb *redis.Client) *PendingState {
	return &PendingState{
		Pending: make(map[string]Pending),

		ctx: ctx,
		rdb: rdb,
	}
}

func (ps *PendingState) DBSync() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.rdb == nil {
		return nil
	}

	entries, err := ps.rdb.HGetAll(ps.ctx, pendingRedisKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get pending comments from redis db - %s", err.Error())
	}

	for txId, raw := range entries {
		var p Pending
		if err = json.Unmarshal([]byte(raw), &p); err != nil {
			return fmt.Errorf("failed to unmarshal pending comment %s - %s", txId, err.Error())
		}
		ps.Pending[txId] = p
	}

	return nil
}

func (ps *PendingState) Add(txId string, p Pending) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.Pending[txId] = p

	if ps.rdb == nil {
		return nil
	}

	err := ps.rdb.HSet(ps.ctx, pendingRedisKey, txId, p).Err()
	if err != nil {
		return fmt.Errorf("failed to add pending comment to redis db key - %s - %s", pendingRedisKey, err.Error())
	}

	return nil
}

func (ps *PendingState) Remove(txId string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.Pending, txId)

	if ps.rdb == nil {
		return nil
	}

	err := ps.rdb.HDel(ps.ctx, pendingRedisKey, txId).Err()
	if err != nil {
		return fmt.Errorf("failed to remove pending comment from redis db key - %s - %s", pendingRedisKey, err.Error())
	}

	return nil
}

// Snapshot returns a copy of the pending changes.
func (ps *PendingState) Snapshot() map[string]Pending {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	out := make(map[string]Pending, len(ps.Pending))
	for k, v := range ps.Pending {
		out[k] = v
	}
	return out
}
