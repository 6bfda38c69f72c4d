package ledger

import (
	"context"
	"hash/fnv"
	"slices"

	"golang.org/x/sync/semaphore"
)

// lockTable serialises work per account without a global lock. Keys hash
// onto a fixed set of stripes; callers always take stripes in ascending
// index order, which is the global lock order that rules out deadlock.
type lockTable struct {
	stripes []*semaphore.Weighted
}

func newLockTable(n int) *lockTable {
	if n <= 0 {
		n = 1
	}
	stripes := make([]*semaphore.Weighted, n)
	for i := range stripes {
		stripes[i] = semaphore.NewWeighted(1)
	}
	return &lockTable{stripes: stripes}
}

func (l *lockTable) stripe(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.stripes)))
}

// acquire locks every key's stripe or none of them. It gives up when ctx
// is done and returns ctx's error.
func (l *lockTable) acquire(ctx context.Context, keys ...string) (func(), error) {
	order := make([]int, 0, len(keys))
	for _, key := range keys {
		order = append(order, l.stripe(key))
	}
	slices.Sort(order)
	order = slices.Compact(order)

	held := make([]int, 0, len(order))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.stripes[held[i]].Release(1)
		}
	}

	for _, idx := range order {
		if err := l.stripes[idx].Acquire(ctx, 1); err != nil {
			release()
			return nil, err
		}
		held = append(held, idx)
	}

	return release, nil
}
