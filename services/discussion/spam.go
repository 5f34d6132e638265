package discussion

import (
	"context"
	"sync/atomic"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
)

// SpamGate counts spam flags pointing at a comment. The threshold can be
// changed while the gate is in use.
type SpamGate struct {
	indexer   Indexer
	query     Query
	threshold atomic.Int64
}

func NewSpamGate(indexer Indexer, query Query, threshold int) *SpamGate {
	g := &SpamGate{
		indexer: indexer,
		query:   query,
	}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold sets the number of flags a comment may carry before it is
// spam. Negative values are treated as 0.
func (g *SpamGate) SetThreshold(n int) {
	if n < 0 {
		n = 0
	}
	g.threshold.Store(int64(n))
	spamThreshold.Set(float64(n))
}

func (g *SpamGate) Threshold() int {
	return int(g.threshold.Load())
}

// Count returns the number of locked spam flags pointing at targetId. The
// payload of a flag is never decoded.
func (g *SpamGate) Count(ctx context.Context, targetId string) (int, error) {
	txIds, err := g.Flags(ctx, targetId)
	return len(txIds), err
}

// Flags returns the transaction ids of the locked spam flags pointing at
// targetId, one entry per counted flag.
func (g *SpamGate) Flags(ctx context.Context, targetId string) ([]string, error) {
	var txIds []string
	err := scan(ctx, g.indexer, g.query.typed(forum.SpamFlagTypeNFT, targetId), g.query.PageSize, func(b erg.Box) {
		if forum.Admit(b, forum.LockedOnly) {
			txIds = append(txIds, b.TransactionId)
		}
	})
	return txIds, err
}

func (g *SpamGate) IsSpam(ctx context.Context, targetId string) (bool, error) {
	count, err := g.Count(ctx, targetId)
	if err != nil {
		return false, err
	}
	return count > g.Threshold(), nil
}
