package discussion

import (
	"context"

	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
)

// Indexer is the read side of the ledger, implemented by erg.Explorer.
type Indexer interface {
	Search(query erg.SearchQuery, pageSize int) erg.Pager
	BlockTimestamp(ctx context.Context, blockID string) int64
	TokenInfo(ctx context.Context, tokenID string) (erg.TokenInfo, error)
}

// Resolver maps addresses to and from the ergoTree stored in profile R7
// registers.
type Resolver interface {
	AddressToErgoTree(ctx context.Context, address string) (string, error)
	ErgoTreeToAddress(ctx context.Context, ergoTree string) (string, error)
}

// Query holds the search parameters shared by every lookup.
type Query struct {
	ErgoTreeTemplateHash string
	PageSize             int
}

// renderFilter renders a hex id the way register filters are matched.
// Values that are not hex are sent as they are.
func renderFilter(value string) string {
	rendered, err := erg.RenderCollByte(value)
	if err != nil {
		zap.L().Debug("register filter is not hex", zap.String("value", value), zap.Error(err))
		return value
	}
	return rendered
}

// registers builds a search body from register slot / value pairs.
func (q Query) registers(kv ...string) erg.SearchQuery {
	regs := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		regs[kv[i]] = renderFilter(kv[i+1])
	}
	return erg.SearchQuery{
		ErgoTreeTemplateHash: q.ErgoTreeTemplateHash,
		Registers:            regs,
		Assets:               []string{},
	}
}

// typed searches boxes of a type NFT pointing at pointer.
func (q Query) typed(typeId, pointer string) erg.SearchQuery {
	return q.registers(forum.RegType, typeId, forum.RegPointer, pointer)
}

// holding searches every box carrying tokenId.
func (q Query) holding(tokenId string) erg.SearchQuery {
	return erg.SearchQuery{
		ErgoTreeTemplateHash: q.ErgoTreeTemplateHash,
		Registers:            map[string]string{},
		Assets:               []string{tokenId},
	}
}

// scan feeds every box of a search to fn.
func scan(ctx context.Context, indexer Indexer, query erg.SearchQuery, pageSize int, fn func(erg.Box)) error {
	pager := indexer.Search(query, pageSize)
	for pager.Next(ctx) {
		for _, b := range pager.Batch() {
			fn(b)
		}
	}
	return pager.Err()
}
