package discussion

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
)

// ProfileLoader materializes reputation proofs from the indexer.
type ProfileLoader struct {
	indexer     Indexer
	resolver    Resolver
	query       Query
	types       forum.Types
	totalSupply int64
	fanout      int
	network     string
	logger      *zap.Logger
}

func NewProfileLoader(indexer Indexer, resolver Resolver, query Query, types forum.Types, totalSupply int64, fanout int) *ProfileLoader {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	if totalSupply <= 0 {
		totalSupply = forum.ProfileTotalSupply
	}
	return &ProfileLoader{
		indexer:     indexer,
		resolver:    resolver,
		query:       query,
		types:       types,
		totalSupply: totalSupply,
		fanout:      fanout,
		network:     forum.NetworkErgoMainnet,
		logger:      zap.L().With(zap.String("component", "profiles")),
	}
}

func byHeightDesc(boxes []forum.RPBox) {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].CreationHeight > boxes[j].CreationHeight
	})
}

// FetchProfile returns the profile owned by address. The profile token is
// the one held by the highest unlocked profile box whose R5 points at its
// own token. All unspent boxes of that token are attached, main box first.
func (l *ProfileLoader) FetchProfile(ctx context.Context, address string) (*forum.ReputationProof, error) {
	tree, err := l.resolver.AddressToErgoTree(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ergo tree of %s - %w", address, err)
	}

	var candidates []forum.RPBox
	query := l.query.registers(forum.RegType, forum.ProfileTypeNFT, forum.RegOwner, tree)
	err = scan(ctx, l.indexer, query, l.query.PageSize, func(b erg.Box) {
		if len(b.Assets) == 0 {
			return
		}
		rp, status := forum.DecodeRPBox(b, b.Assets[0].TokenId, l.types, forum.UnlockedOnly)
		decodedBoxesTotal.WithLabelValues("profile", status.String()).Inc()
		if !status.Accepted() || rp.ObjectPointer != rp.TokenId {
			return
		}
		candidates = append(candidates, rp)
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, forum.ErrProfileNotFound
	}

	byHeightDesc(candidates)
	main := candidates[0]

	boxes := []forum.RPBox{main}
	err = scan(ctx, l.indexer, l.query.holding(main.TokenId), l.query.PageSize, func(b erg.Box) {
		if b.BoxId == main.BoxId {
			return
		}
		rp, status := forum.DecodeRPBox(b, main.TokenId, l.types, forum.AnyLock)
		if status.Accepted() {
			boxes = append(boxes, rp)
		}
	})
	if err != nil {
		l.logger.Warn("failed to list profile boxes, using main box only",
			zap.String("token_id", main.TokenId),
			zap.Error(err))
	}
	byHeightDesc(boxes[1:])

	proof := &forum.ReputationProof{
		TokenId:         main.TokenId,
		Type:            l.types.Lookup(forum.ProfileTypeNFT),
		TotalAmount:     l.emission(ctx, main.TokenId, l.totalSupply),
		OwnerAddress:    address,
		OwnerSerialized: tree,
		CanBeSpent:      !main.IsLocked,
		CurrentBoxes:    boxes,
		NumberOfBoxes:   len(boxes),
		Network:         l.network,
	}
	if main.Content != nil {
		proof.Data = main.Content.JSON
		if proof.Data == nil {
			proof.Data = main.Content.Text
		}
	}

	return proof, nil
}

func (l *ProfileLoader) emission(ctx context.Context, tokenId string, fallback int64) int64 {
	token, err := l.indexer.TokenInfo(ctx, tokenId)
	if err != nil {
		l.logger.Warn("failed to get token emission", zap.String("token_id", tokenId), zap.Error(err))
		return fallback
	}
	return int64(token.EmissionAmount)
}

// typeOf resolves a type NFT, asking the indexer for the name of unknown ones.
func (l *ProfileLoader) typeOf(ctx context.Context, typeId string) forum.TypeNFT {
	if typ, ok := l.types[typeId]; ok {
		return typ
	}
	typ := l.types.Lookup(typeId)
	token, err := l.indexer.TokenInfo(ctx, typeId)
	if err != nil {
		l.logger.Debug("unknown type nft", zap.String("type_id", typeId), zap.Error(err))
		return typ
	}
	typ.TypeName = token.Name
	typ.Description = token.Description
	typ.BoxId = token.BoxId
	return typ
}

// FetchProofs builds one proof per token found in boxes of the given types.
// Proofs that fail to load are left out and reported together, the rest are
// returned.
func (l *ProfileLoader) FetchProofs(ctx context.Context, typeIds []string) (forum.Proofs, error) {
	var (
		mu     sync.Mutex
		result *multierror.Error
		proofs = forum.Proofs{}
	)

	for _, typeId := range typeIds {
		typ := l.typeOf(ctx, typeId)

		grouped := make(map[string][]forum.RPBox)
		var order []string
		query := l.query.registers(forum.RegType, typeId)
		err := scan(ctx, l.indexer, query, l.query.PageSize, func(b erg.Box) {
			if len(b.Assets) == 0 {
				return
			}
			tokenId := b.Assets[0].TokenId
			rp, status := forum.DecodeRPBox(b, tokenId, l.types, forum.AnyLock)
			decodedBoxesTotal.WithLabelValues("proof", status.String()).Inc()
			if !status.Accepted() {
				return
			}
			rp.Type = typ
			if _, ok := grouped[tokenId]; !ok {
				order = append(order, tokenId)
			}
			grouped[tokenId] = append(grouped[tokenId], rp)
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("type %s - %w", typeId, err))
			continue
		}

		var g errgroup.Group
		g.SetLimit(l.fanout)
		for _, tokenId := range order {
			tokenId := tokenId
			boxes := grouped[tokenId]
			g.Go(func() error {
				token, err := l.indexer.TokenInfo(ctx, tokenId)
				if err != nil {
					mu.Lock()
					result = multierror.Append(result, fmt.Errorf("token %s - %w", tokenId, err))
					mu.Unlock()
					return nil
				}

				byHeightDesc(boxes)
				proof := &forum.ReputationProof{
					TokenId:       tokenId,
					Type:          typ,
					TotalAmount:   int64(token.EmissionAmount),
					OwnerAddress:  l.owner(ctx, boxes[0]),
					CanBeSpent:    !boxes[0].IsLocked,
					CurrentBoxes:  boxes,
					NumberOfBoxes: len(boxes),
					Network:       l.network,
				}

				mu.Lock()
				proofs[tokenId] = proof
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	}

	return proofs, result.ErrorOrNil()
}

// owner returns the address of the box, derived from its R7 ergoTree when
// the indexer left it out.
func (l *ProfileLoader) owner(ctx context.Context, b forum.RPBox) string {
	if b.Box.Address != "" || b.OwnerErgoTree == "" {
		return b.Box.Address
	}
	address, err := l.resolver.ErgoTreeToAddress(ctx, b.OwnerErgoTree)
	if err != nil {
		l.logger.Debug("failed to resolve owner address",
			zap.String("box_id", b.BoxId),
			zap.Error(err))
		return ""
	}
	return address
}
