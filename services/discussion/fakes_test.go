package discussion

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
	"github.com/reputation-systems/forum-application/state"
)

type fakeIndexer struct {
	mu         sync.Mutex
	boxes      []erg.Box
	timestamps map[string]int64
	tokens     map[string]erg.TokenInfo
	failing    map[string]bool
	searches   int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		timestamps: make(map[string]int64),
		tokens:     make(map[string]erg.TokenInfo),
		failing:    make(map[string]bool),
	}
}

func (f *fakeIndexer) add(boxes ...erg.Box) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boxes = append(f.boxes, boxes...)
}

func matches(b erg.Box, q erg.SearchQuery) bool {
	for reg, want := range q.Registers {
		if b.Rendered(reg) != want {
			return false
		}
	}
	for _, tokenId := range q.Assets {
		found := false
		for _, a := range b.Assets {
			if a.TokenId == tokenId {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *fakeIndexer) Search(q erg.SearchQuery, pageSize int) erg.Pager {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++

	if f.failing[q.Registers[forum.RegPointer]] {
		return &slicePager{err: erg.ErrFetchFailed}
	}

	var found []erg.Box
	for _, b := range f.boxes {
		if matches(b, q) {
			found = append(found, b)
		}
	}
	if pageSize <= 0 {
		pageSize = erg.DefaultPageSize
	}
	return &slicePager{boxes: found, size: pageSize}
}

func (f *fakeIndexer) BlockTimestamp(ctx context.Context, blockID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timestamps[blockID]
}

func (f *fakeIndexer) TokenInfo(ctx context.Context, tokenID string) (erg.TokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenID]
	if !ok {
		return erg.TokenInfo{}, errors.New("token not found")
	}
	return token, nil
}

// gatedIndexer holds every search for pointer until the test lets it through.
type gatedIndexer struct {
	*fakeIndexer
	pointer string
	entered chan struct{}
	release chan struct{}
}

func newGatedIndexer(pointer string) *gatedIndexer {
	return &gatedIndexer{
		fakeIndexer: newFakeIndexer(),
		pointer:     pointer,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedIndexer) Search(q erg.SearchQuery, pageSize int) erg.Pager {
	if q.Registers[forum.RegPointer] == g.pointer {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.fakeIndexer.Search(q, pageSize)
}

type slicePager struct {
	boxes []erg.Box
	size  int
	batch []erg.Box
	err   error
}

func (p *slicePager) Next(ctx context.Context) bool {
	if p.err != nil || len(p.boxes) == 0 {
		return false
	}
	n := p.size
	if n > len(p.boxes) {
		n = len(p.boxes)
	}
	p.batch, p.boxes = p.boxes[:n], p.boxes[n:]
	return true
}

func (p *slicePager) Batch() []erg.Box { return p.batch }
func (p *slicePager) Err() error       { return p.err }

type fakeResolver map[string]string

func (r fakeResolver) AddressToErgoTree(ctx context.Context, address string) (string, error) {
	tree, ok := r[address]
	if !ok {
		return "", errors.New("unknown address")
	}
	return tree, nil
}

func (r fakeResolver) ErgoTreeToAddress(ctx context.Context, ergoTree string) (string, error) {
	for address, tree := range r {
		if tree == ergoTree {
			return address, nil
		}
	}
	return "", errors.New("unknown ergo tree")
}

type fakeWallet string

func (w fakeWallet) ChangeAddress(ctx context.Context) (string, error) {
	return string(w), nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	txId     string
	err      error
	opinions []forum.Opinion
	profiles int
	content  string
}

func (s *fakeSubmitter) CreateProfile(ctx context.Context, totalSupply int64, typeId, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles++
	s.content = content
	return s.txId, s.err
}

func (s *fakeSubmitter) CreateOpinion(ctx context.Context, op forum.Opinion) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opinions = append(s.opinions, op)
	return s.txId, s.err
}

type boxSpec struct {
	id, typeId, pointer, token string
	locked, positive           bool
	text, owner                string
	amount                     int64
	height                     int
}

func makeBox(s boxSpec) erg.Box {
	amount := s.amount
	if amount == 0 {
		amount = 1
	}
	regs := map[string]erg.Register{
		forum.RegType:         {RenderedValue: s.typeId},
		forum.RegPointer:      {RenderedValue: s.pointer},
		forum.RegLocked:       {RenderedValue: boolString(s.locked)},
		forum.RegPolarization: {RenderedValue: boolString(s.positive)},
	}
	if s.text != "" {
		regs[forum.RegContent] = erg.Register{RenderedValue: hex.EncodeToString([]byte(s.text))}
	}
	if s.owner != "" {
		regs[forum.RegOwner] = erg.Register{RenderedValue: s.owner}
	}
	return erg.Box{
		BoxId:               s.id,
		TransactionId:       "tx-" + s.id,
		BlockId:             "block-" + s.id,
		CreationHeight:      s.height,
		Assets:              []erg.Asset{{TokenId: s.token, Amount: erg.Amount(amount)}},
		AdditionalRegisters: regs,
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func comment(id, pointer string, top, positive bool) erg.Box {
	typeId := forum.CommentTypeNFT
	if top {
		typeId = forum.DiscussionTypeNFT
	}
	return makeBox(boxSpec{id: id, typeId: typeId, pointer: pointer, token: "author", locked: true, positive: positive, text: "text of " + id})
}

func flag(id, target string) erg.Box {
	return makeBox(boxSpec{id: id, typeId: forum.SpamFlagTypeNFT, pointer: target, token: "flagger", locked: true})
}

func newTestService(t *testing.T, indexer Indexer, wallet forum.Wallet, submitter forum.Submitter) *Service {
	t.Helper()

	svc, err := NewService(indexer, fakeResolver{"9fAlice": "0008cdaa"}, wallet, submitter,
		state.NewForumState("disc", nil), state.NewPendingState(context.Background(), nil),
		Config{
			Discussion:   "disc",
			PageSize:     2,
			ComputeDepth: forum.DefaultComputeDepth,
			Fanout:       4,
		}, &sync.WaitGroup{})
	require.NoError(t, err)

	return svc
}
