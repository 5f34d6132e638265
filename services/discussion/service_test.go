package discussion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
	"github.com/reputation-systems/forum-application/state"
)

const aliceTree = "0008cdaa"

func profileBox(id, token string, height int, locked bool, amount int64) erg.Box {
	return makeBox(boxSpec{
		id: id, typeId: forum.ProfileTypeNFT, pointer: token, token: token,
		locked: locked, owner: aliceTree, amount: amount, height: height,
		text: `{"name":"alice"}`,
	})
}

func TestLoadThreads(t *testing.T) {
	idx := newFakeIndexer()
	idx.add(comment("t1", "disc", true, true), comment("t2", "disc", true, true))
	idx.timestamps["block-t1"] = 100
	idx.timestamps["block-t2"] = 200

	svc := newTestService(t, idx, nil, &fakeSubmitter{})
	require.NoError(t, svc.LoadThreads(context.Background()))

	threads := svc.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, "t1", threads[0].Id, "top level threads are published oldest first")
	assert.False(t, svc.State().Loading.Get())
	assert.Equal(t, "", svc.State().Error.Get())

	score, ok := svc.CommentScore("t1")
	assert.True(t, ok)
	assert.Equal(t, 0, score)
	_, ok = svc.CommentScore("missing")
	assert.False(t, ok)
}

func TestLoadThreadsFailure(t *testing.T) {
	idx := newFakeIndexer()
	idx.failing["disc"] = true

	svc := newTestService(t, idx, nil, &fakeSubmitter{})
	err := svc.LoadThreads(context.Background())
	assert.ErrorIs(t, err, erg.ErrFetchFailed)
	assert.NotEmpty(t, svc.State().Error.Get())
	assert.False(t, svc.State().Loading.Get())
}

func TestSelectDiscussion(t *testing.T) {
	idx := newFakeIndexer()
	idx.add(comment("t1", "disc", true, true), comment("o1", "other", true, true))

	svc := newTestService(t, idx, nil, &fakeSubmitter{})
	require.NoError(t, svc.SelectDiscussion(context.Background(), "other"))

	assert.Equal(t, "other", svc.State().Discussion.Get())
	require.Len(t, svc.Threads(), 1)
	assert.Equal(t, "o1", svc.Threads()[0].Id)
}

func queuedLoads(svc *Service) int {
	svc.loadingMu.Lock()
	defer svc.loadingMu.Unlock()
	return svc.loading
}

func TestSelectDiscussionWhileLoading(t *testing.T) {
	idx := newGatedIndexer("disc")
	idx.add(comment("t1", "disc", true, true), comment("o1", "other", true, true))
	svc := newTestService(t, idx, nil, &fakeSubmitter{})
	ctx := context.Background()

	polled := make(chan error, 1)
	go func() { polled <- svc.LoadThreads(ctx) }()
	<-idx.entered

	selected := make(chan error, 1)
	go func() { selected <- svc.SelectDiscussion(ctx, "other") }()
	require.Eventually(t, func() bool { return queuedLoads(svc) == 2 }, 5*time.Second, time.Millisecond)

	idx.release <- struct{}{}
	require.NoError(t, <-polled)
	require.NoError(t, <-selected)

	assert.Equal(t, "other", svc.State().Discussion.Get())
	threads := svc.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "o1", threads[0].Id)
	assert.Equal(t, "other", threads[0].Discussion)
	assert.False(t, svc.State().Loading.Get())
}

func TestLoadThreadsDiscardsDeselectedDiscussion(t *testing.T) {
	idx := newGatedIndexer("disc")
	idx.add(comment("t1", "disc", true, true))
	svc := newTestService(t, idx, nil, &fakeSubmitter{})

	loaded := make(chan error, 1)
	go func() { loaded <- svc.LoadThreads(context.Background()) }()
	<-idx.entered

	svc.State().Discussion.Set("other")
	idx.release <- struct{}{}
	require.NoError(t, <-loaded)

	assert.Empty(t, svc.Threads(), "threads of disc are never published under other")
	assert.False(t, svc.State().Loading.Get())
}

func TestLoadingStaysSetUntilLastLoad(t *testing.T) {
	idx := newGatedIndexer("disc")
	idx.add(comment("t1", "disc", true, true))
	svc := newTestService(t, idx, nil, &fakeSubmitter{})
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- svc.LoadThreads(ctx) }()
	<-idx.entered

	second := make(chan error, 1)
	go func() { second <- svc.LoadThreads(ctx) }()
	require.Eventually(t, func() bool { return queuedLoads(svc) == 2 }, 5*time.Second, time.Millisecond)

	idx.release <- struct{}{}
	require.NoError(t, <-first)

	<-idx.entered
	assert.True(t, svc.State().Loading.Get(), "the second load is still running")

	idx.release <- struct{}{}
	require.NoError(t, <-second)
	assert.False(t, svc.State().Loading.Get())
	require.Len(t, svc.Threads(), 1)
}

func TestFetchProfile(t *testing.T) {
	idx := newFakeIndexer()
	pointsElsewhere := profileBox("p4", "tokB", 90, false, 10)
	pointsElsewhere.AdditionalRegisters[forum.RegPointer] = erg.Register{RenderedValue: "tokC"}
	idx.add(
		profileBox("p1", "tokA", 10, false, 50),
		profileBox("p2", "tokB", 20, false, 99999990),
		profileBox("p3", "tokB", 30, true, 5),
		pointsElsewhere,
		makeBox(boxSpec{id: "op1", typeId: forum.CommentTypeNFT, pointer: "c1", token: "tokB", locked: true, height: 25}),
		makeBox(boxSpec{id: "op2", typeId: forum.SpamFlagTypeNFT, pointer: "c2", token: "tokB", locked: true, height: 26}),
	)
	idx.tokens["tokB"] = erg.TokenInfo{Id: "tokB", EmissionAmount: 99999999}

	svc := newTestService(t, idx, fakeWallet("9fAlice"), &fakeSubmitter{})
	proof, err := svc.LoadProfile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tokB", proof.TokenId)
	assert.Equal(t, int64(99999999), proof.TotalAmount)
	assert.Equal(t, "9fAlice", proof.OwnerAddress)
	assert.Equal(t, aliceTree, proof.OwnerSerialized)
	assert.True(t, proof.CanBeSpent)
	assert.Equal(t, map[string]interface{}{"name": "alice"}, proof.Data)

	main, ok := proof.MainBox()
	require.True(t, ok)
	assert.Equal(t, "p2", main.BoxId, "locked and self inconsistent boxes are skipped")

	ids := make([]string, len(proof.CurrentBoxes))
	for i, b := range proof.CurrentBoxes {
		ids[i] = b.BoxId
	}
	assert.Equal(t, []string{"p2", "p4", "p3", "op2", "op1"}, ids, "every box holding the token, main box first")
	assert.Equal(t, 5, proof.NumberOfBoxes)

	assert.Same(t, proof, svc.State().Profile.Get())
	assert.Same(t, proof, svc.State().Proofs.Get()["tokB"])
}

func TestFetchProfileNotFound(t *testing.T) {
	svc := newTestService(t, newFakeIndexer(), fakeWallet("9fAlice"), &fakeSubmitter{})
	svc.State().Profile.Set(&forum.ReputationProof{TokenId: "stale"})

	_, err := svc.LoadProfile(context.Background())
	assert.ErrorIs(t, err, forum.ErrProfileNotFound)
	assert.Nil(t, svc.State().Profile.Get())

	svc = newTestService(t, newFakeIndexer(), nil, &fakeSubmitter{})
	_, err = svc.LoadProfile(context.Background())
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestLoadProofsAndReputation(t *testing.T) {
	idx := newFakeIndexer()
	const pbt = "aa11"

	idx.add(
		makeBox(boxSpec{id: "q1", typeId: forum.ProfileTypeNFT, pointer: "target", token: "tokQ", positive: true, amount: 2}),
		makeBox(boxSpec{id: "p1", typeId: pbt, pointer: "tokQ", token: "tokP", positive: true, amount: 5}),
		makeBox(boxSpec{id: "x1", typeId: pbt, pointer: "tokQ", token: "tokX", positive: true, amount: 5}),
	)
	idx.tokens["tokQ"] = erg.TokenInfo{EmissionAmount: 4}
	idx.tokens["tokP"] = erg.TokenInfo{EmissionAmount: 10}
	idx.tokens[pbt] = erg.TokenInfo{Name: "Proof-by-Token"}

	svc := newTestService(t, idx, nil, &fakeSubmitter{})
	svc.cfg.ProofTypes = []string{forum.ProfileTypeNFT, pbt}

	proofs, err := svc.LoadProofs(context.Background())
	assert.Error(t, err, "tokX has no token info")
	require.Contains(t, proofs, "tokP")
	require.Contains(t, proofs, "tokQ")
	assert.NotContains(t, proofs, "tokX")
	assert.True(t, proofs["tokP"].Type.IsProofByToken())

	score, err := svc.Reputation("tokP", "target")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, score, 1e-9)

	svc.SetComputeDepth(0)
	score, err = svc.Reputation("tokP", "target")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, err = svc.Reputation("unknown", "target")
	assert.ErrorIs(t, err, ErrProofNotFound)
}

func TestLoadProofsResolvesOwnerAddress(t *testing.T) {
	idx := newFakeIndexer()
	withAddress := makeBox(boxSpec{id: "b1", typeId: forum.ProfileTypeNFT, pointer: "tokB", token: "tokB", owner: "0008cdbb"})
	withAddress.Address = "9fBob"
	idx.add(
		makeBox(boxSpec{id: "a1", typeId: forum.ProfileTypeNFT, pointer: "tokA", token: "tokA", owner: aliceTree}),
		withAddress,
		makeBox(boxSpec{id: "c1", typeId: forum.ProfileTypeNFT, pointer: "tokC", token: "tokC", owner: "0008cdcc"}),
	)
	for _, tokenId := range []string{"tokA", "tokB", "tokC"} {
		idx.tokens[tokenId] = erg.TokenInfo{Id: tokenId, EmissionAmount: 10}
	}

	svc := newTestService(t, idx, nil, &fakeSubmitter{})
	svc.cfg.ProofTypes = []string{forum.ProfileTypeNFT}

	proofs, err := svc.LoadProofs(context.Background())
	require.NoError(t, err)
	require.Len(t, proofs, 3)

	assert.Equal(t, "9fAlice", proofs["tokA"].OwnerAddress, "derived from the R7 ergo tree")
	assert.Equal(t, "9fBob", proofs["tokB"].OwnerAddress, "the indexer address wins")
	assert.Equal(t, "", proofs["tokC"].OwnerAddress, "unknown trees leave the address empty")
}

func withProfile(svc *Service, locked bool, amount int64) {
	svc.State().Profile.Set(&forum.ReputationProof{
		TokenId:      "tokA",
		TotalAmount:  forum.ProfileTotalSupply,
		CurrentBoxes: []forum.RPBox{{BoxId: "main", TokenId: "tokA", TokenAmount: amount, IsLocked: locked}},
	})
}

func TestPostComment(t *testing.T) {
	sub := &fakeSubmitter{txId: "tx-new"}
	svc := newTestService(t, newFakeIndexer(), fakeWallet("9fAlice"), sub)
	svc.State().Threads.Set([]forum.Comment{{Id: "t1"}})
	withProfile(svc, false, 100)

	c, err := svc.PostComment(context.Background(), "**hi**", true)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(c.Id, "sim_box_"))
	assert.Len(t, c.Id, len("sim_box_")+8)
	assert.True(t, c.Posting)
	assert.Equal(t, "tx-new", c.Tx)
	assert.Equal(t, "tokA", c.AuthorProfileTokenId)
	assert.Contains(t, c.Text, "<strong>hi</strong>")

	threads := svc.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, c.Id, threads[0].Id, "optimistic comments are prepended")

	require.Len(t, sub.opinions, 1)
	op := sub.opinions[0]
	assert.Equal(t, int64(1), op.Amount)
	assert.Equal(t, forum.DiscussionTypeNFT, op.TypeId)
	assert.Equal(t, "disc", op.Pointer)
	assert.True(t, op.Locked)
	assert.Equal(t, "main", op.Input.BoxId)
}

func TestWriteOperationFailures(t *testing.T) {
	testCases := []struct {
		name   string
		locked bool
		amount int64
		txId   string
		err    error
		want   error
	}{
		{"TestLockedBox", true, 10, "tx", nil, forum.ErrBoxLocked},
		{"TestNoBalance", false, 0, "tx", nil, forum.ErrInsufficientBalance},
		{"TestNoTxId", false, 10, "", nil, forum.ErrSubmissionFailed},
		{"TestSubmitterError", false, 10, "", errors.New("wallet refused"), forum.ErrSubmissionFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, newFakeIndexer(), fakeWallet("9fAlice"), &fakeSubmitter{txId: tc.txId, err: tc.err})
			withProfile(svc, tc.locked, tc.amount)

			_, err := svc.PostComment(context.Background(), "hi", true)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, err.Error(), svc.State().Error.Get())
			assert.Empty(t, svc.Threads())
		})
	}
}

func TestWriteWithoutProfileCreatesOne(t *testing.T) {
	sub := &fakeSubmitter{txId: "tx-profile"}
	svc := newTestService(t, newFakeIndexer(), fakeWallet("9fAlice"), sub)

	_, err := svc.FlagSpam(context.Background(), "c1")
	assert.ErrorIs(t, err, forum.ErrProfileNotFound)
	assert.Contains(t, err.Error(), "tx-profile")
	assert.Equal(t, 1, sub.profiles)
	assert.Equal(t, `{"name":"Anon"}`, sub.content)
	assert.Empty(t, sub.opinions)
}

func TestReplyAndFlagSpam(t *testing.T) {
	sub := &fakeSubmitter{txId: "tx-reply"}
	svc := newTestService(t, newFakeIndexer(), fakeWallet("9fAlice"), sub)
	withProfile(svc, false, 10)
	svc.State().Threads.Set([]forum.Comment{
		{Id: "t1", Replies: []forum.Comment{{Id: "r1", Text: "deep", Replies: []forum.Comment{}}}},
	})
	before := svc.Threads()

	c, err := svc.ReplyToComment(context.Background(), "r1", "me too", false)
	require.NoError(t, err)
	assert.Equal(t, "r1", c.Discussion)
	assert.Equal(t, forum.CommentTypeNFT, sub.opinions[0].TypeId)

	threads := svc.Threads()
	require.Len(t, threads[0].Replies[0].Replies, 1)
	assert.Equal(t, c.Id, threads[0].Replies[0].Replies[0].Id)
	assert.Empty(t, before[0].Replies[0].Replies, "published forests are never mutated")

	sub.txId = "tx-flag"
	_, err = svc.FlagSpam(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, forum.SpamFlagTypeNFT, sub.opinions[1].TypeId)
	assert.Equal(t, "r1", sub.opinions[1].Pointer)
	assert.True(t, sub.opinions[1].Polarization, "spam flags are sent as positive opinions")

	flagged := svc.Threads()[0].Replies[0]
	assert.True(t, flagged.IsSpam)
	assert.Equal(t, forum.SpamContent, flagged.Text)
}

func TestReconcile(t *testing.T) {
	idx := newFakeIndexer()
	idx.add(comment("t1", "disc", true, true))

	sub := &fakeSubmitter{txId: "tx-t1"}
	svc := newTestService(t, idx, fakeWallet("9fAlice"), sub)
	withProfile(svc, false, 10)

	// tx-t1 is the transaction of box t1, so it lands on the next fetch
	_, err := svc.PostComment(context.Background(), "landed", true)
	require.NoError(t, err)
	sub.txId = "tx-waiting"
	waiting, err := svc.PostComment(context.Background(), "waiting", true)
	require.NoError(t, err)
	assert.Len(t, svc.pending.Snapshot(), 2)

	require.NoError(t, svc.LoadThreads(context.Background()))

	threads := svc.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, waiting.Id, threads[0].Id)
	assert.True(t, threads[0].Posting)
	assert.Equal(t, "t1", threads[1].Id)

	pending := svc.pending.Snapshot()
	assert.Len(t, pending, 1)
	assert.Contains(t, pending, "tx-waiting")
}

func TestReconcileSpamFlagBelowLimit(t *testing.T) {
	idx := newFakeIndexer()
	idx.add(comment("t1", "disc", true, true))

	sub := &fakeSubmitter{txId: "tx-flag"}
	svc := newTestService(t, idx, fakeWallet("9fAlice"), sub)
	withProfile(svc, false, 10)
	svc.SetSpamLimit(1)
	ctx := context.Background()

	require.NoError(t, svc.LoadThreads(ctx))
	_, err := svc.FlagSpam(ctx, "t1")
	require.NoError(t, err)

	// the flag is not on the ledger yet, so t1 stays hidden
	require.NoError(t, svc.LoadThreads(ctx))
	require.Len(t, svc.Threads(), 1)
	assert.True(t, svc.Threads()[0].IsSpam)
	assert.Contains(t, svc.pending.Snapshot(), "tx-flag")

	// flag box "flag" lands in transaction tx-flag
	idx.add(flag("flag", "t1"))

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.LoadThreads(ctx))

		threads := svc.Threads()
		require.Len(t, threads, 1)
		assert.False(t, threads[0].IsSpam, "one flag does not exceed a limit of 1")
		assert.NotEqual(t, forum.SpamContent, threads[0].Text)
		assert.Contains(t, threads[0].Text, "text of t1")
		assert.Empty(t, svc.pending.Snapshot())
	}

	count, spam, err := svc.SpamCount(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, spam)
}

func TestServiceLifecycle(t *testing.T) {
	idx := newFakeIndexer()
	idx.add(comment("t1", "disc", true, true))

	var wg sync.WaitGroup
	svc, err := NewService(idx, fakeResolver{}, nil, &fakeSubmitter{},
		state.NewForumState("disc", nil), state.NewPendingState(context.Background(), nil),
		Config{Discussion: "disc", PollInterval: time.Hour}, &wg)
	require.NoError(t, err)

	ch, cancel := svc.State().Threads.Subscribe()
	defer cancel()

	svc.Start()

	deadline := time.After(5 * time.Second)
	for loaded := false; !loaded; {
		select {
		case threads := <-ch:
			loaded = len(threads) == 1
		case <-deadline:
			t.Fatal("threads were never published")
		}
	}

	var done sync.WaitGroup
	done.Add(1)
	go svc.Wait(&done)
	svc.Stop()
	done.Wait()
	wg.Wait()
}
