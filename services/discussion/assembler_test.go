package discussion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
)

func TestSpamGate(t *testing.T) {
	idx := newFakeIndexer()
	unlocked := flag("f3", "c1")
	unlocked.AdditionalRegisters[forum.RegLocked] = erg.Register{RenderedValue: "false"}
	idx.add(flag("f1", "c1"), flag("f2", "c1"), unlocked, flag("f4", "other"))

	gate := NewSpamGate(idx, Query{PageSize: 1}, 0)

	count, err := gate.Count(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	testCases := []struct {
		name      string
		threshold int
		want      bool
	}{
		{"TestDefaultThreshold", 0, true},
		{"TestBelowCount", 1, true},
		{"TestAtCount", 2, false},
		{"TestNegativeClamped", -3, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gate.SetThreshold(tc.threshold)
			spam, err := gate.IsSpam(context.Background(), "c1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, spam)
		})
	}

	spam, err := gate.IsSpam(context.Background(), "clean")
	require.NoError(t, err)
	assert.False(t, spam)
}

func TestFetchThread(t *testing.T) {
	idx := newFakeIndexer()

	unlocked := comment("t3", "disc", true, true)
	unlocked.AdditionalRegisters[forum.RegLocked] = erg.Register{RenderedValue: "false"}

	idx.add(
		comment("t1", "disc", true, true),
		comment("t2", "disc", true, false),
		unlocked,
		comment("r1", "t1", false, true),
		comment("r2", "t1", false, false),
		comment("g1", "r1", false, true),
		flag("f1", "r2"),
	)
	idx.timestamps["block-t1"] = 100
	idx.timestamps["block-t2"] = 200
	idx.timestamps["block-r1"] = 150
	idx.timestamps["block-r2"] = 170
	idx.timestamps["block-g1"] = 160

	a := NewAssembler(idx, NewSpamGate(idx, Query{PageSize: 2}, 0), Query{PageSize: 2}, 2)

	threads, err := a.FetchThread(context.Background(), "disc", false)
	require.NoError(t, err)
	require.Len(t, threads, 2, "unlocked boxes are rejected")

	assert.Equal(t, "t2", threads[0].Id, "newest first")
	assert.Equal(t, "t1", threads[1].Id)
	assert.Empty(t, threads[0].Replies)
	assert.NotNil(t, threads[0].Replies)

	t1 := threads[1]
	assert.Equal(t, "disc", t1.Discussion)
	assert.Equal(t, "author", t1.AuthorProfileTokenId)
	assert.Equal(t, "tx-t1", t1.Tx)
	assert.Equal(t, int64(100), t1.Timestamp)
	assert.Contains(t, t1.Text, "<p>text of t1</p>")
	require.Len(t, t1.Replies, 2)

	assert.Equal(t, "r2", t1.Replies[0].Id)
	assert.True(t, t1.Replies[0].IsSpam)
	assert.Equal(t, "r1", t1.Replies[1].Id)
	assert.False(t, t1.Replies[1].IsSpam)
	require.Len(t, t1.Replies[1].Replies, 1)
	assert.Equal(t, "g1", t1.Replies[1].Replies[0].Id)
	assert.Equal(t, "r1", t1.Replies[1].Replies[0].Discussion)

	// r2 is spam and pruned, r1 is positive with one positive leaf
	assert.Equal(t, 2, forum.Score(t1))
}

func TestFetchThreadFailures(t *testing.T) {
	idx := newFakeIndexer()
	idx.add(comment("t1", "disc", true, true))
	idx.failing["broken"] = true
	idx.failing["t1"] = true

	a := NewAssembler(idx, NewSpamGate(idx, Query{}, 0), Query{}, 0)

	_, err := a.FetchThread(context.Background(), "broken", false)
	assert.ErrorIs(t, err, erg.ErrFetchFailed)

	// failures below the top level leave the reply list empty
	threads, err := a.FetchThread(context.Background(), "disc", false)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Empty(t, threads[0].Replies)
	assert.False(t, threads[0].IsSpam)

	threads, err = a.FetchThread(context.Background(), "nothing-here", true)
	require.NoError(t, err)
	assert.NotNil(t, threads)
	assert.Empty(t, threads)
}

func TestSortNewestFirstIsStable(t *testing.T) {
	comments := []forum.Comment{
		{Id: "a", Timestamp: 10},
		{Id: "b", Timestamp: 20},
		{Id: "c", Timestamp: 10},
		{Id: "d", Timestamp: 20},
	}

	SortNewestFirst(comments)
	first := make([]string, len(comments))
	for i, c := range comments {
		first[i] = c.Id
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, first)

	SortNewestFirst(comments)
	for i, c := range comments {
		assert.Equal(t, first[i], c.Id, "sorting again must not reorder")
	}

	SortOldestFirst(comments)
	assert.Equal(t, "a", comments[0].Id)
	assert.Equal(t, "d", comments[3].Id)
}
