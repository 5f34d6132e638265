package discussion

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
)

const DefaultFanout = 8

// Assembler builds comment forests. Every level is sorted newest first.
type Assembler struct {
	indexer Indexer
	spam    *SpamGate
	query   Query
	fanout  int
	render  func(string) string
	logger  *zap.Logger
}

func NewAssembler(indexer Indexer, spam *SpamGate, query Query, fanout int) *Assembler {
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	return &Assembler{
		indexer: indexer,
		spam:    spam,
		query:   query,
		fanout:  fanout,
		render:  forum.RenderText,
		logger:  zap.L().With(zap.String("component", "assembler")),
	}
}

// FetchThread returns the comments pointing at pointer together with all of
// their replies. Top level comments are Discussion boxes, replies are Comment
// boxes. Only a failure to reach the indexer for pointer itself is returned,
// failures further down leave the affected reply lists empty.
func (a *Assembler) FetchThread(ctx context.Context, pointer string, isReply bool) ([]forum.Comment, error) {
	typeId := forum.DiscussionTypeNFT
	kind := "discussion"
	if isReply {
		typeId = forum.CommentTypeNFT
		kind = "comment"
	}

	var (
		comments []forum.Comment
		blocks   []string
	)
	err := scan(ctx, a.indexer, a.query.typed(typeId, pointer), a.query.PageSize, func(b erg.Box) {
		c, status := forum.DecodeComment(b, pointer, forum.LockedOnly)
		decodedBoxesTotal.WithLabelValues(kind, status.String()).Inc()
		if !status.Accepted() {
			a.logger.Debug("box rejected", zap.String("box_id", b.BoxId), zap.String("pointer", pointer))
			return
		}
		comments = append(comments, c)
		blocks = append(blocks, b.BlockId)
	})
	if err != nil {
		return nil, err
	}

	// each sibling writes only its own slot
	var g errgroup.Group
	g.SetLimit(a.fanout)
	for i := range comments {
		i := i
		g.Go(func() error {
			a.resolve(ctx, &comments[i], blocks[i])
			return nil
		})
	}
	g.Wait()

	SortNewestFirst(comments)

	if comments == nil {
		comments = []forum.Comment{}
	}
	return comments, nil
}

func (a *Assembler) resolve(ctx context.Context, c *forum.Comment, blockId string) {
	c.Text = a.render(c.Text)

	spam, err := a.spam.IsSpam(ctx, c.Id)
	if err != nil {
		a.logger.Warn("failed to count spam flags", zap.String("box_id", c.Id), zap.Error(err))
	}
	c.IsSpam = spam

	c.Timestamp = a.indexer.BlockTimestamp(ctx, blockId)

	replies, err := a.FetchThread(ctx, c.Id, true)
	if err != nil {
		a.logger.Warn("failed to fetch replies", zap.String("box_id", c.Id), zap.Error(err))
		replies = []forum.Comment{}
	}
	c.Replies = replies
}

// SortNewestFirst orders comments by descending timestamp, keeping ledger
// order for equal timestamps.
func SortNewestFirst(comments []forum.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Timestamp > comments[j].Timestamp
	})
}

// SortOldestFirst orders comments by ascending timestamp, keeping the current
// order for equal timestamps.
func SortOldestFirst(comments []forum.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Timestamp < comments[j].Timestamp
	})
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
