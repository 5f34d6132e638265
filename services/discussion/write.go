package discussion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/forum"
	"github.com/reputation-systems/forum-application/state"
)

// simulatedId returns an id for a comment that is not on the ledger yet.
func simulatedId() string {
	return "sim_box_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// fail records err on the published error cell.
func (s *Service) fail(op string, err error) error {
	writeOpsTotal.WithLabelValues(op, "error").Inc()
	s.logger.Error("write operation failed", zap.String("op", op), zap.Error(err))
	s.state.Error.Set(err.Error())
	return err
}

// spendableBox returns the main box of the current profile. Without a
// profile one is created and ErrProfileNotFound is returned.
func (s *Service) spendableBox(ctx context.Context) (*forum.ReputationProof, forum.RPBox, error) {
	profile := s.state.Profile.Get()
	if profile == nil {
		var err error
		profile, err = s.LoadProfile(ctx)
		if errors.Is(err, forum.ErrProfileNotFound) {
			txId, cerr := s.CreateProfile(ctx)
			if cerr != nil {
				return nil, forum.RPBox{}, cerr
			}
			return nil, forum.RPBox{}, fmt.Errorf("%w - profile created in tx %s, wait for confirmation", forum.ErrProfileNotFound, txId)
		}
		if err != nil {
			return nil, forum.RPBox{}, err
		}
	}

	main, ok := profile.MainBox()
	if !ok {
		return nil, forum.RPBox{}, forum.ErrProfileNotFound
	}
	if main.IsLocked {
		return nil, forum.RPBox{}, forum.ErrBoxLocked
	}
	if main.TokenAmount < 1 {
		return nil, forum.RPBox{}, forum.ErrInsufficientBalance
	}

	return profile, main, nil
}

// opine spends one profile token into a locked box of typeId pointing at
// pointer and returns the transaction id.
func (s *Service) opine(ctx context.Context, op, typeId, pointer, text string, polarization bool) (*forum.ReputationProof, string, error) {
	profile, main, err := s.spendableBox(ctx)
	if err != nil {
		return nil, "", s.fail(op, err)
	}

	txId, err := s.submitter.CreateOpinion(ctx, forum.Opinion{
		Amount:       1,
		TypeId:       typeId,
		Pointer:      pointer,
		Polarization: polarization,
		Content:      text,
		Locked:       true,
		Input:        main,
	})
	if err != nil {
		return nil, "", s.fail(op, fmt.Errorf("%w - %s", forum.ErrSubmissionFailed, err.Error()))
	}
	if txId == "" {
		return nil, "", s.fail(op, forum.ErrSubmissionFailed)
	}

	writeOpsTotal.WithLabelValues(op, "ok").Inc()
	s.logger.Info("opinion submitted",
		zap.String("op", op),
		zap.String("pointer", pointer),
		zap.String("tx_id", txId),
	)

	return profile, txId, nil
}

func (s *Service) optimistic(profile *forum.ReputationProof, pointer, text, txId string, sentiment bool) forum.Comment {
	return forum.Comment{
		Id:                   simulatedId(),
		Discussion:           pointer,
		AuthorProfileTokenId: profile.TokenId,
		Text:                 forum.RenderText(text),
		Timestamp:            nowMillis(),
		Replies:              []forum.Comment{},
		Tx:                   txId,
		Posting:              true,
		Sentiment:            sentiment,
	}
}

func (s *Service) remember(txId string, p state.Pending) {
	if err := s.pending.Add(txId, p); err != nil {
		s.logger.Warn("failed to persist pending change", zap.String("tx_id", txId), zap.Error(err))
	}
}

// PostComment posts a top level comment on the selected discussion and
// shows it at the top of the forest until it is confirmed.
func (s *Service) PostComment(ctx context.Context, text string, sentiment bool) (forum.Comment, error) {
	discussion := s.state.Discussion.Get()

	profile, txId, err := s.opine(ctx, "comment", forum.DiscussionTypeNFT, discussion, text, sentiment)
	if err != nil {
		return forum.Comment{}, err
	}

	c := s.optimistic(profile, discussion, text, txId, sentiment)
	s.state.Threads.Update(func(cur []forum.Comment) []forum.Comment {
		return append([]forum.Comment{c}, cur...)
	})
	s.remember(txId, state.Pending{Kind: state.PendingComment, Target: discussion, Comment: c})

	return c, nil
}

// ReplyToComment replies to parentId, which may sit at any depth.
func (s *Service) ReplyToComment(ctx context.Context, parentId, text string, sentiment bool) (forum.Comment, error) {
	profile, txId, err := s.opine(ctx, "reply", forum.CommentTypeNFT, parentId, text, sentiment)
	if err != nil {
		return forum.Comment{}, err
	}

	c := s.optimistic(profile, parentId, text, txId, sentiment)
	s.state.Threads.Update(func(cur []forum.Comment) []forum.Comment {
		next, _ := insertReply(cur, parentId, c)
		return next
	})
	s.remember(txId, state.Pending{Kind: state.PendingReply, Target: parentId, Comment: c})

	return c, nil
}

// FlagSpam flags targetId and hides it locally right away.
func (s *Service) FlagSpam(ctx context.Context, targetId string) (string, error) {
	_, txId, err := s.opine(ctx, "spam", forum.SpamFlagTypeNFT, targetId, "", true)
	if err != nil {
		return "", err
	}

	s.state.Threads.Update(func(cur []forum.Comment) []forum.Comment {
		next, _ := markSpam(cur, targetId)
		return next
	})
	s.remember(txId, state.Pending{Kind: state.PendingSpam, Target: targetId})

	return txId, nil
}

// CreateProfile mints a new profile token for the connected wallet.
func (s *Service) CreateProfile(ctx context.Context) (string, error) {
	txId, err := s.submitter.CreateProfile(ctx, s.profiles.totalSupply, forum.ProfileTypeNFT, forum.DefaultProfileContent)
	if err != nil {
		return "", s.fail("profile", fmt.Errorf("%w - %s", forum.ErrSubmissionFailed, err.Error()))
	}
	if txId == "" {
		return "", s.fail("profile", forum.ErrSubmissionFailed)
	}

	writeOpsTotal.WithLabelValues("profile", "ok").Inc()
	s.logger.Info("profile creation submitted", zap.String("tx_id", txId))

	return txId, nil
}

// reconcile drops pending changes the ledger now reflects and re-applies the
// others on top of a freshly fetched forest.
func (s *Service) reconcile(ctx context.Context, discussion string, forest []forum.Comment) []forum.Comment {
	pending := s.pending.Snapshot()
	if len(pending) == 0 {
		return forest
	}

	confirmed := make(map[string]bool)
	walk(forest, func(c forum.Comment) {
		confirmed[c.Tx] = true
	})
	// flags land by transaction id, not by spam verdict
	flagged := make(map[string]bool)
	for txId, p := range pending {
		if p.Kind != state.PendingSpam {
			continue
		}
		txIds, err := s.spam.Flags(ctx, p.Target)
		if err != nil {
			s.logger.Warn("failed to list spam flags", zap.String("box_id", p.Target), zap.Error(err))
			continue
		}
		for _, id := range txIds {
			if id == txId {
				flagged[txId] = true
			}
		}
	}

	order := make([]string, 0, len(pending))
	for txId := range pending {
		order = append(order, txId)
	}
	// oldest first so the newest optimistic comment ends up on top
	sort.Slice(order, func(i, j int) bool {
		a, b := pending[order[i]].Comment.Timestamp, pending[order[j]].Comment.Timestamp
		if a != b {
			return a < b
		}
		return order[i] < order[j]
	})

	for _, txId := range order {
		p := pending[txId]
		landed := confirmed[txId]
		if p.Kind == state.PendingSpam {
			landed = flagged[txId]
		}
		if landed {
			if err := s.pending.Remove(txId); err != nil {
				s.logger.Warn("failed to drop pending change", zap.String("tx_id", txId), zap.Error(err))
			}
			continue
		}

		switch p.Kind {
		case state.PendingComment:
			if p.Target == discussion {
				forest = append([]forum.Comment{p.Comment}, forest...)
			}
		case state.PendingReply:
			forest, _ = insertReply(forest, p.Target, p.Comment)
		case state.PendingSpam:
			forest, _ = markSpam(forest, p.Target)
		}
	}

	return forest
}
