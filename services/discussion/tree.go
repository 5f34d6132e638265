package discussion

import (
	"github.com/reputation-systems/forum-application/forum"
)

// Forests are replaced, never mutated in place: every helper here returns a
// copy of the path it touched and shares the untouched subtrees.

// insertReply prepends reply to the replies of parentId, at any depth.
func insertReply(forest []forum.Comment, parentId string, reply forum.Comment) ([]forum.Comment, bool) {
	for i := range forest {
		if forest[i].Id == parentId {
			out := append([]forum.Comment(nil), forest...)
			out[i].Replies = append([]forum.Comment{reply}, forest[i].Replies...)
			return out, true
		}
		if replies, ok := insertReply(forest[i].Replies, parentId, reply); ok {
			out := append([]forum.Comment(nil), forest...)
			out[i].Replies = replies
			return out, true
		}
	}
	return forest, false
}

// markSpam flags targetId as spam and hides its text.
func markSpam(forest []forum.Comment, targetId string) ([]forum.Comment, bool) {
	for i := range forest {
		if forest[i].Id == targetId {
			out := append([]forum.Comment(nil), forest...)
			out[i].IsSpam = true
			out[i].Text = forum.SpamContent
			return out, true
		}
		if replies, ok := markSpam(forest[i].Replies, targetId); ok {
			out := append([]forum.Comment(nil), forest...)
			out[i].Replies = replies
			return out, true
		}
	}
	return forest, false
}

// findComment looks up id at any depth.
func findComment(forest []forum.Comment, id string) (forum.Comment, bool) {
	for _, c := range forest {
		if c.Id == id {
			return c, true
		}
		if found, ok := findComment(c.Replies, id); ok {
			return found, true
		}
	}
	return forum.Comment{}, false
}

// walk calls fn for every comment of the forest, parents before replies.
func walk(forest []forum.Comment, fn func(forum.Comment)) {
	for _, c := range forest {
		fn(c)
		walk(c.Replies, fn)
	}
}
