package state

import (
	"github.com/reputation-systems/forum-application/forum"
)

// ForumState is the state published to the UI. Only the forum service writes
// it.
type ForumState struct {
	Threads    *Cell[[]forum.Comment]
	Loading    *Cell[bool]
	Error      *Cell[string]
	Discussion *Cell[string]
	Profile    *Cell[*forum.ReputationProof]
	Proofs     *Cell[forum.Proofs]
}

func NewForumState(discussion string, pub Publisher) *ForumState {
	return &ForumState{
		Threads:    NewCell("threads", []forum.Comment{}, pub),
		Loading:    NewCell("loading", false, pub),
		Error:      NewCell("error", "", pub),
		Discussion: NewCell("discussion", discussion, pub),
		Profile:    NewCell[*forum.ReputationProof]("profile", nil, pub),
		Proofs:     NewCell("proofs", forum.Proofs{}, pub),
	}
}
