package forum

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/erg"
)

const (
	UnreadableContent = "[Unreadable content]"
	EmptyContent      = "[Empty content]"
	SpamContent       = "[Comment marked as spam]"
)

// Register slots used by reputation boxes.
const (
	RegType         = "R4"
	RegPointer      = "R5"
	RegLocked       = "R6"
	RegOwner        = "R7"
	RegPolarization = "R8"
	RegContent      = "R9"
)

var requiredRegisters = []string{RegType, RegPointer, RegLocked}

// Status tags the outcome of decoding a single box.
type Status int

const (
	Rejected Status = iota
	Decoded
	// Placeholder means the box was accepted but its content could not be
	// read and a sentinel value was substituted.
	Placeholder
)

func (s Status) String() string {
	switch s {
	case Decoded:
		return "decoded"
	case Placeholder:
		return "placeholder"
	default:
		return "rejected"
	}
}

// Accepted reports whether the box produced an entity.
func (s Status) Accepted() bool {
	return s != Rejected
}

// Lock filters boxes by their R6 lock bit.
type Lock int

const (
	AnyLock Lock = iota
	LockedOnly
	UnlockedOnly
)

func (l Lock) admits(locked bool) bool {
	switch l {
	case LockedOnly:
		return locked
	case UnlockedOnly:
		return !locked
	default:
		return true
	}
}

func hasRegisters(box erg.Box, names []string) bool {
	for _, name := range names {
		if _, ok := box.Register(name); !ok {
			return false
		}
	}
	return true
}

// Admit applies the rejection rules shared by every box kind: assets
// present, R4 to R6 present and the lock bit accepted by lock.
func Admit(box erg.Box, lock Lock) bool {
	if len(box.Assets) == 0 {
		return false
	}
	if !hasRegisters(box, requiredRegisters) {
		return false
	}
	return lock.admits(erg.RenderedBool(box.Rendered(RegLocked)))
}

func undecodable(box erg.Box, err error) {
	zap.L().Debug("unreadable box content",
		zap.String("box_id", box.BoxId),
		zap.Error(fmt.Errorf("%w - %s", ErrDecodeFailed, err.Error())))
}

// DecodeText reads R9 as UTF-8 text. A missing or undecodable register
// yields UnreadableContent, an empty one EmptyContent.
func DecodeText(box erg.Box) (string, Status) {
	raw, ok := box.Register(RegContent)
	if !ok || raw.RenderedValue == "" {
		return UnreadableContent, Placeholder
	}

	text, err := erg.HexToUTF8(raw.RenderedValue)
	if err != nil {
		undecodable(box, err)
		return UnreadableContent, Placeholder
	}
	if text == "" {
		return EmptyContent, Placeholder
	}

	return text, Decoded
}

// DecodeContent reads R9 as opportunistic JSON, falling back to plain text.
// Nil means the content is absent or unreadable.
func DecodeContent(box erg.Box) (*Content, Status) {
	raw, ok := box.Register(RegContent)
	if !ok || raw.RenderedValue == "" {
		return nil, Placeholder
	}

	text, err := erg.HexToUTF8(raw.RenderedValue)
	if err != nil {
		undecodable(box, err)
		return nil, Placeholder
	}

	content := &Content{Text: text}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed interface{}
		if json.Unmarshal([]byte(trimmed), &parsed) == nil {
			content.JSON = parsed
		}
	}

	return content, Decoded
}

// DecodeComment turns a raw box into a Comment replying to pointer. Text is
// returned undecorated, the caller renders it and resolves spam, timestamp
// and replies.
func DecodeComment(box erg.Box, pointer string, lock Lock) (Comment, Status) {
	if !Admit(box, lock) {
		return Comment{}, Rejected
	}

	text, status := DecodeText(box)

	return Comment{
		Id:                   box.BoxId,
		Discussion:           pointer,
		AuthorProfileTokenId: box.Assets[0].TokenId,
		Text:                 text,
		Tx:                   box.TransactionId,
		Sentiment:            erg.RenderedBool(box.Rendered(RegPolarization)),
		Replies:              []Comment{},
	}, status
}

// DecodeRPBox interprets box under tokenId. The first asset of the box must
// be tokenId.
func DecodeRPBox(box erg.Box, tokenId string, types Types, lock Lock) (RPBox, Status) {
	if !Admit(box, lock) {
		return RPBox{}, Rejected
	}
	if box.Assets[0].TokenId != tokenId {
		return RPBox{}, Rejected
	}

	content, status := DecodeContent(box)

	return RPBox{
		BoxId:          box.BoxId,
		TokenId:        tokenId,
		Type:           types.Lookup(box.Rendered(RegType)),
		TokenAmount:    int64(box.Assets[0].Amount),
		ObjectPointer:  box.Rendered(RegPointer),
		IsLocked:       erg.RenderedBool(box.Rendered(RegLocked)),
		Polarization:   erg.RenderedBool(box.Rendered(RegPolarization)),
		Content:        content,
		OwnerErgoTree:  box.Rendered(RegOwner),
		CreationHeight: box.CreationHeight,
		TransactionId:  box.TransactionId,
		Box:            box,
	}, status
}
