// Package forum holds the ledger-derived entities of the discussion and
// reputation system together with the pure functions that score them.
package forum

import (
	"strings"

	"github.com/reputation-systems/forum-application/erg"
)

const (
	ProfileTypeNFT    = "1820fd428a0b92d61ce3f86cd98240fdeeee8a392900f0b19a2e017d66f79926"
	DiscussionTypeNFT = "273f60541e8869216ee6aed5552e522d9bea29a69d88e567d089dc834da227cf"
	CommentTypeNFT    = "6c1ec833dc4aff98458b60e278fc9a0161274671d6a0c36a7429216ca99c3267"
	SpamFlagTypeNFT   = "89505ed416ad43f2dc4b3c8d0eb949e6ba9993436ceb154a58645f1484e1437a"

	ProfileTotalSupply  = 99999999
	DefaultComputeDepth = 5
	DefaultSpamLimit    = 0

	// type names containing this delegate their score to the pointed proof
	ProofByToken = "Proof-by-Token"

	// R9 payload of a freshly minted profile
	DefaultProfileContent = `{"name":"Anon"}`

	NetworkErgoMainnet = "ergo"
	NetworkErgoTestnet = "ergo-testnet"
)

// TypeNFT describes a category of boxes, identified by a well known token.
type TypeNFT struct {
	TokenId     string `json:"tokenId"`
	BoxId       string `json:"boxId"`
	TypeName    string `json:"typeName"`
	Description string `json:"description"`
	SchemaURI   string `json:"schemaURI"`
	IsRepProof  bool   `json:"isRepProof"`
}

func (t TypeNFT) IsProofByToken() bool {
	return strings.Contains(t.TypeName, ProofByToken)
}

// Types indexes type descriptors by token id.
type Types map[string]TypeNFT

func BuiltinTypes() Types {
	return Types{
		ProfileTypeNFT:    {TokenId: ProfileTypeNFT, TypeName: "Profile", Description: "User profile"},
		DiscussionTypeNFT: {TokenId: DiscussionTypeNFT, TypeName: "Discussion", Description: "Top level comment on a discussion"},
		CommentTypeNFT:    {TokenId: CommentTypeNFT, TypeName: "Comment", Description: "Reply to a comment"},
		SpamFlagTypeNFT:   {TokenId: SpamFlagTypeNFT, TypeName: "Spam", Description: "Spam flag"},
	}
}

// Lookup returns the descriptor of id, or an "Unknown Type" placeholder.
func (t Types) Lookup(id string) TypeNFT {
	if typ, ok := t[id]; ok {
		return typ
	}
	return TypeNFT{TokenId: id, TypeName: "Unknown Type"}
}

// With returns a copy of t extended with the given names.
func (t Types) With(names map[string]string) Types {
	out := make(Types, len(t)+len(names))
	for id, typ := range t {
		out[id] = typ
	}
	for id, name := range names {
		typ := out[id]
		typ.TokenId = id
		typ.TypeName = name
		out[id] = typ
	}
	return out
}

type Comment struct {
	Id                   string    `json:"id"`
	Discussion           string    `json:"discussion"`
	AuthorProfileTokenId string    `json:"authorProfileTokenId"`
	Text                 string    `json:"text"`
	Timestamp            int64     `json:"timestamp"`
	IsSpam               bool      `json:"isSpam"`
	Replies              []Comment `json:"replies"`
	Tx                   string    `json:"tx"`
	Posting              bool      `json:"posting"`
	Sentiment            bool      `json:"sentiment"`
}

// Content is the decoded R9 payload of a box. JSON is set when the text
// parses as JSON.
type Content struct {
	Text string      `json:"text"`
	JSON interface{} `json:"json,omitempty"`
}

// RPBox is a single reputation bearing box.
type RPBox struct {
	BoxId          string   `json:"boxId"`
	TokenId        string   `json:"tokenId"`
	Type           TypeNFT  `json:"type"`
	TokenAmount    int64    `json:"tokenAmount"`
	ObjectPointer  string   `json:"objectPointer"`
	IsLocked       bool     `json:"isLocked"`
	Polarization   bool     `json:"polarization"`
	Content        *Content `json:"content"`
	OwnerErgoTree  string   `json:"ownerErgoTree,omitempty"`
	CreationHeight int      `json:"creationHeight"`
	TransactionId  string   `json:"transactionId"`
	Box            erg.Box  `json:"-"`
}

// ReputationProof aggregates every unspent box carrying one token.
type ReputationProof struct {
	TokenId         string      `json:"tokenId"`
	Type            TypeNFT     `json:"type"`
	Data            interface{} `json:"data"`
	TotalAmount     int64       `json:"totalAmount"`
	OwnerAddress    string      `json:"ownerAddress"`
	OwnerSerialized string      `json:"ownerSerialized"`
	CanBeSpent      bool        `json:"canBeSpent"`
	CurrentBoxes    []RPBox     `json:"currentBoxes"`
	NumberOfBoxes   int         `json:"numberOfBoxes"`
	Network         string      `json:"network"`
}

// MainBox returns the highest ranked box of the proof.
func (p *ReputationProof) MainBox() (RPBox, bool) {
	if p == nil || len(p.CurrentBoxes) == 0 {
		return RPBox{}, false
	}
	return p.CurrentBoxes[0], true
}

// Proofs indexes known reputation proofs by token id.
type Proofs map[string]*ReputationProof
