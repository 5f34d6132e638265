package forum

import "context"

// Opinion asks the ledger to spend Amount tokens of the Input profile box
// into a new box of type TypeId pointing at Pointer.
type Opinion struct {
	Amount       int64
	TypeId       string
	Pointer      string
	Polarization bool
	Content      string
	Locked       bool
	Input        RPBox
}

// Submitter builds, signs and sends transactions. An empty transaction id
// with a nil error means nothing was submitted.
type Submitter interface {
	CreateProfile(ctx context.Context, totalSupply int64, typeId string, content string) (string, error)
	CreateOpinion(ctx context.Context, op Opinion) (string, error)
}

// Wallet exposes the connected wallet.
type Wallet interface {
	ChangeAddress(ctx context.Context) (string, error)
}
