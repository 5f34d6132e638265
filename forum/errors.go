package forum

import (
	"errors"
)

var (
	ErrDecodeFailed        = errors.New("box payload could not be decoded")
	ErrProfileNotFound     = errors.New("no profile boxes found for this address")
	ErrInsufficientBalance = errors.New("not enough reputation tokens left in the main profile box")
	ErrBoxLocked           = errors.New("main profile box is locked and cannot be spent")
	ErrSubmissionFailed    = errors.New("ledger submission returned no transaction id")
)
