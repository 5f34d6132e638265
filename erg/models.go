package erg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Amount accepts token and nanoERG amounts encoded either as JSON numbers or
// as strings, explorers have shipped both.
type Amount int64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*a = 0
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q - %s", string(data), err.Error())
	}
	*a = Amount(n)

	return nil
}

type Asset struct {
	TokenId string `json:"tokenId"`
	Amount  Amount `json:"amount"`
	Name    string `json:"name,omitempty"`
}

// Register is one additional register (R4..R9) of a box. RenderedValue is
// optional, explorers leave it out for values they cannot render.
type Register struct {
	SerializedValue string `json:"serializedValue"`
	SigmaType       string `json:"sigmaType,omitempty"`
	RenderedValue   string `json:"renderedValue,omitempty"`
}

// Box is an unspent box as returned by the explorer search API.
type Box struct {
	BoxId               string              `json:"boxId"`
	TransactionId       string              `json:"transactionId"`
	BlockId             string              `json:"blockId"`
	Value               Amount              `json:"value"`
	Index               int                 `json:"index"`
	CreationHeight      int                 `json:"creationHeight"`
	ErgoTree            string              `json:"ergoTree"`
	Address             string              `json:"address,omitempty"`
	Assets              []Asset             `json:"assets"`
	AdditionalRegisters map[string]Register `json:"additionalRegisters"`
}

// Register returns the named register and whether the box carries it.
func (b Box) Register(name string) (Register, bool) {
	if b.AdditionalRegisters == nil {
		return Register{}, false
	}
	r, ok := b.AdditionalRegisters[name]
	return r, ok
}

// Rendered returns the rendered value of a register, or "" when absent.
func (b Box) Rendered(name string) string {
	r, _ := b.Register(name)
	return r.RenderedValue
}

type BoxItems struct {
	Items []Box `json:"items"`
	Total int   `json:"total"`
}

// SearchQuery is the body of POST /api/v1/boxes/unspent/search. Register
// values must already be in rendered form, see RenderCollByte.
type SearchQuery struct {
	ErgoTreeTemplateHash string            `json:"ergoTreeTemplateHash,omitempty"`
	Registers            map[string]string `json:"registers"`
	Assets               []string          `json:"assets"`
}

type BlockSummary struct {
	Block struct {
		Header struct {
			Id        string          `json:"id"`
			Height    int             `json:"height"`
			Timestamp json.RawMessage `json:"timestamp"`
		} `json:"header"`
	} `json:"block"`
}

type TokenInfo struct {
	Id             string `json:"id"`
	BoxId          string `json:"boxId"`
	EmissionAmount Amount `json:"emissionAmount"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Decimals       int    `json:"decimals"`
}

type Serialized struct {
	BoxId string `json:"boxId"`
	Bytes string `json:"bytes"`
}

type WalletStatus struct {
	IsInitialized bool   `json:"isInitialized"`
	IsUnlocked    bool   `json:"isUnlocked"`
	ChangeAddress string `json:"changeAddress"`
	NetworkType   string `json:"networkType"`
	WalletHeight  int    `json:"walletHeight"`
}

type WalletBox struct {
	Box struct {
		BoxId string `json:"boxId"`
		Value Amount `json:"value"`
	} `json:"box"`
	ConfirmationsNum int `json:"confirmationsNum"`
}

type ErgoTree struct {
	Tree string `json:"tree"`
}
