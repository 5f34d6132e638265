// Package submit turns forum write operations into transactions signed and
// sent by the wallet of an ergo node.
package submit

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reputation-systems/forum-application/erg"
	"github.com/reputation-systems/forum-application/forum"
)

const (
	minerFee    = 1000000 // 0.0010 ERG
	minBoxValue = 1000000 // 0.0010 ERG

	profileTokenName = "Reputation Proof"
)

var (
	ErrNoWalletBoxes = errors.New("node wallet has no unspent boxes")
)

// Node is the part of the ergo node api the submitter needs.
type Node interface {
	WalletStatus(ctx context.Context) (erg.WalletStatus, error)
	WalletUnspentBoxes(ctx context.Context) ([]erg.WalletBox, error)
	AddressToErgoTree(ctx context.Context, address string) (string, error)
	SerializeBox(ctx context.Context, boxId string) (string, error)
	SendTransaction(ctx context.Context, payload []byte) (string, error)
}

type asset struct {
	TokenId string `json:"tokenId"`
	Amount  int64  `json:"amount"`
}

type paymentRequest struct {
	Address   string            `json:"address"`
	Value     int64             `json:"value"`
	Assets    []asset           `json:"assets"`
	Registers map[string]string `json:"registers,omitempty"`
}

type issueRequest struct {
	Address     string            `json:"address"`
	ErgValue    int64             `json:"ergValue"`
	Amount      int64             `json:"amount"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Decimals    int               `json:"decimals"`
	Registers   map[string]string `json:"registers,omitempty"`
}

type txRequest struct {
	Requests      []interface{} `json:"requests"`
	Fee           int64         `json:"fee"`
	InputsRaw     []string      `json:"inputsRaw"`
	DataInputsRaw []string      `json:"dataInputsRaw"`
}

// NodeSubmitter implements forum.Submitter and forum.Wallet on top of a node
// wallet. Reputation boxes are sent to contract, or back to the wallet change
// address when no contract address is configured.
type NodeSubmitter struct {
	node     Node
	contract string
	logger   *zap.Logger
}

func NewNodeSubmitter(node Node, contract string) *NodeSubmitter {
	return &NodeSubmitter{
		node:     node,
		contract: contract,
		logger:   zap.L().With(zap.String("component", "submit")),
	}
}

// ChangeAddress returns the change address of the node wallet.
func (s *NodeSubmitter) ChangeAddress(ctx context.Context) (string, error) {
	status, err := s.node.WalletStatus(ctx)
	if err != nil {
		return "", err
	}
	return status.ChangeAddress, nil
}

// owner returns the destination address of new boxes and the ergoTree of the
// wallet stored in R7.
func (s *NodeSubmitter) owner(ctx context.Context) (string, string, error) {
	change, err := s.ChangeAddress(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to get wallet change address - %s", err.Error())
	}
	if change == "" {
		return "", "", fmt.Errorf("node wallet has no change address")
	}

	tree, err := s.node.AddressToErgoTree(ctx, change)
	if err != nil {
		return "", "", err
	}

	address := s.contract
	if address == "" {
		address = change
	}
	return address, tree, nil
}

// idBytes decodes hex ids, anything else is stored as utf-8.
func idBytes(id string) []byte {
	if b, err := hex.DecodeString(id); err == nil {
		return b
	}
	return []byte(id)
}

func treeBytes(tree string) []byte {
	b, _ := hex.DecodeString(tree)
	return b
}

func registers(typeId, pointer string, locked bool, tree string, polarization bool, content string) map[string]string {
	return map[string]string{
		forum.RegType:         erg.SerializeCollByte(idBytes(typeId)),
		forum.RegPointer:      erg.SerializeCollByte(idBytes(pointer)),
		forum.RegLocked:       erg.SerializeBool(locked),
		forum.RegOwner:        erg.SerializeCollByte(treeBytes(tree)),
		forum.RegPolarization: erg.SerializeBool(polarization),
		forum.RegContent:      erg.SerializeCollByte([]byte(content)),
	}
}

// carried copies the serialized registers of a box being spent.
func carried(box erg.Box) map[string]string {
	regs := make(map[string]string, len(box.AdditionalRegisters))
	for name, r := range box.AdditionalRegisters {
		if r.SerializedValue != "" {
			regs[name] = r.SerializedValue
		}
	}
	return regs
}

func (s *NodeSubmitter) send(ctx context.Context, fn string, tx txRequest) (string, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("error marshalling %s tx - %s", fn, err.Error())
	}

	start := time.Now()
	txId, err := s.node.SendTransaction(ctx, payload)
	if err != nil {
		s.logger.Error("failed to send tx",
			zap.String("caller", fn),
			zap.Int64("durationMs", time.Since(start).Milliseconds()),
			zap.Error(err))
		return "", err
	}

	s.logger.Info("tx sent",
		zap.String("caller", fn),
		zap.Int64("durationMs", time.Since(start).Milliseconds()),
		zap.String("tx_id", txId))
	return txId, nil
}

// CreateOpinion spends op.Input, sending op.Amount tokens into the opinion box
// and the rest back into a copy of the input box.
func (s *NodeSubmitter) CreateOpinion(ctx context.Context, op forum.Opinion) (string, error) {
	if op.Amount < 1 || op.Amount > op.Input.TokenAmount {
		return "", forum.ErrInsufficientBalance
	}

	address, tree, err := s.owner(ctx)
	if err != nil {
		return "", err
	}

	inputRaw, err := s.node.SerializeBox(ctx, op.Input.BoxId)
	if err != nil {
		return "", err
	}

	requests := []interface{}{
		paymentRequest{
			Address:   address,
			Value:     minBoxValue,
			Assets:    []asset{{TokenId: op.Input.TokenId, Amount: op.Amount}},
			Registers: registers(op.TypeId, op.Pointer, op.Locked, tree, op.Polarization, op.Content),
		},
	}
	if rest := op.Input.TokenAmount - op.Amount; rest > 0 {
		requests = append(requests, paymentRequest{
			Address:   address,
			Value:     minBoxValue,
			Assets:    []asset{{TokenId: op.Input.TokenId, Amount: rest}},
			Registers: carried(op.Input.Box),
		})
	}

	return s.send(ctx, "CreateOpinion", txRequest{
		Requests:      requests,
		Fee:           minerFee,
		InputsRaw:     []string{inputRaw},
		DataInputsRaw: []string{},
	})
}

// CreateProfile mints totalSupply profile tokens. The token id is the id of
// the first input, so the profile box can point at its own token.
func (s *NodeSubmitter) CreateProfile(ctx context.Context, totalSupply int64, typeId string, content string) (string, error) {
	address, tree, err := s.owner(ctx)
	if err != nil {
		return "", err
	}

	boxes, err := s.node.WalletUnspentBoxes(ctx)
	if err != nil {
		return "", err
	}
	if len(boxes) == 0 {
		return "", ErrNoWalletBoxes
	}
	tokenId := boxes[0].Box.BoxId

	inputRaw, err := s.node.SerializeBox(ctx, tokenId)
	if err != nil {
		return "", err
	}

	return s.send(ctx, "CreateProfile", txRequest{
		Requests: []interface{}{
			issueRequest{
				Address:   address,
				ErgValue:  minBoxValue,
				Amount:    totalSupply,
				Name:      profileTokenName,
				Decimals:  0,
				Registers: registers(typeId, tokenId, false, tree, true, content),
			},
		},
		Fee:           minerFee,
		InputsRaw:     []string{inputRaw},
		DataInputsRaw: []string{},
	})
}

// StaticWallet is a wallet with a fixed change address.
type StaticWallet string

func (w StaticWallet) ChangeAddress(ctx context.Context) (string, error) {
	return string(w), nil
}
