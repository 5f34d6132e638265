package erg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	walletLock     = "/wallet/lock"
	walletUnlock   = "/wallet/unlock"
	walletStatus   = "/wallet/status"
	walletBoxes    = "/wallet/boxes/unspent"
	postErgTx      = "/wallet/transaction/send"
	addressToTree  = "/script/addressToTree/"
	ergoTreeToAddr = "/utils/ergoTreeToAddress/"
	serializeBox   = "/utxo/withPool/byIdBinary/"
)

type NodeConfig struct {
	Scheme         string
	Fqdn           string
	Port           int
	User           string
	Password       string
	ApiKey         string
	WalletPassword string
}

type ErgNode struct {
	client     *retryablehttp.Client
	url        *url.URL
	user       string
	pass       string
	apiKey     string
	walletPass string
}

func NewErgNode(client *retryablehttp.Client, cfg NodeConfig) (*ErgNode, error) {
	if cfg.Fqdn == "" {
		return nil, fmt.Errorf("ergo node fqdn is missing")
	}

	host := cfg.Fqdn
	if cfg.Port > 0 {
		host = host + ":" + strconv.Itoa(cfg.Port)
	}

	return &ErgNode{
		client: client,
		url: &url.URL{
			Scheme: cfg.Scheme,
			Host:   host,
		},
		user:       cfg.User,
		pass:       cfg.Password,
		apiKey:     cfg.ApiKey,
		walletPass: cfg.WalletPassword,
	}, nil
}

func (n *ErgNode) newRequest(ctx context.Context, method, path string, body []byte) (*retryablehttp.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewBuffer(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, n.url.String()+path, reader)
	if err != nil {
		return nil, err
	}
	if n.user != "" {
		req.SetBasicAuth(n.user, n.pass)
	}
	if n.apiKey != "" {
		req.Header.Set("api_key", n.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

// do runs the request and returns the body of a successful response.
func (n *ErgNode) do(req *retryablehttp.Request) ([]byte, error) {
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body - %s", err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("response status code %d", resp.StatusCode)
	}

	return body, nil
}

func (n *ErgNode) unlockWallet(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{"pass": n.walletPass})
	if err != nil {
		return fmt.Errorf("error marshalling unlock wallet payload - %s", err.Error())
	}

	req, err := n.newRequest(ctx, http.MethodPost, walletUnlock, payload)
	if err != nil {
		return fmt.Errorf("error creating erg node unlock wallet request - %s", err.Error())
	}

	if _, err = n.do(req); err != nil {
		return fmt.Errorf("error unlocking erg node wallet - %s", err.Error())
	}

	return nil
}

func (n *ErgNode) lockWallet(ctx context.Context) error {
	req, err := n.newRequest(ctx, http.MethodGet, walletLock, nil)
	if err != nil {
		return fmt.Errorf("error creating erg node lock wallet request - %s", err.Error())
	}

	if _, err = n.do(req); err != nil {
		return fmt.Errorf("error locking erg node wallet - %s", err.Error())
	}

	return nil
}

// WalletStatus reports the node wallet state, including its change address.
func (n *ErgNode) WalletStatus(ctx context.Context) (WalletStatus, error) {
	var status WalletStatus

	req, err := n.newRequest(ctx, http.MethodGet, walletStatus, nil)
	if err != nil {
		return status, fmt.Errorf("error creating wallet status request - %s", err.Error())
	}

	body, err := n.do(req)
	if err != nil {
		return status, fmt.Errorf("error calling wallet status - %s", err.Error())
	}

	err = json.Unmarshal(body, &status)
	if err != nil {
		return status, fmt.Errorf("error unmarshalling wallet status response - %s", err.Error())
	}

	return status, nil
}

func (n *ErgNode) WalletUnspentBoxes(ctx context.Context) ([]WalletBox, error) {
	var boxes []WalletBox

	req, err := n.newRequest(ctx, http.MethodGet, walletBoxes+"?minConfirmations=0", nil)
	if err != nil {
		return boxes, fmt.Errorf("error creating wallet boxes request - %s", err.Error())
	}

	body, err := n.do(req)
	if err != nil {
		return boxes, fmt.Errorf("error calling wallet boxes - %s", err.Error())
	}

	err = json.Unmarshal(body, &boxes)
	if err != nil {
		return boxes, fmt.Errorf("error unmarshalling wallet boxes response - %s", err.Error())
	}

	return boxes, nil
}

// AddressToErgoTree resolves the ergoTree guarding a base58 address.
func (n *ErgNode) AddressToErgoTree(ctx context.Context, address string) (string, error) {
	var tree ErgoTree

	req, err := n.newRequest(ctx, http.MethodGet, addressToTree+url.PathEscape(address), nil)
	if err != nil {
		return "", fmt.Errorf("error creating addressToTree request - %s", err.Error())
	}

	body, err := n.do(req)
	if err != nil {
		return "", fmt.Errorf("error getting ergo tree of address - %s", err.Error())
	}

	err = json.Unmarshal(body, &tree)
	if err != nil {
		return "", fmt.Errorf("error unmarshalling addressToTree response - %s", err.Error())
	}

	return tree.Tree, nil
}

func (n *ErgNode) ErgoTreeToAddress(ctx context.Context, ergoTree string) (string, error) {
	var address map[string]interface{}

	req, err := n.newRequest(ctx, http.MethodGet, ergoTreeToAddr+url.PathEscape(ergoTree), nil)
	if err != nil {
		return "", fmt.Errorf("error creating ergoTreeToAddress request - %s", err.Error())
	}

	body, err := n.do(req)
	if err != nil {
		return "", fmt.Errorf("error getting erg tree address - %s", err.Error())
	}

	err = json.Unmarshal(body, &address)
	if err != nil {
		return "", fmt.Errorf("error unmarshalling erg tree address response - %s", err.Error())
	}

	addr, ok := address["address"].(string)
	if !ok {
		return "", fmt.Errorf("erg tree address response has no address")
	}

	return addr, nil
}

func (n *ErgNode) SerializeBox(ctx context.Context, boxId string) (string, error) {
	var serialized Serialized

	req, err := n.newRequest(ctx, http.MethodGet, serializeBox+url.PathEscape(boxId), nil)
	if err != nil {
		return "", fmt.Errorf("error creating SerializeBox request - %s", err.Error())
	}

	body, err := n.do(req)
	if err != nil {
		return "", fmt.Errorf("error serializing erg box - %s", err.Error())
	}

	err = json.Unmarshal(body, &serialized)
	if err != nil {
		return "", fmt.Errorf("error unmarshalling serialized erg box response - %s", err.Error())
	}

	return serialized.Bytes, nil
}

// SendTransaction unlocks the node wallet, asks it to build, sign and send
// the transaction request, then locks it again. It returns the tx id.
func (n *ErgNode) SendTransaction(ctx context.Context, payload []byte) (string, error) {
	var txId string

	err := n.unlockWallet(ctx)
	if err != nil {
		return "", err
	}
	defer n.lockWallet(ctx)

	req, err := n.newRequest(ctx, http.MethodPost, postErgTx, payload)
	if err != nil {
		return "", fmt.Errorf("error creating SendTransaction request - %s", err.Error())
	}

	body, err := n.do(req)
	if err != nil {
		return "", fmt.Errorf("error submitting erg tx to node - %s", err.Error())
	}

	err = json.Unmarshal(body, &txId)
	if err != nil {
		return "", fmt.Errorf("error parsing erg tx response - %s", err.Error())
	}

	return txId, nil
}
