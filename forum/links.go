package forum

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultTxLink      = "https://sigmaspace.io/en/transaction/"
	DefaultAddressLink = "https://sigmaspace.io/en/address/"
	DefaultTokenLink   = "https://sigmaspace.io/en/token/"
)

// Links builds human facing explorer urls. A template either contains a %s
// verb or is a prefix the id is appended to.
type Links struct {
	TxTemplate      string `json:"tx"`
	AddressTemplate string `json:"address"`
	TokenTemplate   string `json:"token"`
}

func DefaultLinks() Links {
	return Links{
		TxTemplate:      DefaultTxLink,
		AddressTemplate: DefaultAddressLink,
		TokenTemplate:   DefaultTokenLink,
	}
}

func expand(template, id string) string {
	id = url.PathEscape(id)
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, id)
	}
	return template + id
}

func (l Links) Tx(id string) string {
	return expand(l.TxTemplate, id)
}

func (l Links) Address(addr string) string {
	return expand(l.AddressTemplate, addr)
}

func (l Links) Token(id string) string {
	return expand(l.TokenTemplate, id)
}

// Resolve dispatches on kind, one of tx, address or token.
func (l Links) Resolve(kind, id string) (string, error) {
	switch kind {
	case "tx", "transaction":
		return l.Tx(id), nil
	case "address", "addr":
		return l.Address(id), nil
	case "token":
		return l.Token(id), nil
	}
	return "", fmt.Errorf("unknown link kind %q", kind)
}
