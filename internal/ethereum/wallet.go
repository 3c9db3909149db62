package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNotConfigured is returned by pause attempts when no signing key is
// available. It must fail fast, before any network call.
var ErrNotConfigured = errors.New("ethereum account not configured")

// Wallet holds the optional operator signing key. Without a key the
// watchtower runs read-only: it still observes, but cannot pause.
type Wallet struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	readOnly bool
}

// NewWallet parses a hex private key. An empty key yields a read-only
// wallet.
func NewWallet(hexKey string) (*Wallet, error) {
	if hexKey == "" {
		return &Wallet{readOnly: true}, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// ReadOnly reports whether the wallet lacks a signing key.
func (w *Wallet) ReadOnly() bool {
	return w.readOnly
}

// Address returns the operator account address. Zero when read-only.
func (w *Wallet) Address() common.Address {
	return w.address
}
