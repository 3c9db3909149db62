package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const pausableABIJSON = `[
  {"inputs":[],"name":"pause","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"paused","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

var pausableABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(pausableABIJSON))
	if err != nil {
		panic("failed to parse pausable ABI: " + err.Error())
	}
	pausableABI = parsed
}

// contract is the shared base of the three bridge contract wrappers: a
// verified address plus the pause capability.
type contract struct {
	name    string
	client  *ethclient.Client
	address common.Address
	wallet  *Wallet
	chainID *big.Int
	logger  zerolog.Logger
}

func newContract(name, address string, client *ethclient.Client, wallet *Wallet, chainID *big.Int, logger zerolog.Logger) (contract, error) {
	if !common.IsHexAddress(address) {
		return contract{}, fmt.Errorf("invalid %s contract address %q", name, address)
	}
	return contract{
		name:    name,
		client:  client,
		address: common.HexToAddress(address),
		wallet:  wallet,
		chainID: chainID,
		logger:  logger.With().Str("component", name+"_contract").Logger(),
	}, nil
}

// VerifyConnection calls the contract's paused() view to prove the address
// points at a real pausable contract.
func (c *contract) VerifyConnection(ctx context.Context) error {
	payload, err := pausableABI.Pack("paused")
	if err != nil {
		return err
	}
	err = withRetry(ctx, func() error {
		_, callErr := c.client.CallContract(ctx, gethereum.CallMsg{To: &c.address, Data: payload}, nil)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("invalid %s contract: %w", c.name, err)
	}
	return nil
}

// Pause submits a pause transaction and waits for it to be mined. With no
// signing key configured it fails fast without touching the network.
func (c *contract) Pause(ctx context.Context) error {
	if c.wallet.ReadOnly() {
		return ErrNotConfigured
	}

	from := c.wallet.Address()
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}

	data, err := pausableABI.Pack("pause")
	if err != nil {
		return err
	}

	gasLimit, err := c.client.EstimateGas(ctx, gethereum.CallMsg{
		From: from,
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("estimate gas for pause: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.wallet.key)
	if err != nil {
		return fmt.Errorf("sign pause transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send pause transaction: %w", err)
	}

	c.logger.Info().Str("tx", signed.Hash().Hex()).Msg("pause transaction submitted")

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return fmt.Errorf("await pause transaction: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("pause transaction %s reverted", signed.Hash().Hex())
	}
	return nil
}

// windowStart converts a trailing time frame into a starting block height
// below the given head.
func windowStart(latestBlock uint64, timeFrame uint32) uint64 {
	offset := uint64(timeFrame) / BlockTime
	if latestBlock < offset {
		return 0
	}
	return latestBlock - offset
}

// filterLogs runs a log query under the standard retry policy.
func (c *contract) filterLogs(ctx context.Context, query gethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, func() error {
		l, err := c.client.FilterLogs(ctx, query)
		if err != nil {
			return err
		}
		logs = l
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s logs after %d retries: %w", c.name, ConnectionRetries, err)
	}
	return logs, nil
}
