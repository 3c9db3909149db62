package ethereum

import (
	"context"
	"math/big"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

var (
	// MessageSent(bytes32 indexed sender, bytes32 indexed recipient,
	// uint256 indexed nonce, uint64 amount, bytes data)
	messageSentTopic = crypto.Keccak256Hash([]byte("MessageSent(bytes32,bytes32,uint256,uint64,bytes)"))
	// MessageRelayed(bytes32 indexed messageId, bytes32 indexed sender,
	// bytes32 indexed recipient, uint64 amount)
	messageRelayedTopic = crypto.Keccak256Hash([]byte("MessageRelayed(bytes32,bytes32,bytes32,uint64)"))

	// Portal amounts are 9-decimal rollup units; upscale to 18-decimal
	// base units so thresholds compare in one denomination.
	baseAssetUpscale = big.NewInt(1_000_000_000)
)

// PortalContract wraps the message portal: base-asset deposits into and
// withdrawals out of the rollup.
type PortalContract struct {
	contract
}

// NewPortalContract constructs the wrapper.
func NewPortalContract(address string, client *ethclient.Client, wallet *Wallet, chainID *big.Int, logger zerolog.Logger) (*PortalContract, error) {
	base, err := newContract("portal", address, client, wallet, chainID, logger)
	if err != nil {
		return nil, err
	}
	return &PortalContract{contract: base}, nil
}

// BaseDeposited sums base-asset deposits over the trailing time frame below
// the given head block.
func (c *PortalContract) BaseDeposited(ctx context.Context, timeFrame uint32, latestBlock uint64) (*big.Int, error) {
	return c.sumMessageAmounts(ctx, messageSentTopic, timeFrame, latestBlock)
}

// BaseWithdrawn sums base-asset withdrawals over the trailing time frame
// below the given head block.
func (c *PortalContract) BaseWithdrawn(ctx context.Context, timeFrame uint32, latestBlock uint64) (*big.Int, error) {
	return c.sumMessageAmounts(ctx, messageRelayedTopic, timeFrame, latestBlock)
}

func (c *PortalContract) sumMessageAmounts(ctx context.Context, topic common.Hash, timeFrame uint32, latestBlock uint64) (*big.Int, error) {
	logs, err := c.filterLogs(ctx, gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(windowStart(latestBlock, timeFrame)),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, log := range logs {
		if len(log.Data) < common.HashLength {
			continue
		}
		amount := new(big.Int).SetBytes(log.Data[:common.HashLength])
		total.Add(total, amount.Mul(amount, baseAssetUpscale))
	}
	return total, nil
}
