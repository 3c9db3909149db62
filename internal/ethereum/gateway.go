package ethereum

import (
	"context"
	"fmt"
	"math/big"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

var (
	// Deposit(bytes32 indexed sender, address indexed tokenAddress,
	// bytes32 fuelContractId, uint256 amount)
	depositTopic = crypto.Keccak256Hash([]byte("Deposit(bytes32,address,bytes32,uint256)"))
	// Withdrawal(bytes32 indexed recipient, address indexed tokenAddress,
	// bytes32 fuelContractId, uint256 amount)
	withdrawalTopic = crypto.Keccak256Hash([]byte("Withdrawal(bytes32,address,bytes32,uint256)"))
)

// GatewayContract wraps the ERC-20 gateway: per-token deposits into and
// withdrawals out of the rollup.
type GatewayContract struct {
	contract
}

// NewGatewayContract constructs the wrapper.
func NewGatewayContract(address string, client *ethclient.Client, wallet *Wallet, chainID *big.Int, logger zerolog.Logger) (*GatewayContract, error) {
	base, err := newContract("gateway", address, client, wallet, chainID, logger)
	if err != nil {
		return nil, err
	}
	return &GatewayContract{contract: base}, nil
}

// TokenDeposited sums deposits of the given token over the trailing time
// frame below the given head block.
func (c *GatewayContract) TokenDeposited(ctx context.Context, timeFrame uint32, tokenAddress string, latestBlock uint64) (*big.Int, error) {
	return c.sumTokenAmounts(ctx, depositTopic, timeFrame, tokenAddress, latestBlock)
}

// TokenWithdrawn sums withdrawals of the given token over the trailing time
// frame below the given head block.
func (c *GatewayContract) TokenWithdrawn(ctx context.Context, timeFrame uint32, tokenAddress string, latestBlock uint64) (*big.Int, error) {
	return c.sumTokenAmounts(ctx, withdrawalTopic, timeFrame, tokenAddress, latestBlock)
}

func (c *GatewayContract) sumTokenAmounts(ctx context.Context, topic common.Hash, timeFrame uint32, tokenAddress string, latestBlock uint64) (*big.Int, error) {
	if !common.IsHexAddress(tokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", tokenAddress)
	}
	token := common.HexToAddress(tokenAddress)

	logs, err := c.filterLogs(ctx, gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(windowStart(latestBlock, timeFrame)),
		Addresses: []common.Address{c.address},
		Topics: [][]common.Hash{
			{topic},
			nil,
			{common.BytesToHash(token.Bytes())},
		},
	})
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, log := range logs {
		// Data carries (fuelContractId, amount); amount is the trailing
		// word.
		if len(log.Data) < common.HashLength {
			continue
		}
		amount := new(big.Int).SetBytes(log.Data[len(log.Data)-common.HashLength:])
		total.Add(total, amount)
	}
	return total, nil
}
