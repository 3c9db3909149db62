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

// CommitSubmitted(uint256 indexed commitHeight, bytes32 blockHash)
var commitSubmittedTopic = crypto.Keccak256Hash([]byte("CommitSubmitted(uint256,bytes32)"))

// StateContract wraps the chain-state commitment contract: the source of
// rollup block hashes posted on the settlement chain.
type StateContract struct {
	contract
}

// NewStateContract constructs the wrapper.
func NewStateContract(address string, client *ethclient.Client, wallet *Wallet, chainID *big.Int, logger zerolog.Logger) (*StateContract, error) {
	base, err := newContract("state", address, client, wallet, chainID, logger)
	if err != nil {
		return nil, err
	}
	return &StateContract{contract: base}, nil
}

// CommitsSince returns every commit hash posted since fromBlock, as 0x-hex
// strings.
func (c *StateContract) CommitsSince(ctx context.Context, fromBlock uint64) ([]string, error) {
	logs, err := c.filterLogs(ctx, gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{commitSubmittedTopic}},
	})
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(logs))
	for _, log := range logs {
		if len(log.Data) != common.HashLength {
			return nil, fmt.Errorf("commit log data length %d, expected %d", len(log.Data), common.HashLength)
		}
		hashes = append(hashes, common.BytesToHash(log.Data).Hex())
	}
	return hashes, nil
}
