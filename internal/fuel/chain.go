// Package fuel is the rollup-chain collaborator: a thin GraphQL client used
// for health probes, commit verification, and withdrawal volume scans.
package fuel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/rs/zerolog"
)

const (
	// ConnectionRetries bounds every GraphQL call, matching the settlement
	// side: no backoff, fail the probe for this iteration instead.
	ConnectionRetries = 2
	// BlockTime is the nominal seconds per rollup block.
	BlockTime = 1

	// volumeScanPageSize caps how many trailing blocks one page of a
	// withdrawal scan requests; scans page backward until the time
	// cutoff is reached.
	volumeScanPageSize = 600
)

// Chain talks to a fuel-core GraphQL endpoint.
type Chain struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewChain constructs a client for the given GraphQL endpoint.
func NewChain(endpoint string, timeout time.Duration, logger zerolog.Logger) *Chain {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Chain{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "fuel_chain").Logger(),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *Chain) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(ConnectionRetries),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return 0
		}),
	)
	return r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fuel graphql responded with status %d", resp.StatusCode)
		}

		var envelope struct {
			Data   json.RawMessage `json:"data"`
			Errors []graphqlError  `json:"errors"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return fmt.Errorf("decode graphql response: %w", err)
		}
		if len(envelope.Errors) > 0 {
			return fmt.Errorf("fuel graphql error: %s", envelope.Errors[0].Message)
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return fmt.Errorf("decode graphql data: %w", err)
			}
		}
		return nil
	})
}

// CheckConnection verifies the node answers a health query.
func (c *Chain) CheckConnection(ctx context.Context) error {
	var res struct {
		Health bool `json:"health"`
	}
	if err := c.query(ctx, `query { health }`, nil, &res); err != nil {
		return fmt.Errorf("failed to establish connection after %d retries: %w", ConnectionRetries, err)
	}
	if !res.Health {
		return fmt.Errorf("fuel node reported unhealthy")
	}
	return nil
}

type blockHeader struct {
	Height string `json:"height"`
	Time   string `json:"time"`
}

func (c *Chain) latestBlockHeader(ctx context.Context) (blockHeader, error) {
	var res struct {
		Chain struct {
			LatestBlock struct {
				Header blockHeader `json:"header"`
			} `json:"latestBlock"`
		} `json:"chain"`
	}
	query := `query { chain { latestBlock { header { height time } } } }`
	if err := c.query(ctx, query, nil, &res); err != nil {
		return blockHeader{}, err
	}
	return res.Chain.LatestBlock.Header, nil
}

// LatestBlockNumber returns the rollup head height.
func (c *Chain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.latestBlockHeader(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve latest block: %w", err)
	}
	height, err := strconv.ParseUint(header.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block height %q: %w", header.Height, err)
	}
	return height, nil
}

// SecondsSinceLastBlock measures rollup block production staleness.
func (c *Chain) SecondsSinceLastBlock(ctx context.Context) (uint64, error) {
	header, err := c.latestBlockHeader(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve latest block: %w", err)
	}
	blockTime, err := tai64ToUnix(header.Time)
	if err != nil {
		return 0, err
	}
	now := time.Now().Unix()
	if now < blockTime {
		return 0, fmt.Errorf("block time %d is ahead of current time %d", blockTime, now)
	}
	return uint64(now - blockTime), nil
}

// VerifyBlockCommit reports whether the given block hash exists on the
// rollup chain.
func (c *Chain) VerifyBlockCommit(ctx context.Context, blockHash string) (bool, error) {
	var res struct {
		Block *struct {
			ID string `json:"id"`
		} `json:"block"`
	}
	query := `query ($id: BlockId!) { block(id: $id) { id } }`
	if err := c.query(ctx, query, map[string]any{"id": blockHash}, &res); err != nil {
		return false, fmt.Errorf("failed to verify block commit: %w", err)
	}
	return res.Block != nil, nil
}

type blocksResponse struct {
	Blocks struct {
		PageInfo struct {
			HasPreviousPage bool   `json:"hasPreviousPage"`
			StartCursor     string `json:"startCursor"`
		} `json:"pageInfo"`
		Nodes []struct {
			Header       blockHeader `json:"header"`
			Transactions []struct {
				Status struct {
					Typename string `json:"__typename"`
					Receipts []struct {
						ReceiptType string `json:"receiptType"`
						Amount      string `json:"amount"`
						Contract    *struct {
							ID string `json:"id"`
						} `json:"contract"`
					} `json:"receipts"`
				} `json:"status"`
			} `json:"transactions"`
		} `json:"nodes"`
	} `json:"blocks"`
}

const recentBlocksQuery = `query ($last: Int!, $before: String) {
  blocks(last: $last, before: $before) {
    pageInfo { hasPreviousPage startCursor }
    nodes {
      header { height time }
      transactions {
        status {
          __typename
          ... on SuccessStatus {
            receipts { receiptType amount contract { id } }
          }
        }
      }
    }
  }
}`

// BaseWithdrawn sums base-asset withdrawals (MessageOut receipts) over the
// trailing time frame.
func (c *Chain) BaseWithdrawn(ctx context.Context, timeFrame uint32) (*big.Int, error) {
	return c.sumReceipts(ctx, timeFrame, "MESSAGE_OUT", "")
}

// TokenWithdrawn sums withdrawals of the given token contract (Burn
// receipts) over the trailing time frame.
func (c *Chain) TokenWithdrawn(ctx context.Context, timeFrame uint32, tokenContract string) (*big.Int, error) {
	return c.sumReceipts(ctx, timeFrame, "BURN", tokenContract)
}

// sumReceipts walks blocks backward from the head, one page at a time,
// until it sees a block older than the time frame. The whole window is
// always covered, however long it is relative to the page size.
func (c *Chain) sumReceipts(ctx context.Context, timeFrame uint32, receiptType, tokenContract string) (*big.Int, error) {
	pageSize := int(timeFrame) / BlockTime
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > volumeScanPageSize {
		pageSize = volumeScanPageSize
	}

	cutoff := time.Now().Unix() - int64(timeFrame)
	total := new(big.Int)
	var before string

	for {
		variables := map[string]any{"last": pageSize}
		if before != "" {
			variables["before"] = before
		}

		var res blocksResponse
		if err := c.query(ctx, recentBlocksQuery, variables, &res); err != nil {
			return nil, fmt.Errorf("failed to scan recent blocks: %w", err)
		}
		if len(res.Blocks.Nodes) == 0 {
			return total, nil
		}

		reachedCutoff := false
		for _, block := range res.Blocks.Nodes {
			blockTime, err := tai64ToUnix(block.Header.Time)
			if err != nil {
				return nil, err
			}
			if blockTime < cutoff {
				reachedCutoff = true
				continue
			}
			for _, tx := range block.Transactions {
				if tx.Status.Typename != "SuccessStatus" {
					continue
				}
				for _, receipt := range tx.Status.Receipts {
					if receipt.ReceiptType != receiptType {
						continue
					}
					if tokenContract != "" && (receipt.Contract == nil || receipt.Contract.ID != tokenContract) {
						continue
					}
					amount, ok := new(big.Int).SetString(receipt.Amount, 10)
					if !ok {
						return nil, fmt.Errorf("parse receipt amount %q", receipt.Amount)
					}
					total.Add(total, amount)
				}
			}
		}

		if reachedCutoff || !res.Blocks.PageInfo.HasPreviousPage {
			return total, nil
		}
		before = res.Blocks.PageInfo.StartCursor
	}
}
