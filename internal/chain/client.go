package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"bridgeScope/internal/model"
)

const (
	defaultReceiptPoll    = 500 * time.Millisecond
	defaultReceiptTimeout = 2 * time.Minute
)

// Client wraps go-ethereum RPC for a sandbox admin endpoint.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	receiptPoll    time.Duration
	receiptTimeout time.Duration
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient:      rpcClient,
		ethClient:      ethclient.NewClient(rpcClient),
		receiptPoll:    defaultReceiptPoll,
		receiptTimeout: defaultReceiptTimeout,
	}, nil
}

// SetReceiptPolling overrides how WaitReceipt polls. Non-positive values keep the defaults.
func (c *Client) SetReceiptPolling(interval, timeout time.Duration) {
	if interval > 0 {
		c.receiptPoll = interval
	}
	if timeout > 0 {
		c.receiptTimeout = timeout
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// NativeBalance returns the account's native balance at the latest block.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, account, nil)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// AddBalance credits native balance to account. Sandbox-only.
func (c *Client) AddBalance(ctx context.Context, account common.Address, amount *big.Int) error {
	return c.rpcClient.CallContext(ctx, nil, "tenderly_addBalance", account, hexutil.EncodeBig(amount))
}

// SetERC20Balance overrides account's balance of token. Sandbox-only.
func (c *Client) SetERC20Balance(ctx context.Context, token, account common.Address, amount *big.Int) error {
	return c.rpcClient.CallContext(ctx, nil, "tenderly_setErc20Balance", token, account, hexutil.EncodeBig(amount))
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    common.Address  `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Value *hexutil.Big    `json:"value"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// SendTransaction submits an unsigned transaction from an unlocked sandbox account.
func (c *Client) SendTransaction(ctx context.Context, from common.Address, tx model.Transaction) (common.Hash, error) {
	args := sendTxArgs{
		From:  from,
		To:    tx.To,
		Data:  tx.Data,
		Value: (*hexutil.Big)(tx.ValueOrZero()),
	}
	if tx.Gas != nil {
		gas := hexutil.Uint64(*tx.Gas)
		args.Gas = &gas
	}

	var hash common.Hash
	if err := c.rpcClient.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// WaitReceipt polls for the receipt of hash until it is mined or the wait times out.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
