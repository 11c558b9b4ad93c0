package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GetBatchBlockLogs 批量获取多个区块的日志
func (m *Manager) GetBatchBlockLogs(ctx context.Context, contractAddresses []common.Address, fromBlock, toBlock int64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: contractAddresses,
	}

	return m.GetClient().FilterLogs(ctx, query)
}

// GetCurrentBlockNumber 获取当前最新区块号
func (m *Manager) GetCurrentBlockNumber(ctx context.Context) (int64, error) {
	header, err := m.GetClient().HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	return header.Number.Int64(), nil
}

// GetTransactionReceipt 获取交易回执，交易未上链时返回 ethereum.NotFound
func (m *Manager) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return m.GetClient().TransactionReceipt(ctx, txHash)
}
