package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/logic"
	"github.com/blues/tcf/internal/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-co-op/gocron/v2"
)

// ReceiptSource 交易回执来源，由 chain.Manager 实现
type ReceiptSource interface {
	GetCurrentBlockNumber(ctx context.Context) (int64, error)
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxStore 交易记录存储，由 logic.TxRecordLogic 实现
type TxStore interface {
	GetPendingTxRecords(limit int) ([]model.TxRecordModel, error)
	UpdateStatus(txHash string, status model.TxStatus, blockNum int64, errorMsg string) error
}

// TxReceiptJob 补全等待中断后仍为待确认的交易状态
type TxReceiptJob struct {
	source        ReceiptSource
	store         TxStore
	interval      time.Duration
	confirmations int64
	batchSize     int
}

// NewTxReceiptJob 创建交易回执任务
func NewTxReceiptJob(source ReceiptSource, store TxStore, interval time.Duration, confirmations int64, batchSize int) *TxReceiptJob {
	if confirmations <= 0 {
		confirmations = 1
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &TxReceiptJob{
		source:        source,
		store:         store,
		interval:      interval,
		confirmations: confirmations,
		batchSize:     batchSize,
	}
}

// GetName 获取任务名称
func (j *TxReceiptJob) GetName() string {
	return "tx_receipt_tracker"
}

// GetSchedule 获取调度配置
func (j *TxReceiptJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *TxReceiptJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	updated, err := j.Run(ctx)
	if err != nil {
		logger.Error("Tx receipt task failed: %v", err)
		return
	}
	if updated > 0 {
		logger.Info("Tx receipt task completed, updated %d transactions", updated)
	}
}

// Run 检查待确认交易，返回更新的数量
func (j *TxReceiptJob) Run(ctx context.Context) (int, error) {
	records, err := j.store.GetPendingTxRecords(j.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	currentBlock, err := j.source.GetCurrentBlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, record := range records {
		receipt, err := j.source.GetTransactionReceipt(ctx, common.HexToHash(record.TxHash))
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				logger.Warn("Failed to get receipt for %s: %v", record.TxHash, err)
			}
			continue
		}

		blockNum := receipt.BlockNumber.Int64()
		if currentBlock-blockNum+1 < j.confirmations {
			logger.Debug("Transaction %s has %d of %d confirmations", record.TxHash, currentBlock-blockNum+1, j.confirmations)
			continue
		}

		status, errorMsg := logic.ReceiptStatus(receipt)
		if err := j.store.UpdateStatus(record.TxHash, status, blockNum, errorMsg); err != nil {
			logger.Error("Failed to update transaction %s: %v", record.TxHash, err)
			continue
		}
		updated++
	}

	return updated, nil
}
