package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gorm.io/gorm"
)

// TxRecordLogic 交易记录业务逻辑，同时作为仓库的交易回调
type TxRecordLogic struct {
	db *gorm.DB
}

// NewTxRecordLogic 创建交易记录业务逻辑
func NewTxRecordLogic(db *gorm.DB) *TxRecordLogic {
	return &TxRecordLogic{db: db}
}

// CreateTxRecord 创建交易记录
func (l *TxRecordLogic) CreateTxRecord(record *model.TxRecordModel) error {
	if record.TxHash == "" {
		return errors.New("交易哈希不能为空")
	}
	if record.Action == "" {
		return errors.New("交易类型不能为空")
	}
	if record.Status == "" {
		record.Status = model.TxStatusPending
	}

	if err := l.db.Create(record).Error; err != nil {
		return fmt.Errorf("创建交易记录失败: %w", err)
	}
	return nil
}

// UpdateStatus 更新交易状态
func (l *TxRecordLogic) UpdateStatus(txHash string, status model.TxStatus, blockNum int64, errorMsg string) error {
	result := l.db.Model(&model.TxRecordModel{}).
		Where("tx_hash = ?", txHash).
		Updates(map[string]interface{}{
			"status":    status,
			"block_num": blockNum,
			"error_msg": errorMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("更新交易状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("交易记录不存在")
	}
	return nil
}

// GetTxRecordByHash 根据交易哈希获取记录
func (l *TxRecordLogic) GetTxRecordByHash(txHash string) (*model.TxRecordModel, error) {
	var record model.TxRecordModel
	if err := l.db.Where("tx_hash = ?", txHash).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("交易记录不存在")
		}
		return nil, fmt.Errorf("获取交易记录失败: %w", err)
	}
	return &record, nil
}

// GetPendingTxRecords 获取待确认的交易，按创建时间升序
func (l *TxRecordLogic) GetPendingTxRecords(limit int) ([]model.TxRecordModel, error) {
	var records []model.TxRecordModel
	if err := l.db.Where("status = ?", model.TxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("获取待确认交易失败: %w", err)
	}
	return records, nil
}

// GetTxRecords 分页获取交易记录，campaignId 小于 0 时不按活动过滤
func (l *TxRecordLogic) GetTxRecords(campaignId int64, sender string, page, pageSize int) ([]model.TxRecordModel, int64, error) {
	var records []model.TxRecordModel
	var total int64

	query := l.db.Model(&model.TxRecordModel{})
	if campaignId >= 0 {
		query = query.Where("campaign_id = ?", campaignId)
	}
	if sender != "" {
		query = query.Where("LOWER(sender) = LOWER(?)", sender)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取交易总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("id DESC").Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("获取交易列表失败: %w", err)
	}

	return records, total, nil
}

// TxSent 交易发出后记录为待确认
func (l *TxRecordLogic) TxSent(ctx context.Context, action model.TxAction, campaignId int64, from common.Address, tx *types.Transaction) {
	value := "0"
	if tx.Value() != nil {
		value = tx.Value().String()
	}

	record := &model.TxRecordModel{
		CampaignId: campaignId,
		Action:     action,
		Sender:     from.Hex(),
		TxHash:     tx.Hash().Hex(),
		Value:      value,
		Status:     model.TxStatusPending,
	}
	if err := l.CreateTxRecord(record); err != nil {
		logger.Error("Failed to record %s transaction %s: %v", action, record.TxHash, err)
	}
}

// TxMined 交易上链或等待失败后更新状态；等待被取消时保持待确认，由回执任务处理
func (l *TxRecordLogic) TxMined(ctx context.Context, tx *types.Transaction, receipt *types.Receipt, err error) {
	if receipt == nil {
		if err != nil {
			logger.Warn("Transaction %s not confirmed yet: %v", tx.Hash().Hex(), err)
		}
		return
	}

	status, errorMsg := ReceiptStatus(receipt)
	if err != nil && errorMsg == "" {
		errorMsg = err.Error()
	}
	var blockNum int64
	if receipt.BlockNumber != nil {
		blockNum = receipt.BlockNumber.Int64()
	}
	if err := l.UpdateStatus(tx.Hash().Hex(), status, blockNum, errorMsg); err != nil {
		logger.Error("Failed to update transaction %s: %v", tx.Hash().Hex(), err)
	}
}

// ReceiptStatus 根据回执得到交易状态
func ReceiptStatus(receipt *types.Receipt) (model.TxStatus, string) {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return model.TxStatusSuccess, ""
	}
	return model.TxStatusFailed, "transaction reverted"
}
