package logic

import (
	"errors"
	"fmt"

	"github.com/blues/tcf/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEventExists 同一交易中的同一条日志只记录一次
var ErrEventExists = errors.New("事件已存在")

// EventLogic 合约事件业务逻辑
type EventLogic struct {
	db *gorm.DB
}

// NewEventLogic 创建事件业务逻辑
func NewEventLogic(db *gorm.DB) *EventLogic {
	return &EventLogic{db: db}
}

// CreateEvent 创建事件记录，重复事件返回 ErrEventExists
func (e *EventLogic) CreateEvent(event *model.CampaignEventModel) error {
	// 验证事件数据
	if err := e.validateEvent(event); err != nil {
		return err
	}

	result := e.db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if result.Error != nil {
		return fmt.Errorf("创建事件记录失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEventExists
	}

	return nil
}

// GetEvents 获取事件列表，campaignId 小于 0 时不按活动过滤
func (e *EventLogic) GetEvents(campaignId int64, eventType string, page, pageSize int) ([]model.CampaignEventModel, int64, error) {
	var events []model.CampaignEventModel
	var total int64

	// 构建查询条件
	query := e.db.Model(&model.CampaignEventModel{})
	if campaignId >= 0 {
		query = query.Where("campaign_id = ?", campaignId)
	}
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取事件总数失败: %w", err)
	}

	// 分页查询
	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("block_num DESC, log_index DESC").Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("获取事件列表失败: %w", err)
	}

	return events, total, nil
}

// GetEventByTxHash 根据交易哈希获取事件
func (e *EventLogic) GetEventByTxHash(txHash string) (*model.CampaignEventModel, error) {
	var event model.CampaignEventModel
	if err := e.db.Where("tx_hash = ?", txHash).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("事件不存在")
		}
		return nil, fmt.Errorf("获取事件失败: %w", err)
	}

	return &event, nil
}

// GetLastProcessedBlock 获取某合约最后处理的区块号，没有记录时返回 0
func (e *EventLogic) GetLastProcessedBlock(contractAddress string) (int64, error) {
	var lastEvent model.CampaignEventModel
	err := e.db.Where("contract_address = ?", contractAddress).Order("block_num DESC").First(&lastEvent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("获取最后处理区块号失败: %w", err)
	}
	return lastEvent.BlockNum, nil
}

// CheckEventExists 检查事件是否已存在
func (e *EventLogic) CheckEventExists(txHash string, logIndex int64) (bool, error) {
	var count int64
	err := e.db.Model(&model.CampaignEventModel{}).Where("tx_hash = ? AND log_index = ?", txHash, logIndex).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("检查事件是否存在失败: %w", err)
	}
	return count > 0, nil
}

// validateEvent 验证事件数据
func (e *EventLogic) validateEvent(event *model.CampaignEventModel) error {
	if event.ContractAddress == "" {
		return errors.New("合约地址不能为空")
	}
	if event.ContractName == "" {
		return errors.New("合约名称不能为空")
	}
	if event.EventType == "" {
		return errors.New("事件名称不能为空")
	}
	if event.TxHash == "" {
		return errors.New("交易哈希不能为空")
	}
	if event.BlockNum == 0 {
		return errors.New("区块号不能为空")
	}

	return nil
}
