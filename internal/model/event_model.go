package model

import (
	"time"
)

// CampaignEventModel 已索引的合约事件
type CampaignEventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ContractAddress string `json:"contract_address" gorm:"not null"`
	ContractName    string `json:"contract_name" gorm:"not null"`
	EventType       string `json:"event_type" gorm:"not null;index"`
	CampaignId      int64  `json:"campaign_id" gorm:"index"`
	Account         string `json:"account"`
	Amount          string `json:"amount"`
	TxHash          string `json:"tx_hash" gorm:"not null;uniqueIndex:idx_event_tx_log"`
	LogIndex        int64  `json:"log_index" gorm:"uniqueIndex:idx_event_tx_log"`
	BlockNum        int64  `json:"block_num" gorm:"not null;index"`
	Data            string `json:"data" gorm:"type:text"`
}

// TableName 自定义表名
func (CampaignEventModel) TableName() string {
	return "campaign_event"
}

// 合约事件名称
const (
	EventCampaignCreated   = "CampaignCreated"
	EventDonationReceived  = "DonationReceived"
	EventDonationRefunded  = "DonationRefunded"
	EventCampaignEnded     = "CampaignEnded"
	EventCampaignWithdrawn = "CampaignWithdrawn"
)
