package model

import (
	"time"
)

// TxRecordModel 本服务提交过的交易
type TxRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CampaignId int64    `json:"campaign_id" gorm:"index"`
	Action     TxAction `json:"action" gorm:"not null"`
	Sender     string   `json:"sender" gorm:"not null"`
	TxHash     string   `json:"tx_hash" gorm:"uniqueIndex"`
	Value      string   `json:"value"`
	Status     TxStatus `json:"status" gorm:"default:'pending';index"`
	BlockNum   int64    `json:"block_num"`
	ErrorMsg   string   `json:"error_msg" gorm:"type:text"`
}

// TableName 自定义表名
func (TxRecordModel) TableName() string {
	return "tx_record"
}

// TxAction 交易对应的用户操作
type TxAction string

const (
	TxActionApprove  TxAction = "approve"
	TxActionCreate   TxAction = "create"
	TxActionDonate   TxAction = "donate"
	TxActionRefund   TxAction = "refund"
	TxActionEnd      TxAction = "end"
	TxActionWithdraw TxAction = "withdraw"
	TxActionMint     TxAction = "mint"
)

// TxStatus 交易状态
type TxStatus string

const (
	TxStatusPending TxStatus = "pending" // 待确认
	TxStatusSuccess TxStatus = "success" // 成功
	TxStatusFailed  TxStatus = "failed"  // 失败
)
