package model

import (
	"time"
)

// Campaign 合约中众筹活动的只读快照，金额均为人类可读的十进制字符串
type Campaign struct {
	PId         int64  `json:"pId"`
	Owner       string `json:"owner"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Image       string `json:"image"`

	// 众筹信息
	Target          string `json:"target"`
	AmountCollected string `json:"amountCollected"`
	TokenPrice      string `json:"tokenPrice"`
	TokensForSale   string `json:"tokensForSale"`
	TokensSold      string `json:"tokensSold"`

	// 截止时间，链上以毫秒存储
	Deadline time.Time `json:"deadline"`

	// 生命周期
	HasEnded       bool `json:"hasEnded"`
	HasWithdrawed  bool `json:"hasWithdrawed"`
	IsWithdrawable bool `json:"isWithdrawable"`
	IsSuccessful   bool `json:"isSuccessful"`

	Donators []string `json:"donators"`
}

// IsOwnedBy 判断地址是否为活动创建者
func (c *Campaign) IsOwnedBy(address string) bool {
	return address != "" && SameAddress(c.Owner, address)
}

// HasDonator 判断地址是否捐赠过
func (c *Campaign) HasDonator(address string) bool {
	for _, d := range c.Donators {
		if SameAddress(d, address) {
			return true
		}
	}
	return false
}

// Donation 单个捐赠者在某活动中的累计捐赠
type Donation struct {
	Donator  string `json:"donator"`
	Donation string `json:"donation"`
}

// CreateCampaignRequest 创建活动请求
type CreateCampaignRequest struct {
	Owner         string    `json:"owner"`
	Title         string    `json:"title" binding:"required"`
	Description   string    `json:"description"`
	Target        string    `json:"target" binding:"required"`
	Deadline      time.Time `json:"deadline" binding:"required"`
	Category      string    `json:"category"`
	Image         string    `json:"image"`
	TokensForSale string    `json:"tokensForSale"`
}

// DefaultTokensForSale 未指定时出售的代币数量
const DefaultTokensForSale = "10000"
