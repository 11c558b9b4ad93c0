package handler

import (
	"github.com/blues/tcf/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// NewPagination 计算总页数
func NewPagination(page, pageSize int, total int64) Pagination {
	totalPage := int64(0)
	if pageSize > 0 {
		totalPage = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}
}

// DonateRequest 捐赠请求，tokenAmount 为要购买的代币数量
type DonateRequest struct {
	TokenAmount string `json:"tokenAmount" binding:"required"`
}

// GetCampaignsResponse 活动列表响应
type GetCampaignsResponse struct {
	Campaigns []model.Campaign `json:"campaigns"`
	Total     int              `json:"total"`
}

// GetDonatorsResponse 捐赠者列表响应
type GetDonatorsResponse struct {
	Donations []model.Donation `json:"donations"`
}

// GetTransactionsResponse 交易记录响应
type GetTransactionsResponse struct {
	Transactions []model.TxRecordModel `json:"transactions"`
	Pagination   Pagination            `json:"pagination"`
}

// GetEventsResponse 活动事件响应
type GetEventsResponse struct {
	Events     []model.CampaignEventModel `json:"events"`
	Pagination Pagination                 `json:"pagination"`
}
