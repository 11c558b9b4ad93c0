package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/tcf/internal/logic"
	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

// RecordHandler 交易记录与合约事件接口
type RecordHandler struct {
	txLogic    *logic.TxRecordLogic
	eventLogic *logic.EventLogic
}

// NewRecordHandler 创建记录接口
func NewRecordHandler(txLogic *logic.TxRecordLogic, eventLogic *logic.EventLogic) *RecordHandler {
	return &RecordHandler{
		txLogic:    txLogic,
		eventLogic: eventLogic,
	}
}

// GetTransactions 获取本服务提交的交易，支持 campaign_id、sender 过滤
func (h *RecordHandler) GetTransactions(c *gin.Context) {
	page, pageSize := pageParams(c)

	campaignId := int64(-1)
	if raw := c.Query("campaign_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "无效的活动ID")
			return
		}
		campaignId = id
	}

	records, total, err := h.txLogic.GetTxRecords(campaignId, c.Query("sender"), page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取交易记录成功", GetTransactionsResponse{
		Transactions: records,
		Pagination:   NewPagination(page, pageSize, total),
	})
}

// GetCampaignEvents 获取活动的链上事件，支持 type 过滤
func (h *RecordHandler) GetCampaignEvents(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	events, total, err := h.eventLogic.GetEvents(pId, c.Query("type"), page, pageSize)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "获取活动事件成功", GetEventsResponse{
		Events:     events,
		Pagination: NewPagination(page, pageSize, total),
	})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = 10
	}
	return page, pageSize
}
