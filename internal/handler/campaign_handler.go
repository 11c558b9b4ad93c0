package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/service"
	"github.com/blues/tcf/internal/view"
	"github.com/gin-gonic/gin"
)

// CampaignHandler 众筹活动接口
type CampaignHandler struct {
	service *service.CampaignService
}

// NewCampaignHandler 创建众筹活动接口
func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{service: svc}
}

// GetCampaigns 获取活动列表，支持 owner、donator、q 过滤
func (h *CampaignHandler) GetCampaigns(c *gin.Context) {
	// 首次访问或显式要求时重新拉取快照
	if h.service.UpdatedAt().IsZero() || c.Query("refresh") == "true" {
		if err := h.service.Refresh(c.Request.Context()); err != nil {
			HandleError(c, err)
			return
		}
	}

	var campaigns []model.Campaign
	switch {
	case c.Query("owner") != "":
		campaigns = h.service.CampaignsByOwner(c.Query("owner"))
	case c.Query("donator") != "":
		campaigns = h.service.CampaignsFundedBy(c.Query("donator"))
	default:
		campaigns = h.service.Campaigns()
	}
	if q := c.Query("q"); q != "" {
		campaigns = view.Search(campaigns, q)
	}

	SuccessResponse(c, http.StatusOK, "获取活动列表成功", GetCampaignsResponse{
		Campaigns: campaigns,
		Total:     len(campaigns),
	})
}

// GetCampaign 获取活动详情，viewer 为查看者地址
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}

	details, err := h.service.Details(c.Request.Context(), pId, c.Query("viewer"))
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取活动详情成功", details)
}

// GetDonators 获取活动的捐赠者
func (h *CampaignHandler) GetDonators(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}

	donations, err := h.service.Donations(c.Request.Context(), pId)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "获取捐赠记录成功", GetDonatorsResponse{Donations: donations})
}

// GetQuote 计算购买代币需要支付的金额
func (h *CampaignHandler) GetQuote(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), pId, c.Query("amount"))
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "计算报价成功", quote)
}

// CreateCampaign 创建活动
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req model.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "活动创建成功", result)
}

// Donate 向活动捐赠
func (h *CampaignHandler) Donate(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}

	var req DonateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Donate(c.Request.Context(), pId, req.TokenAmount)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "捐赠成功", result)
}

// Refund 申请退款
func (h *CampaignHandler) Refund(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}

	result, err := h.service.Refund(c.Request.Context(), pId)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "退款成功", result)
}

// End 结束活动
func (h *CampaignHandler) End(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}

	result, err := h.service.End(c.Request.Context(), pId)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "活动已结束", result)
}

// Withdraw 提取活动资金
func (h *CampaignHandler) Withdraw(c *gin.Context) {
	pId, ok := campaignId(c)
	if !ok {
		return
	}

	result, err := h.service.Withdraw(c.Request.Context(), pId)
	if err != nil {
		HandleError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "提取成功", result)
}

// campaignId 解析路径中的活动 ID，失败时已写入响应
func campaignId(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		ErrorResponse(c, http.StatusBadRequest, "无效的活动ID")
		return 0, false
	}
	return id, true
}
