// Package service 组合仓库、校验规则与展示模型，对外提供众筹活动的全部操作。
package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/blues/tcf/internal/campaign"
	"github.com/blues/tcf/internal/errs"
	"github.com/blues/tcf/internal/funding"
	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/blues/tcf/internal/view"
)

// 操作名称，出现在错误信息中
const (
	ActionRefresh  = "refresh campaigns"
	ActionGet      = "get campaign"
	ActionQuote    = "quote donation"
	ActionCreate   = "create campaign"
	ActionDonate   = "donate"
	ActionRefund   = "refund"
	ActionEnd      = "end campaign"
	ActionWithdraw = "withdraw"
)

// Repository 合约仓库
type Repository interface {
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
	GetCampaign(ctx context.Context, pId int64) (*model.Campaign, error)
	GetDonations(ctx context.Context, pId int64) ([]model.Donation, error)
	SubmitCreate(ctx context.Context, req *model.CreateCampaignRequest) ([]campaign.Submission, error)
	SubmitDonation(ctx context.Context, pId int64, payment, tokenAmount *big.Int) ([]campaign.Submission, error)
	SubmitRefund(ctx context.Context, pId int64) (*campaign.Submission, error)
	SubmitEnd(ctx context.Context, pId int64) (*campaign.Submission, error)
	SubmitWithdraw(ctx context.Context, pId int64) (*campaign.Submission, error)
	Sender() string
}

// Quote 捐赠报价
type Quote struct {
	CampaignId      int64  `json:"campaignId"`
	TokenAmount     string `json:"tokenAmount"`
	Payment         string `json:"payment"`
	PaymentWei      string `json:"paymentWei"`
	AvailableTokens string `json:"availableTokens"`
}

// Result 一次用户操作的结果
type Result struct {
	Action       string                `json:"action"`
	CampaignId   int64                 `json:"campaignId"`
	Submissions  []campaign.Submission `json:"submissions"`
	Payment      string                `json:"payment,omitempty"`
	TokenAmount  string                `json:"tokenAmount,omitempty"`
	RefreshError string                `json:"refreshError,omitempty"`
}

// CampaignService 众筹活动服务
type CampaignService struct {
	repo Repository
	now  func() time.Time

	mu        sync.RWMutex
	campaigns []model.Campaign
	updatedAt time.Time
	closed    bool
}

// Option 服务选项
type Option func(*CampaignService)

// WithClock 设置时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(s *CampaignService) {
		s.now = now
	}
}

// New 创建众筹活动服务
func New(repo Repository, opts ...Option) *CampaignService {
	s := &CampaignService{
		repo:      repo,
		now:       time.Now,
		campaigns: []model.Campaign{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close 释放快照，之后的调用返回错误
func (s *CampaignService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.campaigns = nil
	return nil
}

// Sender 发送交易的账户，只读模式下为空
func (s *CampaignService) Sender() string {
	return s.repo.Sender()
}

// Refresh 重新拉取全部活动并整体替换快照
func (s *CampaignService) Refresh(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return errs.Action(ActionRefresh, err)
	}

	campaigns, err := s.repo.ListCampaigns(ctx)
	if err != nil {
		return errs.Action(ActionRefresh, err)
	}

	s.mu.Lock()
	s.campaigns = campaigns
	s.updatedAt = s.now()
	s.mu.Unlock()

	logger.Debug("Refreshed %d campaigns", len(campaigns))
	return nil
}

// UpdatedAt 快照更新时间
func (s *CampaignService) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Campaigns 当前快照中的全部活动
func (s *CampaignService) Campaigns() []model.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Campaign{}, s.campaigns...)
}

// CampaignsByOwner 某地址创建的活动
func (s *CampaignService) CampaignsByOwner(address string) []model.Campaign {
	return campaign.FilterByOwner(s.Campaigns(), address)
}

// CampaignsFundedBy 某地址捐赠过的活动
func (s *CampaignService) CampaignsFundedBy(address string) []model.Campaign {
	return campaign.FilterByDonator(s.Campaigns(), address)
}

// Search 按关键字搜索快照
func (s *CampaignService) Search(keyword string) []model.Campaign {
	return view.Search(s.Campaigns(), keyword)
}

// Campaign 从合约读取最新的单个活动
func (s *CampaignService) Campaign(ctx context.Context, pId int64) (*model.Campaign, error) {
	if err := s.checkOpen(); err != nil {
		return nil, errs.Action(ActionGet, err)
	}
	c, err := s.repo.GetCampaign(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionGet, err)
	}
	return c, nil
}

// Donations 活动的累计捐赠记录
func (s *CampaignService) Donations(ctx context.Context, pId int64) ([]model.Donation, error) {
	if err := s.checkOpen(); err != nil {
		return nil, errs.Action(ActionGet, err)
	}
	donations, err := s.repo.GetDonations(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionGet, err)
	}
	return donations, nil
}

// Details 活动详情，viewer 为查看者地址，可为空
func (s *CampaignService) Details(ctx context.Context, pId int64, viewer string) (*view.CampaignView, error) {
	c, err := s.Campaign(ctx, pId)
	if err != nil {
		return nil, err
	}
	donations, err := s.Donations(ctx, pId)
	if err != nil {
		return nil, err
	}

	v := view.Build(c, donations, viewer, s.now())
	return &v, nil
}

// Quote 计算购买 tokenAmount 个代币需要支付的金额
func (s *CampaignService) Quote(ctx context.Context, pId int64, tokenAmount string) (*Quote, error) {
	c, err := s.Campaign(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionQuote, unwrapAction(err))
	}

	quote, err := funding.ValidateDonation(c, tokenAmount, s.now())
	if err != nil {
		return nil, errs.Action(ActionQuote, err)
	}

	available, _ := funding.AvailableTokens(c)
	return &Quote{
		CampaignId:      pId,
		TokenAmount:     money.FormatUnits(quote.TokenAmount),
		Payment:         money.FormatUnits(quote.Payment),
		PaymentWei:      quote.Payment.String(),
		AvailableTokens: money.FormatUnits(available),
	}, nil
}

// Create 创建活动
func (s *CampaignService) Create(ctx context.Context, req *model.CreateCampaignRequest) (*Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, errs.Action(ActionCreate, err)
	}
	// 补全默认值时不修改调用方的请求
	create := *req
	if create.TokensForSale == "" {
		create.TokensForSale = model.DefaultTokensForSale
	}
	if err := funding.ValidateCreate(&create, s.now()); err != nil {
		return nil, errs.Action(ActionCreate, err)
	}

	submissions, err := s.repo.SubmitCreate(ctx, &create)
	if err != nil {
		return nil, errs.Action(ActionCreate, err)
	}

	logger.Info("Campaign %q created by %s", create.Title, s.repo.Sender())
	return s.finish(ctx, ActionCreate, -1, submissions), nil
}

// Donate 购买 tokenAmount 个代币，支付金额由代币价格计算
func (s *CampaignService) Donate(ctx context.Context, pId int64, tokenAmount string) (*Result, error) {
	c, err := s.Campaign(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionDonate, unwrapAction(err))
	}

	quote, err := funding.ValidateDonation(c, tokenAmount, s.now())
	if err != nil {
		return nil, errs.Action(ActionDonate, err)
	}

	submissions, err := s.repo.SubmitDonation(ctx, pId, quote.Payment, quote.TokenAmount)
	if err != nil {
		return nil, errs.Action(ActionDonate, err)
	}

	logger.Info("Donated %s to campaign %d for %s tokens", money.FormatUnits(quote.Payment), pId, money.FormatUnits(quote.TokenAmount))
	result := s.finish(ctx, ActionDonate, pId, submissions)
	result.Payment = money.FormatUnits(quote.Payment)
	result.TokenAmount = money.FormatUnits(quote.TokenAmount)
	return result, nil
}

// Refund 退回发送者在活动中的全部捐赠
func (s *CampaignService) Refund(ctx context.Context, pId int64) (*Result, error) {
	c, err := s.Campaign(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionRefund, unwrapAction(err))
	}
	donations, err := s.Donations(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionRefund, unwrapAction(err))
	}

	quote, err := funding.ValidateRefund(c, view.FindDonation(donations, s.repo.Sender()))
	if err != nil {
		return nil, errs.Action(ActionRefund, err)
	}

	submission, err := s.repo.SubmitRefund(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionRefund, err)
	}

	logger.Info("Refunded %s from campaign %d", money.FormatUnits(quote.Donation), pId)
	result := s.finish(ctx, ActionRefund, pId, []campaign.Submission{*submission})
	result.Payment = money.FormatUnits(quote.Donation)
	return result, nil
}

// End 结束活动
func (s *CampaignService) End(ctx context.Context, pId int64) (*Result, error) {
	c, err := s.Campaign(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionEnd, unwrapAction(err))
	}
	if err := funding.ValidateEndCampaign(c); err != nil {
		return nil, errs.Action(ActionEnd, err)
	}

	submission, err := s.repo.SubmitEnd(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionEnd, err)
	}

	logger.Info("Campaign %d ended", pId)
	return s.finish(ctx, ActionEnd, pId, []campaign.Submission{*submission}), nil
}

// Withdraw 提取已结束活动的资金
func (s *CampaignService) Withdraw(ctx context.Context, pId int64) (*Result, error) {
	c, err := s.Campaign(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionWithdraw, unwrapAction(err))
	}
	if err := funding.ValidateWithdraw(c); err != nil {
		return nil, errs.Action(ActionWithdraw, err)
	}

	submission, err := s.repo.SubmitWithdraw(ctx, pId)
	if err != nil {
		return nil, errs.Action(ActionWithdraw, err)
	}

	logger.Info("Campaign %d withdrawn", pId)
	return s.finish(ctx, ActionWithdraw, pId, []campaign.Submission{*submission}), nil
}

// finish 交易成功后重新拉取快照，刷新失败不影响已上链的结果
func (s *CampaignService) finish(ctx context.Context, action string, pId int64, submissions []campaign.Submission) *Result {
	result := &Result{
		Action:      action,
		CampaignId:  pId,
		Submissions: submissions,
	}
	if err := s.Refresh(ctx); err != nil {
		logger.Warn("Failed to refresh campaigns after %s: %v", action, err)
		result.RefreshError = err.Error()
	}
	return result
}

func (s *CampaignService) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("campaign service is closed")
	}
	return nil
}

// unwrapAction 去掉内层操作名，避免错误信息重复
func unwrapAction(err error) error {
	if actionErr, ok := err.(*errs.ActionError); ok {
		return actionErr.Err
	}
	return err
}
