// Package campaign 是访问众筹合约的唯一入口。
//
// 仓库只负责调用合约与解析结果：不重试、不做状态修补，同一仓库的提交依次执行，
// 合约调用失败以 errs.ExternalCallError 原样返回给调用方。
package campaign

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/blues/tcf/internal/chain"
	"github.com/blues/tcf/internal/errs"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend 链上调用能力，由 chain.Manager 实现
type Backend interface {
	Call(ctx context.Context, contractName string, result *[]interface{}, method string, args ...interface{}) error
	Transact(ctx context.Context, contractName string, value *big.Int, method string, args ...interface{}) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Address(contractName string) (common.Address, error)
	From() common.Address
}

// TxObserver 交易发送与上链的回调
type TxObserver interface {
	TxSent(ctx context.Context, action model.TxAction, campaignId int64, from common.Address, tx *types.Transaction)
	TxMined(ctx context.Context, tx *types.Transaction, receipt *types.Receipt, err error)
}

// Submission 一笔已上链的交易
type Submission struct {
	Action     model.TxAction `json:"action"`
	CampaignId int64          `json:"campaignId"`
	TxHash     string         `json:"txHash"`
	Value      string         `json:"value"`
	BlockNum   uint64         `json:"blockNum"`
}

// 合约方法名称
const (
	methodCreateCampaign   = "createCampaign"
	methodGetCampaigns     = "getCampaigns"
	methodGetCampaignById  = "getCampaignById"
	methodGetDonators      = "getDonators"
	methodDonateToCampaign = "donateToCampaign"
	methodRefundDonation   = "refundDonation"
	methodEndCampaign      = "endCampaign"
	methodWithdraw         = "withdrawCampaignMoney"
	methodApprove          = "approve"
	methodMint             = "mint"
)

// campaignTuple 与合约 Campaign 结构体一一对应
type campaignTuple struct {
	Owner           common.Address
	Title           string
	Description     string
	Category        string
	Target          *big.Int
	Deadline        *big.Int
	AmountCollected *big.Int
	Image           string
	TokenPrice      *big.Int
	TokensForSale   *big.Int
	TokensSold      *big.Int
	HasEnded        bool
	HasWithdrawed   bool
	IsWithdrawable  bool
	IsSuccessful    bool
	Contributors    []common.Address
	Donations       []*big.Int
}

// Repository 众筹合约仓库
type Repository struct {
	backend  Backend
	observer TxObserver

	// 串行化提交，授权与后续调用之间不能插入同一账户的其他授权
	submitMu sync.Mutex
}

// Option 仓库选项
type Option func(*Repository)

// WithObserver 设置交易回调
func WithObserver(observer TxObserver) Option {
	return func(r *Repository) {
		r.observer = observer
	}
}

// NewRepository 创建仓库
func NewRepository(backend Backend, opts ...Option) *Repository {
	r := &Repository{backend: backend}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sender 发送交易的账户地址
func (r *Repository) Sender() string {
	from := r.backend.From()
	if from == (common.Address{}) {
		return ""
	}
	return from.Hex()
}

// ListCampaigns 获取全部活动，pId 为活动在合约中的下标
func (r *Repository) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var out []interface{}
	if err := r.backend.Call(ctx, chain.ContractCrowdfunding, &out, methodGetCampaigns); err != nil {
		return nil, errs.External(methodGetCampaigns, err)
	}

	campaigns := make([]model.Campaign, 0)
	if len(out) == 0 || out[0] == nil {
		return campaigns, nil
	}

	tuples, err := convert[[]campaignTuple](out[0])
	if err != nil {
		return nil, errs.External(methodGetCampaigns, err)
	}

	for i, t := range tuples {
		campaigns = append(campaigns, toCampaign(int64(i), t))
	}
	return campaigns, nil
}

// ListCampaignsByOwner 获取某地址创建的活动
func (r *Repository) ListCampaignsByOwner(ctx context.Context, address string) ([]model.Campaign, error) {
	campaigns, err := r.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByOwner(campaigns, address), nil
}

// ListCampaignsFundedBy 获取某地址捐赠过的活动
func (r *Repository) ListCampaignsFundedBy(ctx context.Context, address string) ([]model.Campaign, error) {
	campaigns, err := r.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByDonator(campaigns, address), nil
}

// GetCampaign 按下标直接读取单个活动
func (r *Repository) GetCampaign(ctx context.Context, pId int64) (*model.Campaign, error) {
	if pId < 0 {
		return nil, fmt.Errorf("%w: %d", errs.ErrCampaignNotFound, pId)
	}

	var out []interface{}
	if err := r.backend.Call(ctx, chain.ContractCrowdfunding, &out, methodGetCampaignById, big.NewInt(pId)); err != nil {
		return nil, errs.External(methodGetCampaignById, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d", errs.ErrCampaignNotFound, pId)
	}

	t, err := convert[campaignTuple](out[0])
	if err != nil {
		return nil, errs.External(methodGetCampaignById, err)
	}
	// 不存在的下标返回零值结构体
	if t.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: %d", errs.ErrCampaignNotFound, pId)
	}

	c := toCampaign(pId, t)
	return &c, nil
}

// GetDonations 获取活动的捐赠记录，同一捐赠者的多笔捐赠累加为一条
func (r *Repository) GetDonations(ctx context.Context, pId int64) ([]model.Donation, error) {
	var out []interface{}
	if err := r.backend.Call(ctx, chain.ContractCrowdfunding, &out, methodGetDonators, big.NewInt(pId)); err != nil {
		return nil, errs.External(methodGetDonators, err)
	}
	if len(out) < 2 {
		return []model.Donation{}, nil
	}

	donators, err := convert[[]common.Address](out[0])
	if err != nil {
		return nil, errs.External(methodGetDonators, err)
	}
	amounts, err := convert[[]*big.Int](out[1])
	if err != nil {
		return nil, errs.External(methodGetDonators, err)
	}
	if len(donators) != len(amounts) {
		return nil, errs.External(methodGetDonators,
			fmt.Errorf("donator count %d does not match donation count %d", len(donators), len(amounts)))
	}

	return aggregateDonations(donators, amounts), nil
}

// SubmitCreate 授权代币后创建活动
func (r *Repository) SubmitCreate(ctx context.Context, req *model.CreateCampaignRequest) ([]Submission, error) {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	target, err := money.ParseUnits(req.Target)
	if err != nil {
		return nil, err
	}
	tokensForSale, err := money.ParseUnits(req.TokensForSale)
	if err != nil {
		return nil, err
	}

	owner := r.backend.From()
	if req.Owner != "" {
		if !common.IsHexAddress(req.Owner) {
			return nil, fmt.Errorf("%w: invalid owner address %q", errs.ErrInvalidCampaign, req.Owner)
		}
		owner = common.HexToAddress(req.Owner)
	}

	approval, err := r.approve(ctx, -1, tokensForSale)
	if err != nil {
		return nil, err
	}

	created, err := r.submit(ctx, model.TxActionCreate, -1, nil, methodCreateCampaign,
		owner,
		req.Title,
		req.Description,
		target,
		big.NewInt(req.Deadline.UnixMilli()),
		req.Category,
		req.Image,
		tokensForSale,
	)
	if err != nil {
		return []Submission{*approval}, err
	}

	return []Submission{*approval, *created}, nil
}

// SubmitDonation 授权代币后向活动捐赠，payment 随交易转账
func (r *Repository) SubmitDonation(ctx context.Context, pId int64, payment, tokenAmount *big.Int) ([]Submission, error) {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	approval, err := r.approve(ctx, pId, tokenAmount)
	if err != nil {
		return nil, err
	}

	donated, err := r.submit(ctx, model.TxActionDonate, pId, payment, methodDonateToCampaign, big.NewInt(pId))
	if err != nil {
		return []Submission{*approval}, err
	}

	return []Submission{*approval, *donated}, nil
}

// SubmitRefund 申请退款
func (r *Repository) SubmitRefund(ctx context.Context, pId int64) (*Submission, error) {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	return r.submit(ctx, model.TxActionRefund, pId, nil, methodRefundDonation, big.NewInt(pId))
}

// SubmitEnd 结束活动
func (r *Repository) SubmitEnd(ctx context.Context, pId int64) (*Submission, error) {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	return r.submit(ctx, model.TxActionEnd, pId, nil, methodEndCampaign, big.NewInt(pId))
}

// SubmitWithdraw 提取活动资金
func (r *Repository) SubmitWithdraw(ctx context.Context, pId int64) (*Submission, error) {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	return r.submit(ctx, model.TxActionWithdraw, pId, nil, methodWithdraw, big.NewInt(pId))
}

// SubmitMint 铸造测试代币，只用于本地链
func (r *Repository) SubmitMint(ctx context.Context, to string, amount *big.Int) (*Submission, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: invalid recipient address %q", errs.ErrInvalidAmount, to)
	}

	r.submitMu.Lock()
	defer r.submitMu.Unlock()
	return r.submitTo(ctx, chain.ContractToken, model.TxActionMint, -1, nil, methodMint, common.HexToAddress(to), amount)
}

// approve 授权众筹合约使用代币
func (r *Repository) approve(ctx context.Context, pId int64, amount *big.Int) (*Submission, error) {
	spender, err := r.backend.Address(chain.ContractCrowdfunding)
	if err != nil {
		return nil, errs.External(methodApprove, err)
	}
	return r.submitTo(ctx, chain.ContractToken, model.TxActionApprove, pId, nil, methodApprove, spender, amount)
}

func (r *Repository) submit(ctx context.Context, action model.TxAction, pId int64, value *big.Int, method string, args ...interface{}) (*Submission, error) {
	return r.submitTo(ctx, chain.ContractCrowdfunding, action, pId, value, method, args...)
}

// submitTo 发送交易并等待上链
func (r *Repository) submitTo(ctx context.Context, contractName string, action model.TxAction, pId int64, value *big.Int, method string, args ...interface{}) (*Submission, error) {
	tx, err := r.backend.Transact(ctx, contractName, value, method, args...)
	if err != nil {
		return nil, errs.External(method, err)
	}
	if r.observer != nil {
		r.observer.TxSent(ctx, action, pId, r.backend.From(), tx)
	}

	receipt, err := r.backend.WaitMined(ctx, tx)
	if r.observer != nil {
		r.observer.TxMined(ctx, tx, receipt, err)
	}
	if err != nil {
		return nil, errs.External(method, err)
	}

	submission := &Submission{
		Action:     action,
		CampaignId: pId,
		TxHash:     tx.Hash().Hex(),
		Value:      "0",
	}
	if value != nil {
		submission.Value = value.String()
	}
	if receipt != nil && receipt.BlockNumber != nil {
		submission.BlockNum = receipt.BlockNumber.Uint64()
	}
	return submission, nil
}

// FilterByOwner 过滤某地址创建的活动
func FilterByOwner(campaigns []model.Campaign, address string) []model.Campaign {
	result := make([]model.Campaign, 0)
	for _, c := range campaigns {
		if c.IsOwnedBy(address) {
			result = append(result, c)
		}
	}
	return result
}

// FilterByDonator 过滤某地址捐赠过的活动
func FilterByDonator(campaigns []model.Campaign, address string) []model.Campaign {
	result := make([]model.Campaign, 0)
	for _, c := range campaigns {
		if c.HasDonator(address) {
			result = append(result, c)
		}
	}
	return result
}

func toCampaign(pId int64, t campaignTuple) model.Campaign {
	donators := make([]string, 0, len(t.Contributors))
	for _, d := range t.Contributors {
		donators = append(donators, d.Hex())
	}

	return model.Campaign{
		PId:             pId,
		Owner:           t.Owner.Hex(),
		Title:           t.Title,
		Description:     t.Description,
		Category:        t.Category,
		Image:           t.Image,
		Target:          money.FormatUnits(t.Target),
		AmountCollected: money.FormatUnits(t.AmountCollected),
		TokenPrice:      money.FormatUnits(t.TokenPrice),
		TokensForSale:   money.FormatUnits(t.TokensForSale),
		TokensSold:      money.FormatUnits(t.TokensSold),
		Deadline:        deadlineFromChain(t.Deadline),
		HasEnded:        t.HasEnded,
		HasWithdrawed:   t.HasWithdrawed,
		IsWithdrawable:  t.IsWithdrawable,
		IsSuccessful:    t.IsSuccessful,
		Donators:        donators,
	}
}

// deadlineFromChain 合约中的截止时间单位为毫秒
func deadlineFromChain(v *big.Int) time.Time {
	if v == nil || !v.IsInt64() {
		return time.UnixMilli(0).UTC()
	}
	return time.UnixMilli(v.Int64()).UTC()
}

func aggregateDonations(donators []common.Address, amounts []*big.Int) []model.Donation {
	totals := make(map[common.Address]*big.Int, len(donators))
	order := make([]common.Address, 0, len(donators))

	for i, d := range donators {
		total, ok := totals[d]
		if !ok {
			total = new(big.Int)
			totals[d] = total
			order = append(order, d)
		}
		if amounts[i] != nil {
			total.Add(total, amounts[i])
		}
	}

	donations := make([]model.Donation, 0, len(order))
	for _, d := range order {
		donations = append(donations, model.Donation{
			Donator:  d.Hex(),
			Donation: money.FormatUnits(totals[d]),
		})
	}
	return donations
}

// convert 将 abi 解码结果转换为具体类型
func convert[T any](in interface{}) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected contract output %T: %v", in, r)
		}
	}()
	return *abi.ConvertType(in, new(T)).(*T), nil
}
