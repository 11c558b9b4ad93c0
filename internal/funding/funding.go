// Package funding 校验用户操作并计算提交给合约的金额。
//
// 所有校验函数只依赖传入的活动快照、输入与当前时间，不做任何 I/O。
package funding

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/blues/tcf/internal/errs"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
)

// DonationQuote 捐赠报价，均为定点整数
type DonationQuote struct {
	TokenAmount *big.Int
	Payment     *big.Int
}

// RefundQuote 退款信息
type RefundQuote struct {
	Donation    *big.Int
	OwnedTokens *big.Int
}

// AvailableTokens 剩余可购买的代币数量（定点整数）
func AvailableTokens(c *model.Campaign) (*big.Int, error) {
	available, err := money.Sub(c.TokensForSale, c.TokensSold)
	if err != nil {
		return nil, errs.ContractData(c.PId, "token counts", err)
	}
	return available, nil
}

// IsClosed 活动已结束或已过截止时间
func IsClosed(c *model.Campaign, now time.Time) bool {
	return c.HasEnded || now.After(c.Deadline)
}

// IsFundable 活动未结束、未过期且仍有代币可售
func IsFundable(c *model.Campaign, now time.Time) bool {
	if IsClosed(c, now) {
		return false
	}
	available, err := AvailableTokens(c)
	return err == nil && available.Sign() > 0
}

// ValidateDonation 校验捐赠并计算需要支付的金额
func ValidateDonation(c *model.Campaign, tokenAmount string, now time.Time) (*DonationQuote, error) {
	amount, err := money.ParseUnits(tokenAmount)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: token amount must be greater than 0", errs.ErrInvalidAmount)
	}

	if c.HasEnded {
		return nil, fmt.Errorf("%w: campaign %d has ended", errs.ErrCampaignClosed, c.PId)
	}
	if now.After(c.Deadline) {
		return nil, fmt.Errorf("%w: campaign %d passed its deadline", errs.ErrCampaignClosed, c.PId)
	}

	available, err := AvailableTokens(c)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(available) > 0 {
		return nil, fmt.Errorf("%w: only %s tokens are available", errs.ErrInvalidAmount, money.FormatUnits(available))
	}

	price, err := money.ParseUnits(c.TokenPrice)
	if err != nil {
		return nil, errs.ContractData(c.PId, "token price", err)
	}

	payment := money.MulFixed(amount, price)
	if payment.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s tokens cost less than 1 wei", errs.ErrInvalidAmount, money.FormatUnits(amount))
	}

	return &DonationQuote{
		TokenAmount: amount,
		Payment:     payment,
	}, nil
}

// ValidateRefund 校验退款，record 为调用者的捐赠记录，未捐赠时为 nil
func ValidateRefund(c *model.Campaign, record *model.Donation) (*RefundQuote, error) {
	if record == nil {
		return nil, errs.ErrNotDonator
	}
	// 仅允许在活动结束前退款
	if c.HasEnded {
		return nil, fmt.Errorf("%w: refunds are only possible before campaign %d ends", errs.ErrCampaignClosed, c.PId)
	}

	donation, err := money.ParseUnits(record.Donation)
	if err != nil {
		return nil, errs.ContractData(c.PId, "donation", err)
	}

	return &RefundQuote{
		Donation:    donation,
		OwnedTokens: OwnedTokens(record.Donation, c.TokenPrice),
	}, nil
}

// OwnedTokens 计算 floor(donation / tokenPrice)，价格无效时返回 0
func OwnedTokens(donation, tokenPrice string) *big.Int {
	d, err := money.ParseUnits(donation)
	if err != nil {
		return big.NewInt(0)
	}
	p, err := money.ParseUnits(tokenPrice)
	if err != nil || p.Sign() == 0 {
		return big.NewInt(0)
	}
	return d.Quo(d, p)
}

// ValidateEndCampaign 校验结束活动
func ValidateEndCampaign(c *model.Campaign) error {
	if c.HasWithdrawed || c.HasEnded {
		return errs.ErrAlreadyFinalized
	}
	return nil
}

// ValidateWithdraw 校验提取资金
func ValidateWithdraw(c *model.Campaign) error {
	if c.HasWithdrawed {
		return errs.ErrAlreadyWithdrawn
	}
	if !c.HasEnded {
		return errs.ErrCampaignNotEnded
	}
	return nil
}

// ValidateCreate 校验创建活动请求
func ValidateCreate(req *model.CreateCampaignRequest, now time.Time) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", errs.ErrInvalidCampaign)
	}
	if !req.Deadline.After(now) {
		return fmt.Errorf("%w: deadline must be in the future", errs.ErrInvalidCampaign)
	}
	if req.Image != "" {
		u, err := url.Parse(req.Image)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: image must be an absolute URL", errs.ErrInvalidCampaign)
		}
	}

	target, err := money.ParseUnits(req.Target)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if target.Sign() <= 0 {
		return fmt.Errorf("%w: target must be greater than 0", errs.ErrInvalidAmount)
	}

	tokens, err := money.ParseUnits(req.TokensForSale)
	if err != nil {
		return fmt.Errorf("tokens for sale: %w", err)
	}
	if tokens.Sign() <= 0 {
		return fmt.Errorf("%w: tokens for sale must be greater than 0", errs.ErrInvalidAmount)
	}

	return nil
}
