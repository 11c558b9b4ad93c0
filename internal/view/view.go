// Package view 从活动快照派生展示字段，不修改快照本身。
package view

import (
	"strings"
	"time"

	"github.com/blues/tcf/internal/funding"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// 活动状态标签
const (
	StatusActive = "Active"
	StatusEnded  = "Ended"
)

// DaysLeft 计算剩余天数，向上取整，过期后为 0
func DaysLeft(deadline, now time.Time) int {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := remaining / day
	if remaining%day != 0 {
		days++
	}
	return int(days)
}

// CampaignDaysLeft 已结束的活动剩余天数为 0
func CampaignDaysLeft(c *model.Campaign, now time.Time) int {
	if c.HasEnded {
		return 0
	}
	return DaysLeft(c.Deadline, now)
}

// PercentFunded 计算筹款进度百分比，范围 0..100；目标为 0 或无法解析时返回 0
func PercentFunded(target, amountCollected string) float64 {
	t, err := decimal.NewFromString(strings.TrimSpace(target))
	if err != nil || t.Sign() <= 0 {
		return 0
	}
	collected, err := decimal.NewFromString(strings.TrimSpace(amountCollected))
	if err != nil || collected.Sign() <= 0 {
		return 0
	}

	percent := collected.Mul(decimal.NewFromInt(100)).Div(t)
	if percent.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	return percent.InexactFloat64()
}

// DonatorIndex 返回地址在捐赠者列表中的第一个位置，不存在时返回 -1
func DonatorIndex(donators []string, address string) int {
	for i, d := range donators {
		if model.SameAddress(d, address) {
			return i
		}
	}
	return -1
}

// FindDonation 查找地址对应的捐赠记录
func FindDonation(donations []model.Donation, address string) *model.Donation {
	for i := range donations {
		if model.SameAddress(donations[i].Donator, address) {
			return &donations[i]
		}
	}
	return nil
}

// Search 按标题、描述、分类做不区分大小写的关键字过滤
func Search(campaigns []model.Campaign, keyword string) []model.Campaign {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return campaigns
	}

	result := make([]model.Campaign, 0)
	for _, c := range campaigns {
		if strings.Contains(strings.ToLower(c.Title), keyword) ||
			strings.Contains(strings.ToLower(c.Description), keyword) ||
			strings.Contains(strings.ToLower(c.Category), keyword) {
			result = append(result, c)
		}
	}
	return result
}

// CampaignView 活动详情页展示模型
type CampaignView struct {
	model.Campaign

	DaysLeft        int     `json:"daysLeft"`
	PercentFunded   float64 `json:"percentFunded"`
	AvailableTokens string  `json:"availableTokens"`
	Status          string  `json:"status"`
	BackerCount     int     `json:"backerCount"`

	Donations []model.Donation `json:"donations"`

	// 与查看者相关的字段
	IsOwner      bool   `json:"isOwner"`
	DonatorIndex int    `json:"donatorIndex"`
	OwnedTokens  string `json:"ownedTokens"`
	CanFund      bool   `json:"canFund"`
	CanRefund    bool   `json:"canRefund"`
	CanEnd       bool   `json:"canEnd"`
	CanWithdraw  bool   `json:"canWithdraw"`
}

// Build 组装活动详情，viewer 为空表示未连接钱包
func Build(c *model.Campaign, donations []model.Donation, viewer string, now time.Time) CampaignView {
	v := CampaignView{
		Campaign:      *c,
		DaysLeft:      CampaignDaysLeft(c, now),
		PercentFunded: PercentFunded(c.Target, c.AmountCollected),
		Status:        StatusActive,
		BackerCount:   len(donations),
		Donations:     donations,
		DonatorIndex:  -1,
		OwnedTokens:   "0",
	}
	if v.Donations == nil {
		v.Donations = []model.Donation{}
	}
	if c.HasEnded {
		v.Status = StatusEnded
	}
	if available, err := funding.AvailableTokens(c); err == nil {
		v.AvailableTokens = money.FormatUnits(available)
	}

	if viewer == "" {
		return v
	}

	v.IsOwner = c.IsOwnedBy(viewer)
	if v.IsOwner {
		v.CanEnd = funding.ValidateEndCampaign(c) == nil
		v.CanWithdraw = funding.ValidateWithdraw(c) == nil
		return v
	}

	v.CanFund = funding.IsFundable(c, now)
	v.DonatorIndex = indexOfDonation(donations, viewer)
	if record := FindDonation(donations, viewer); record != nil {
		v.OwnedTokens = funding.OwnedTokens(record.Donation, c.TokenPrice).String()
		_, err := funding.ValidateRefund(c, record)
		v.CanRefund = err == nil
	}
	return v
}

func indexOfDonation(donations []model.Donation, address string) int {
	donators := make([]string, len(donations))
	for i, d := range donations {
		donators[i] = d.Donator
	}
	return DonatorIndex(donators, address)
}
