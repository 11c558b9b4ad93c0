package view

import (
	"testing"
	"time"

	"github.com/blues/tcf/internal/model"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

const (
	owner   = "0x00000000000000000000000000000000000000Aa"
	alice   = "0x00000000000000000000000000000000000000b1"
	bob     = "0x00000000000000000000000000000000000000b2"
	visitor = "0x00000000000000000000000000000000000000c3"
)

func TestDaysLeft(t *testing.T) {
	assert.Equal(t, 1, DaysLeft(now.Add(time.Millisecond), now))
	assert.Equal(t, 1, DaysLeft(now.Add(24*time.Hour), now))
	assert.Equal(t, 2, DaysLeft(now.Add(24*time.Hour+time.Millisecond), now))
	assert.Equal(t, 0, DaysLeft(now, now))
	assert.Equal(t, 0, DaysLeft(now.Add(-72*time.Hour), now))
}

func TestDaysLeftIsNonIncreasing(t *testing.T) {
	deadline := now.Add(10*24*time.Hour + 5*time.Hour)

	prev := DaysLeft(deadline, now)
	for step := time.Duration(0); step <= 12*24*time.Hour; step += 37 * time.Minute {
		cur := DaysLeft(deadline, now.Add(step))
		assert.LessOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, 0)
		prev = cur
	}
	assert.Equal(t, 0, prev)
}

func TestCampaignDaysLeftEnded(t *testing.T) {
	c := &model.Campaign{Deadline: now.Add(5 * 24 * time.Hour), HasEnded: true}
	assert.Equal(t, 0, CampaignDaysLeft(c, now))

	c.HasEnded = false
	assert.Equal(t, 5, CampaignDaysLeft(c, now))
}

func TestPercentFunded(t *testing.T) {
	assert.Equal(t, 40.0, PercentFunded("10", "4"))
	assert.Equal(t, 100.0, PercentFunded("10", "25"))
	assert.Equal(t, 0.0, PercentFunded("0", "4"))
	assert.Equal(t, 0.0, PercentFunded("", "4"))
	assert.Equal(t, 0.0, PercentFunded("10", "0"))
	assert.Equal(t, 12.5, PercentFunded("8", "1"))
}

func TestDonatorIndex(t *testing.T) {
	donators := []string{alice, bob, alice}

	assert.Equal(t, 0, DonatorIndex(donators, alice))
	assert.Equal(t, 1, DonatorIndex(donators, "0x00000000000000000000000000000000000000B2"))
	assert.Equal(t, -1, DonatorIndex(donators, visitor))
	assert.Equal(t, -1, DonatorIndex(donators, ""))
	assert.Equal(t, -1, DonatorIndex(nil, alice))
}

func TestSearch(t *testing.T) {
	campaigns := []model.Campaign{
		{PId: 0, Title: "Solar Roof", Category: "energy"},
		{PId: 1, Title: "Library", Description: "Books for the village school"},
		{PId: 2, Title: "Garden", Category: "Community"},
	}

	assert.Len(t, Search(campaigns, ""), 3)
	assert.Equal(t, int64(0), Search(campaigns, "solar")[0].PId)
	assert.Equal(t, int64(1), Search(campaigns, "SCHOOL")[0].PId)
	assert.Equal(t, int64(2), Search(campaigns, "commun")[0].PId)
	assert.Empty(t, Search(campaigns, "rocket"))
}

func testCampaign() *model.Campaign {
	return &model.Campaign{
		PId:             1,
		Owner:           owner,
		Target:          "10",
		AmountCollected: "4",
		TokenPrice:      "2",
		TokensForSale:   "100",
		TokensSold:      "2",
		Deadline:        now.Add(36 * time.Hour),
		Donators:        []string{alice},
	}
}

func TestBuildForDonator(t *testing.T) {
	c := testCampaign()
	donations := []model.Donation{{Donator: alice, Donation: "4"}}

	v := Build(c, donations, alice, now)

	assert.Equal(t, 2, v.DaysLeft)
	assert.Equal(t, 40.0, v.PercentFunded)
	assert.Equal(t, "98", v.AvailableTokens)
	assert.Equal(t, StatusActive, v.Status)
	assert.Equal(t, 1, v.BackerCount)
	assert.False(t, v.IsOwner)
	assert.Equal(t, 0, v.DonatorIndex)
	assert.Equal(t, "2", v.OwnedTokens)
	assert.True(t, v.CanFund)
	assert.True(t, v.CanRefund)
	assert.False(t, v.CanEnd)
}

func TestBuildForOwner(t *testing.T) {
	c := testCampaign()

	v := Build(c, nil, "0x00000000000000000000000000000000000000aa", now)
	assert.True(t, v.IsOwner)
	assert.True(t, v.CanEnd)
	assert.False(t, v.CanWithdraw)
	assert.False(t, v.CanFund)
	assert.NotNil(t, v.Donations)

	c.HasEnded = true
	v = Build(c, nil, owner, now)
	assert.Equal(t, StatusEnded, v.Status)
	assert.Equal(t, 0, v.DaysLeft)
	assert.False(t, v.CanEnd)
	assert.True(t, v.CanWithdraw)
}

func TestBuildForVisitor(t *testing.T) {
	v := Build(testCampaign(), nil, visitor, now)
	assert.Equal(t, -1, v.DonatorIndex)
	assert.True(t, v.CanFund)
	assert.False(t, v.CanRefund)
	assert.Equal(t, "0", v.OwnedTokens)
}
