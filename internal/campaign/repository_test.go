package campaign_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blues/tcf/internal/campaign"
	"github.com/blues/tcf/internal/campaign/campaigntest"
	"github.com/blues/tcf/internal/errs"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b1"
	carol = "0x00000000000000000000000000000000000000c1"
)

var deadline = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

func newRepo(t *testing.T) (*campaign.Repository, *campaigntest.Backend) {
	t.Helper()
	backend := campaigntest.NewBackend()
	return campaign.NewRepository(backend), backend
}

func TestListCampaignsEmpty(t *testing.T) {
	repo, _ := newRepo(t)

	campaigns, err := repo.ListCampaigns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, campaigns)
	assert.Empty(t, campaigns)
}

func TestListCampaignsParsesTuples(t *testing.T) {
	repo, backend := newRepo(t)

	first := campaigntest.Campaign(alice, "Solar Roof", deadline)
	first.AmountCollected = "1.5"
	first.TokensSold = "1500"
	backend.Add(first, model.Donation{Donator: bob, Donation: "1.5"})
	backend.Add(campaigntest.Campaign(bob, "Water Well", deadline))

	campaigns, err := repo.ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 2)

	c := campaigns[0]
	assert.Equal(t, int64(0), c.PId)
	assert.True(t, model.SameAddress(alice, c.Owner))
	assert.Equal(t, "Solar Roof", c.Title)
	assert.Equal(t, "10", c.Target)
	assert.Equal(t, "1.5", c.AmountCollected)
	assert.Equal(t, "0.001", c.TokenPrice)
	assert.Equal(t, "10000", c.TokensForSale)
	assert.Equal(t, "1500", c.TokensSold)
	assert.True(t, deadline.Equal(c.Deadline))
	require.Len(t, c.Donators, 1)
	assert.True(t, model.SameAddress(bob, c.Donators[0]))

	assert.Equal(t, int64(1), campaigns[1].PId)
	assert.Equal(t, "Water Well", campaigns[1].Title)
}

func TestListCampaignsFilters(t *testing.T) {
	repo, backend := newRepo(t)
	backend.Add(campaigntest.Campaign(alice, "A", deadline), model.Donation{Donator: carol, Donation: "1"})
	backend.Add(campaigntest.Campaign(bob, "B", deadline))
	backend.Add(campaigntest.Campaign(alice, "C", deadline))

	owned, err := repo.ListCampaignsByOwner(context.Background(), strings.ToUpper(alice[2:]))
	require.NoError(t, err)
	assert.Empty(t, owned)

	owned, err = repo.ListCampaignsByOwner(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "A", owned[0].Title)
	assert.Equal(t, "C", owned[1].Title)

	funded, err := repo.ListCampaignsFundedBy(context.Background(), common.HexToAddress(carol).Hex())
	require.NoError(t, err)
	require.Len(t, funded, 1)
	assert.Equal(t, "A", funded[0].Title)

	none, err := repo.ListCampaignsByOwner(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetCampaign(t *testing.T) {
	repo, backend := newRepo(t)
	backend.Add(campaigntest.Campaign(alice, "A", deadline))
	pId := backend.Add(campaigntest.Campaign(bob, "B", deadline))

	c, err := repo.GetCampaign(context.Background(), pId)
	require.NoError(t, err)
	assert.Equal(t, pId, c.PId)
	assert.Equal(t, "B", c.Title)

	_, err = repo.GetCampaign(context.Background(), 9)
	assert.ErrorIs(t, err, errs.ErrCampaignNotFound)

	_, err = repo.GetCampaign(context.Background(), -1)
	assert.ErrorIs(t, err, errs.ErrCampaignNotFound)
}

func TestGetDonationsIsCumulative(t *testing.T) {
	repo, backend := newRepo(t)
	pId := backend.Add(campaigntest.Campaign(alice, "A", deadline),
		model.Donation{Donator: bob, Donation: "1"},
		model.Donation{Donator: carol, Donation: "0.25"},
		model.Donation{Donator: bob, Donation: "0.5"},
	)

	donations, err := repo.GetDonations(context.Background(), pId)
	require.NoError(t, err)
	require.Len(t, donations, 2)
	assert.True(t, model.SameAddress(bob, donations[0].Donator))
	assert.Equal(t, "1.5", donations[0].Donation)
	assert.True(t, model.SameAddress(carol, donations[1].Donator))
	assert.Equal(t, "0.25", donations[1].Donation)
}

func TestReadFailuresAreExternal(t *testing.T) {
	repo, backend := newRepo(t)
	rpcErr := errors.New("connection refused")
	backend.CallErrors["getCampaigns"] = rpcErr
	backend.CallErrors["getDonators"] = rpcErr

	_, err := repo.ListCampaigns(context.Background())
	assert.ErrorIs(t, err, errs.ErrExternalCallFailed)
	assert.ErrorIs(t, err, rpcErr)

	var callErr *errs.ExternalCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "getCampaigns", callErr.Method)

	_, err = repo.GetDonations(context.Background(), 0)
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "getDonators", callErr.Method)
}

func TestSubmitDonationApprovesThenDonates(t *testing.T) {
	repo, backend := newRepo(t)
	pId := backend.Add(campaigntest.Campaign(alice, "A", deadline))

	payment, _ := money.ParseUnits("0.1")
	tokens, _ := money.ParseUnits("100")

	submissions, err := repo.SubmitDonation(context.Background(), pId, payment, tokens)
	require.NoError(t, err)
	require.Len(t, submissions, 2)
	assert.Equal(t, model.TxActionApprove, submissions[0].Action)
	assert.Equal(t, model.TxActionDonate, submissions[1].Action)
	assert.Equal(t, payment.String(), submissions[1].Value)

	sent := backend.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "token", sent[0].Contract)
	assert.Equal(t, "approve", sent[0].Method)
	assert.Equal(t, campaigntest.CrowdfundingAddress, sent[0].Args[0])
	assert.Equal(t, tokens, sent[0].Args[1])

	assert.Equal(t, "crowdfunding", sent[1].Contract)
	assert.Equal(t, "donateToCampaign", sent[1].Method)
	assert.Equal(t, payment, sent[1].Value)
	assert.Equal(t, big.NewInt(pId), sent[1].Args[0])

	c, err := repo.GetCampaign(context.Background(), pId)
	require.NoError(t, err)
	assert.Equal(t, "0.1", c.AmountCollected)
	assert.Equal(t, "100", c.TokensSold)
}

func TestSubmitDonationStopsWhenApproveFails(t *testing.T) {
	repo, backend := newRepo(t)
	pId := backend.Add(campaigntest.Campaign(alice, "A", deadline))
	backend.TransactErrors["approve"] = errors.New("insufficient funds")

	_, err := repo.SubmitDonation(context.Background(), pId, big.NewInt(1), big.NewInt(1))

	var callErr *errs.ExternalCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "approve", callErr.Method)
	assert.Empty(t, backend.Sent())
}

func TestConcurrentDonationsKeepApprovalPairs(t *testing.T) {
	repo, backend := newRepo(t)
	pId := backend.Add(campaigntest.Campaign(alice, "A", deadline))

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			amount := big.NewInt(n)
			_, err := repo.SubmitDonation(context.Background(), pId, amount, amount)
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	// 每笔捐赠紧跟在自己的授权之后
	sent := backend.Sent()
	require.Len(t, sent, 16)
	for i := 0; i < len(sent); i += 2 {
		assert.Equal(t, "approve", sent[i].Method)
		assert.Equal(t, "donateToCampaign", sent[i+1].Method)
		assert.Equal(t, sent[i].Args[1], sent[i+1].Value)
	}
}

func TestSubmitRevertedTransaction(t *testing.T) {
	repo, backend := newRepo(t)
	pId := backend.Add(campaigntest.Campaign(alice, "A", deadline))
	backend.MineErrors["endCampaign"] = errors.New("transaction reverted")

	_, err := repo.SubmitEnd(context.Background(), pId)
	assert.ErrorIs(t, err, errs.ErrExternalCallFailed)
	assert.False(t, backend.Campaign(pId).HasEnded)
}

func TestSubmitCreate(t *testing.T) {
	repo, backend := newRepo(t)

	submissions, err := repo.SubmitCreate(context.Background(), &model.CreateCampaignRequest{
		Title:         "Library",
		Description:   "books",
		Target:        "5",
		Deadline:      deadline,
		Category:      "education",
		Image:         "https://example.com/lib.png",
		TokensForSale: "500",
	})
	require.NoError(t, err)
	require.Len(t, submissions, 2)
	assert.Equal(t, []string{"approve", "createCampaign"}, backend.Methods())

	sent := backend.Sent()
	assert.Equal(t, campaigntest.Signer, sent[1].Args[0])
	assert.Equal(t, big.NewInt(deadline.UnixMilli()), sent[1].Args[4])

	c, err := repo.GetCampaign(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Library", c.Title)
	assert.Equal(t, "5", c.Target)
	assert.Equal(t, "500", c.TokensForSale)
	assert.Equal(t, "0.01", c.TokenPrice)
	assert.True(t, deadline.Equal(c.Deadline))
}

func TestSubmitCreateRejectsBadOwner(t *testing.T) {
	repo, backend := newRepo(t)

	_, err := repo.SubmitCreate(context.Background(), &model.CreateCampaignRequest{
		Owner:         "not-an-address",
		Title:         "x",
		Target:        "1",
		Deadline:      deadline,
		TokensForSale: "1",
	})
	assert.ErrorIs(t, err, errs.ErrInvalidCampaign)
	assert.Empty(t, backend.Sent())
}

func TestSubmitLifecycleCalls(t *testing.T) {
	repo, backend := newRepo(t)
	pId := backend.Add(campaigntest.Campaign(alice, "A", deadline))

	_, err := repo.SubmitRefund(context.Background(), pId)
	require.NoError(t, err)
	end, err := repo.SubmitEnd(context.Background(), pId)
	require.NoError(t, err)
	_, err = repo.SubmitWithdraw(context.Background(), pId)
	require.NoError(t, err)

	assert.Equal(t, []string{"refundDonation", "endCampaign", "withdrawCampaignMoney"}, backend.Methods())
	assert.Equal(t, model.TxActionEnd, end.Action)
	assert.Equal(t, pId, end.CampaignId)
	assert.NotZero(t, end.BlockNum)

	state := backend.Campaign(pId)
	assert.True(t, state.HasEnded)
	assert.True(t, state.HasWithdrawed)
}

func TestSubmitReadOnly(t *testing.T) {
	repo, backend := newRepo(t)
	backend.ReadOnly = true

	_, err := repo.SubmitEnd(context.Background(), 0)
	assert.ErrorIs(t, err, errs.ErrExternalCallFailed)
	assert.Equal(t, "", repo.Sender())
}

type recordingObserver struct {
	sent  []model.TxAction
	mined []bool
}

func (o *recordingObserver) TxSent(ctx context.Context, action model.TxAction, campaignId int64, from common.Address, tx *types.Transaction) {
	o.sent = append(o.sent, action)
}

func (o *recordingObserver) TxMined(ctx context.Context, tx *types.Transaction, receipt *types.Receipt, err error) {
	o.mined = append(o.mined, err == nil)
}

func TestObserverSeesEveryTransaction(t *testing.T) {
	backend := campaigntest.NewBackend()
	observer := &recordingObserver{}
	repo := campaign.NewRepository(backend, campaign.WithObserver(observer))
	pId := backend.Add(campaigntest.Campaign(alice, "A", deadline))
	backend.MineErrors["donateToCampaign"] = errors.New("reverted")

	_, err := repo.SubmitDonation(context.Background(), pId, big.NewInt(1), big.NewInt(1))
	require.Error(t, err)

	assert.Equal(t, []model.TxAction{model.TxActionApprove, model.TxActionDonate}, observer.sent)
	assert.Equal(t, []bool{true, false}, observer.mined)
}
