package monitor

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/blues/tcf/internal/chain"
	"github.com/blues/tcf/internal/config"
	"github.com/blues/tcf/internal/logic"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/blues/tcf/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	crowdfundingAddress = common.HexToAddress("0x49F96B98d04e8F2530C4D667b3534c0401B141AC")
	ownerAddress        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	donatorAddress      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type fakeSource struct {
	mu        sync.Mutex
	contracts map[string]*chain.Contract
	current   int64
	logs      []types.Log
	calls     int
	failures  int
}

func (f *fakeSource) GetContracts() map[string]*chain.Contract {
	return f.contracts
}

func (f *fakeSource) GetCurrentBlockNumber(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeSource) GetBatchBlockLogs(ctx context.Context, addrs []common.Address, fromBlock, toBlock int64) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("429 Too Many Requests")
	}

	var logs []types.Log
	for _, l := range f.logs {
		if int64(l.BlockNumber) >= fromBlock && int64(l.BlockNumber) <= toBlock {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

func newContract(t *testing.T, deployBlock int64) *chain.Contract {
	t.Helper()
	contract, err := chain.NewContract(nil, chain.ContractCrowdfunding, config.ContractConfig{
		Address:  crowdfundingAddress.Hex(),
		Enabled:  true,
		BlockNum: deployBlock,
	})
	require.NoError(t, err)
	return contract
}

func newStore(t *testing.T) *logic.EventLogic {
	t.Helper()
	db, err := repository.Init(config.DatabaseConfig{
		Driver: repository.DriverSqlite,
		Path:   filepath.Join(t.TempDir(), "tcf.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close(db) })
	return logic.NewEventLogic(db)
}

func createdLog(t *testing.T, contract *chain.Contract, campaignId int64, block uint64, txHash string) types.Log {
	t.Helper()
	event := contract.GetABI().Events[model.EventCampaignCreated]
	target, _ := money.ParseUnits("10")
	tokens, _ := money.ParseUnits("10000")
	data, err := event.Inputs.NonIndexed().Pack(target, tokens)
	require.NoError(t, err)

	return types.Log{
		Address:     crowdfundingAddress,
		Topics:      []common.Hash{event.ID, common.BigToHash(big.NewInt(campaignId)), common.BytesToHash(ownerAddress.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(txHash),
	}
}

func donationLog(t *testing.T, contract *chain.Contract, campaignId int64, block uint64, txHash string, index uint) types.Log {
	t.Helper()
	event := contract.GetABI().Events[model.EventDonationReceived]
	amount, _ := money.ParseUnits("0.5")
	tokens, _ := money.ParseUnits("500")
	data, err := event.Inputs.NonIndexed().Pack(amount, tokens)
	require.NoError(t, err)

	return types.Log{
		Address:     crowdfundingAddress,
		Topics:      []common.Hash{event.ID, common.BigToHash(big.NewInt(campaignId)), common.BytesToHash(donatorAddress.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(txHash),
		Index:       index,
	}
}

func newMonitor(t *testing.T, source *fakeSource, store EventStore, opts Options) *EventMonitor {
	t.Helper()
	m, err := NewEventMonitor(source, store, opts)
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m
}

func TestToEventModel(t *testing.T) {
	contract := newContract(t, 0)
	log := donationLog(t, contract, 4, 12, "0x0c", 2)

	data, err := contract.ParseEvent(log)
	require.NoError(t, err)
	event, err := ToEventModel(contract, log, data)
	require.NoError(t, err)

	assert.Equal(t, model.EventDonationReceived, event.EventType)
	assert.Equal(t, int64(4), event.CampaignId)
	assert.Equal(t, donatorAddress.Hex(), event.Account)
	assert.Equal(t, "0.5", event.Amount)
	assert.Equal(t, int64(12), event.BlockNum)
	assert.Equal(t, int64(2), event.LogIndex)
	assert.Contains(t, event.Data, "DonationReceived")
}

func TestPollIndexesConfirmedEvents(t *testing.T) {
	contract := newContract(t, 5)
	source := &fakeSource{
		contracts: map[string]*chain.Contract{chain.ContractCrowdfunding: contract},
		current:   20,
		logs: []types.Log{
			createdLog(t, contract, 0, 6, "0x01"),
			donationLog(t, contract, 0, 9, "0x02", 0),
			donationLog(t, contract, 0, 9, "0x02", 1),
			donationLog(t, contract, 0, 18, "0x03", 0),
		},
	}
	store := newStore(t)
	m := newMonitor(t, source, store, Options{BatchSize: 4, Workers: 2, Confirmations: 5})

	require.NoError(t, m.Poll(context.Background()))

	events, total, err := store.GetEvents(0, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, events, 3)
	assert.Equal(t, int64(16), m.GetStatus()["next_block"].(int64)-1)

	source.current = 30
	require.NoError(t, m.Poll(context.Background()))
	_, total, err = store.GetEvents(0, model.EventDonationReceived, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestPollIsIdempotentAcrossRestarts(t *testing.T) {
	contract := newContract(t, 0)
	source := &fakeSource{
		contracts: map[string]*chain.Contract{chain.ContractCrowdfunding: contract},
		current:   10,
		logs:      []types.Log{createdLog(t, contract, 0, 3, "0x01")},
	}
	store := newStore(t)

	first := newMonitor(t, source, store, Options{})
	require.NoError(t, first.Poll(context.Background()))

	// 新实例从已处理的区块之后继续
	second := newMonitor(t, source, store, Options{})
	assert.Equal(t, int64(4), second.getStartBlockNum())

	second.updateStartBlockNum(1)
	require.NoError(t, second.Poll(context.Background()))

	_, total, err := store.GetEvents(-1, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPollRetriesLogFetch(t *testing.T) {
	contract := newContract(t, 0)
	source := &fakeSource{
		contracts: map[string]*chain.Contract{chain.ContractCrowdfunding: contract},
		current:   5,
		logs:      []types.Log{createdLog(t, contract, 0, 2, "0x01")},
		failures:  1,
	}
	store := newStore(t)
	m := newMonitor(t, source, store, Options{})

	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, 2, source.calls)

	_, total, err := store.GetEvents(0, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPollSkipsContractsNotYetDeployed(t *testing.T) {
	contract := newContract(t, 100)
	source := &fakeSource{
		contracts: map[string]*chain.Contract{chain.ContractCrowdfunding: contract},
		current:   50,
	}
	m := newMonitor(t, source, newStore(t), Options{})

	require.NoError(t, m.Poll(context.Background()))
	assert.Zero(t, source.calls)
}

func TestHandleErrorPausesPolling(t *testing.T) {
	source := &fakeSource{contracts: map[string]*chain.Contract{}}
	m := newMonitor(t, source, newStore(t), Options{})

	m.handleError(errors.New("429 Too Many Requests"))
	assert.True(t, m.paused())
	assert.Equal(t, 1, m.GetStatus()["retry_count"])

	m.resetError()
	assert.False(t, m.paused())
}
