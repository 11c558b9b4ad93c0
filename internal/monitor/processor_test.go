package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blues/tcf/internal/chain"
	"github.com/blues/tcf/internal/model"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestProcessorManagerDispatchesByType(t *testing.T) {
	refresher := &countingRefresher{}
	pm := NewProcessorManager(NewSnapshotProcessor(refresher, 0))

	assert.Contains(t, pm.GetSupportedEventTypes(), model.EventDonationReceived)

	require.NoError(t, pm.ProcessEvent(&model.CampaignEventModel{EventType: model.EventDonationReceived}, nil))
	require.NoError(t, pm.ProcessEvent(&model.CampaignEventModel{EventType: "Transfer"}, nil))
	assert.Equal(t, 1, refresher.count())
}

func TestSnapshotProcessorThrottles(t *testing.T) {
	refresher := &countingRefresher{}
	p := NewSnapshotProcessor(refresher, time.Minute)
	t.Cleanup(p.Stop)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	event := &model.CampaignEventModel{EventType: model.EventCampaignCreated}
	require.NoError(t, p.Process(event, nil))
	require.NoError(t, p.Process(event, nil))
	assert.Equal(t, 1, refresher.count())

	now = now.Add(2 * time.Minute)
	require.NoError(t, p.Process(event, nil))
	assert.Equal(t, 2, refresher.count())
}

func TestSnapshotProcessorRetriesAfterFailure(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("rpc down")}
	p := NewSnapshotProcessor(refresher, time.Hour)
	t.Cleanup(p.Stop)

	event := &model.CampaignEventModel{EventType: model.EventCampaignEnded}
	assert.Error(t, p.Process(event, nil))

	refresher.err = nil
	require.NoError(t, p.Process(event, nil))
	assert.Equal(t, 2, refresher.count())
}

func TestSnapshotProcessorRefreshesAfterBurst(t *testing.T) {
	refresher := &countingRefresher{}
	p := NewSnapshotProcessor(refresher, 50*time.Millisecond)
	t.Cleanup(p.Stop)

	event := &model.CampaignEventModel{EventType: model.EventDonationReceived}
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(event, nil))
	}
	assert.Equal(t, 1, refresher.count())

	// 间隔内的事件合并为一次延后刷新
	assert.Eventually(t, func() bool { return refresher.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, refresher.count())
}

func TestSnapshotProcessorStopCancelsDeferredRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	p := NewSnapshotProcessor(refresher, 30*time.Millisecond)

	event := &model.CampaignEventModel{EventType: model.EventCampaignCreated}
	require.NoError(t, p.Process(event, nil))
	require.NoError(t, p.Process(event, nil))
	p.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, refresher.count())
	require.NoError(t, p.Process(event, nil))
	assert.Equal(t, 1, refresher.count())
}

func TestPollRunsProcessorsForNewEvents(t *testing.T) {
	contract := newContract(t, 0)
	source := &fakeSource{
		contracts: map[string]*chain.Contract{chain.ContractCrowdfunding: contract},
		current:   10,
		logs:      []types.Log{createdLog(t, contract, 0, 3, "0x01")},
	}
	refresher := &countingRefresher{}
	store := newStore(t)
	m := newMonitor(t, source, store, Options{
		Processors: NewProcessorManager(NewSnapshotProcessor(refresher, 0)),
	})

	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, 1, refresher.count())

	// 已存储的事件不再触发处理器
	m.updateStartBlockNum(1)
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, 1, refresher.count())
}
