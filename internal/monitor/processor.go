package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/model"
)

// EventProcessor 新索引事件的处理器
type EventProcessor interface {
	Process(event *model.CampaignEventModel, eventData map[string]interface{}) error
	GetEventTypes() []string
}

// ProcessorManager 按事件类型分发处理器
type ProcessorManager struct {
	mu         sync.RWMutex
	processors map[string][]EventProcessor
}

// NewProcessorManager 创建处理器管理器
func NewProcessorManager(processors ...EventProcessor) *ProcessorManager {
	pm := &ProcessorManager{
		processors: make(map[string][]EventProcessor),
	}
	for _, p := range processors {
		pm.RegisterProcessor(p)
	}
	return pm
}

// RegisterProcessor 注册事件处理器
func (pm *ProcessorManager) RegisterProcessor(processor EventProcessor) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, eventType := range processor.GetEventTypes() {
		pm.processors[eventType] = append(pm.processors[eventType], processor)
		logger.Info("Registered processor for event type: %s", eventType)
	}
}

// ProcessEvent 处理事件，没有处理器的事件类型直接跳过
func (pm *ProcessorManager) ProcessEvent(event *model.CampaignEventModel, eventData map[string]interface{}) error {
	pm.mu.RLock()
	processors := pm.processors[event.EventType]
	pm.mu.RUnlock()

	for _, p := range processors {
		if err := p.Process(event, eventData); err != nil {
			return err
		}
	}
	return nil
}

// GetSupportedEventTypes 获取支持的事件类型列表
func (pm *ProcessorManager) GetSupportedEventTypes() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	types := make([]string, 0, len(pm.processors))
	for eventType := range pm.processors {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// Refresher 可刷新的活动快照
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SnapshotProcessor 活动状态变化时刷新快照，两次刷新至少间隔 minInterval，
// 间隔内到达的事件合并为一次延后刷新
type SnapshotProcessor struct {
	refresher   Refresher
	minInterval time.Duration
	timeout     time.Duration
	now         func() time.Time

	mu          sync.Mutex
	lastRefresh time.Time
	trailing    *time.Timer
	stopped     bool
}

// NewSnapshotProcessor 创建快照刷新处理器
func NewSnapshotProcessor(refresher Refresher, minInterval time.Duration) *SnapshotProcessor {
	return &SnapshotProcessor{
		refresher:   refresher,
		minInterval: minInterval,
		timeout:     30 * time.Second,
		now:         time.Now,
	}
}

// GetEventTypes 获取处理的事件类型
func (p *SnapshotProcessor) GetEventTypes() []string {
	return []string{
		model.EventCampaignCreated,
		model.EventDonationReceived,
		model.EventDonationRefunded,
		model.EventCampaignEnded,
		model.EventCampaignWithdrawn,
	}
}

// Process 刷新快照，间隔内的事件安排一次延后刷新
func (p *SnapshotProcessor) Process(event *model.CampaignEventModel, eventData map[string]interface{}) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	now := p.now()
	if elapsed := now.Sub(p.lastRefresh); !p.lastRefresh.IsZero() && elapsed < p.minInterval {
		if p.trailing == nil {
			p.trailing = time.AfterFunc(p.minInterval-elapsed, p.refreshTrailing)
		}
		p.mu.Unlock()
		return nil
	}
	p.lastRefresh = now
	if p.trailing != nil {
		p.trailing.Stop()
		p.trailing = nil
	}
	p.mu.Unlock()

	if err := p.refresh(); err != nil {
		return err
	}

	logger.Debug("Refreshed campaign snapshot after %s on campaign %d", event.EventType, event.CampaignId)
	return nil
}

// Stop 取消尚未执行的延后刷新
func (p *SnapshotProcessor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.trailing != nil {
		p.trailing.Stop()
		p.trailing = nil
	}
}

func (p *SnapshotProcessor) refreshTrailing() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.trailing = nil
	p.lastRefresh = p.now()
	p.mu.Unlock()

	if err := p.refresh(); err != nil {
		logger.Warn("Deferred campaign snapshot refresh failed: %v", err)
		return
	}
	logger.Debug("Refreshed campaign snapshot after a burst of events")
}

func (p *SnapshotProcessor) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.refresher.Refresh(ctx); err != nil {
		// 刷新失败时允许下一个事件立即重试
		p.mu.Lock()
		p.lastRefresh = time.Time{}
		p.mu.Unlock()
		return err
	}
	return nil
}
