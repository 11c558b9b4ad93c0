package scheduler

import (
	"context"
	"time"

	"github.com/blues/tcf/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// Refresher 可刷新的活动快照
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SnapshotRefreshJob 定时重新拉取全部活动
type SnapshotRefreshJob struct {
	refresher Refresher
	interval  time.Duration
}

// NewSnapshotRefreshJob 创建快照刷新任务
func NewSnapshotRefreshJob(refresher Refresher, interval time.Duration) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{
		refresher: refresher,
		interval:  interval,
	}
}

// GetName 获取任务名称
func (j *SnapshotRefreshJob) GetName() string {
	return "campaign_snapshot_refresher"
}

// GetSchedule 获取调度配置
func (j *SnapshotRefreshJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *SnapshotRefreshJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	if err := j.refresher.Refresh(ctx); err != nil {
		logger.Error("Failed to refresh campaign snapshot: %v", err)
	}
}
