package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/monitor"
	"github.com/blues/tcf/internal/router"
	"github.com/blues/tcf/internal/scheduler"
	"github.com/gin-gonic/gin"
)

const (
	receiptBatchSize = 50              // 每次补全回执的交易数
	snapshotThrottle = 5 * time.Second // 事件触发快照刷新的最小间隔
)

type ServeCmd struct {
	Port      string `help:"Override the configured HTTP port."`
	NoMonitor bool   `help:"Do not index contract events."`
}

func (cmd *ServeCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	app, err := NewApp(ctx, globals)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 启动时拉取一次快照，失败时由定时任务重试
	if err := app.Service.Refresh(ctx); err != nil {
		logger.Warn("Initial campaign refresh failed: %v", err)
	}

	jobs, err := scheduler.NewManager()
	if err != nil {
		return err
	}
	if err := jobs.Register(scheduler.NewSnapshotRefreshJob(app.Service, seconds(cfg.Task.RefreshInterval))); err != nil {
		return err
	}
	if err := jobs.Register(scheduler.NewTxReceiptJob(app.Chain, app.TxLogic, seconds(cfg.Task.ReceiptInterval), cfg.Chain.Confirmations, receiptBatchSize)); err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	if !cmd.NoMonitor {
		snapshots := monitor.NewSnapshotProcessor(app.Service, snapshotThrottle)
		defer snapshots.Stop()

		eventMonitor, err := monitor.NewEventMonitor(app.Chain, app.EventLogic, monitor.Options{
			Interval:      seconds(cfg.Task.MonitorInterval),
			BatchSize:     cfg.Task.BatchSize,
			Workers:       cfg.Task.Workers,
			Confirmations: cfg.Chain.Confirmations,
			Processors:    monitor.NewProcessorManager(snapshots),
		})
		if err != nil {
			return err
		}
		if err := eventMonitor.Start(ctx); err != nil {
			return err
		}
		defer eventMonitor.Stop()
	}

	port := cmd.Port
	if port == "" {
		port = cfg.Server.Port
	}

	srv := &http.Server{
		Addr: ":" + port,
		Handler: router.Setup(router.Dependencies{
			Service:    app.Service,
			TxLogic:    app.TxLogic,
			EventLogic: app.EventLogic,
			Health:     app.Chain,

			AllowedOrigins: cfg.Server.CORSOrigins,
			APIToken:       cfg.Server.APIToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()
	logger.Info("Server running on :%s", port)

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		return fmt.Errorf("listen error: %w", err)
	}

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
