package cli

import (
	"context"
	"fmt"

	"github.com/blues/tcf/internal/campaign"
	"github.com/blues/tcf/internal/chain"
	"github.com/blues/tcf/internal/config"
	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/logic"
	"github.com/blues/tcf/internal/repository"
	"github.com/blues/tcf/internal/service"
	"gorm.io/gorm"
)

// App 命令共享的依赖
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Chain      *chain.Manager
	TxLogic    *logic.TxRecordLogic
	EventLogic *logic.EventLogic
	Repo       *campaign.Repository
	Service    *service.CampaignService
}

// NewApp 加载配置并初始化数据库、链客户端与活动服务
func NewApp(ctx context.Context, globals *Globals) (*App, error) {
	cfg, err := config.Load(globals.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if globals.LogLevel != "" {
		cfg.Log.Level = globals.LogLevel
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := repository.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	manager, err := chain.NewManager(ctx, cfg.Chain)
	if err != nil {
		_ = repository.Close(db)
		return nil, fmt.Errorf("init chain: %w", err)
	}

	txLogic := logic.NewTxRecordLogic(db)
	repo := campaign.NewRepository(manager, campaign.WithObserver(txLogic))

	return &App{
		Config:     cfg,
		DB:         db,
		Chain:      manager,
		TxLogic:    txLogic,
		EventLogic: logic.NewEventLogic(db),
		Repo:       repo,
		Service:    service.New(repo),
	}, nil
}

// Close 释放全部资源
func (a *App) Close() {
	if err := a.Service.Close(); err != nil {
		logger.Warn("Failed to close campaign service: %v", err)
	}
	if err := a.Chain.Close(); err != nil {
		logger.Warn("Failed to close chain manager: %v", err)
	}
	if err := repository.Close(a.DB); err != nil {
		logger.Warn("Failed to close database: %v", err)
	}
	logger.Sync()
}
