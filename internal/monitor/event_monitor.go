package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/blues/tcf/internal/chain"
	"github.com/blues/tcf/internal/logger"
	"github.com/blues/tcf/internal/logic"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/panjf2000/ants/v2"
)

// ChainSource 事件来源，由 chain.Manager 实现
type ChainSource interface {
	GetContracts() map[string]*chain.Contract
	GetCurrentBlockNumber(ctx context.Context) (int64, error)
	GetBatchBlockLogs(ctx context.Context, contractAddresses []common.Address, fromBlock, toBlock int64) ([]types.Log, error)
}

// EventStore 事件存储，由 logic.EventLogic 实现
type EventStore interface {
	CreateEvent(event *model.CampaignEventModel) error
	GetLastProcessedBlock(contractAddress string) (int64, error)
}

// Options 监控参数
type Options struct {
	Interval      time.Duration     // 轮询间隔
	BatchSize     int64             // 每次拉取日志的区块数
	Workers       int               // 并发处理日志的协程数
	Confirmations int64             // 只处理已确认的区块
	Processors    *ProcessorManager // 新事件入库后的处理器，可为空
}

// EventMonitor 众筹合约事件索引器
type EventMonitor struct {
	source  ChainSource
	store   EventStore
	opts    Options
	pool    *ants.Pool // 协程池
	backoff *backoff.ExponentialBackOff

	mu            sync.RWMutex // 保护 startBlockNum 与 pauseUntil
	startBlockNum int64
	pauseUntil    time.Time
	retryCount    int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEventMonitor 创建事件监控器
func NewEventMonitor(source ChainSource, store EventStore, opts Options) (*EventMonitor, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Confirmations <= 0 {
		opts.Confirmations = 1
	}

	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	errBackoff := backoff.NewExponentialBackOff()
	errBackoff.InitialInterval = 10 * time.Second
	errBackoff.MaxInterval = 5 * time.Minute

	return &EventMonitor{
		source:  source,
		store:   store,
		opts:    opts,
		pool:    pool,
		backoff: errBackoff,
	}, nil
}

// Start 确定起始区块并启动监控循环
func (m *EventMonitor) Start(ctx context.Context) error {
	logger.Info("Starting campaign event monitor")

	contracts := m.source.GetContracts()
	if len(contracts) == 0 {
		return fmt.Errorf("no contracts available for monitoring")
	}
	logger.Info("Found %d contracts to monitor", len(contracts))

	currentBlock, err := m.source.GetCurrentBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to blockchain: %w", err)
	}
	logger.Info("Connected to blockchain, current block: %d", currentBlock)

	startBlock := m.getStartBlockNum()
	logger.Info("Starting monitor from block %d", startBlock)

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(loopCtx)

	return nil
}

// Stop 停止监控并释放协程池
func (m *EventMonitor) Stop() {
	logger.Info("Stopping campaign event monitor")
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.pool.Release()
}

// loop 监控循环
func (m *EventMonitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Monitor stopped")
			return
		case <-ticker.C:
			if m.paused() {
				continue
			}
			if err := m.Poll(ctx); err != nil {
				m.handleError(err)
				continue
			}
			m.resetError()
		}
	}
}

// Poll 处理从起始区块到最新已确认区块之间的全部日志
func (m *EventMonitor) Poll(ctx context.Context) error {
	currentBlock, err := m.source.GetCurrentBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current block number: %w", err)
	}

	confirmed := currentBlock - m.opts.Confirmations + 1
	fromBlock := m.getStartBlockNum()
	if confirmed < fromBlock {
		logger.Debug("No confirmed blocks to process (current: %d, next: %d)", currentBlock, fromBlock)
		return nil
	}

	contracts := m.source.GetContracts()
	if len(contracts) == 0 {
		logger.Debug("No contracts found")
		return nil
	}

	return m.processBlocksInBatches(ctx, contracts, fromBlock, confirmed)
}

// processBlocksInBatches 分批处理区块，失败时停在失败的批次
func (m *EventMonitor) processBlocksInBatches(ctx context.Context, contracts map[string]*chain.Contract, fromBlock, toBlock int64) error {
	logger.Debug("Processing blocks from %d to %d", fromBlock, toBlock)

	for currentFrom := fromBlock; currentFrom <= toBlock; currentFrom += m.opts.BatchSize {
		currentTo := currentFrom + m.opts.BatchSize - 1
		if currentTo > toBlock {
			currentTo = toBlock
		}

		if err := m.processBatchBlocks(ctx, contracts, currentFrom, currentTo); err != nil {
			return fmt.Errorf("error processing blocks %d-%d: %w", currentFrom, currentTo, err)
		}

		m.updateStartBlockNum(currentTo + 1)
	}

	return nil
}

// processBatchBlocks 拉取一批区块的日志并按合约并发处理
func (m *EventMonitor) processBatchBlocks(ctx context.Context, contracts map[string]*chain.Contract, fromBlock, toBlock int64) error {
	contractAddresses, contractMap := m.getDeployedContracts(contracts, fromBlock, toBlock)
	if len(contractAddresses) == 0 {
		logger.Debug("No deployed contracts for blocks %d-%d", fromBlock, toBlock)
		return nil
	}

	// 日志拉取是只读调用，限流或网络抖动时重试
	logs, err := backoff.Retry(ctx, func() ([]types.Log, error) {
		return m.source.GetBatchBlockLogs(ctx, contractAddresses, fromBlock, toBlock)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("error getting logs: %w", err)
	}

	if len(logs) == 0 {
		logger.Debug("No logs found for blocks %d-%d", fromBlock, toBlock)
		return nil
	}
	logger.Debug("Found %d logs for blocks %d-%d", len(logs), fromBlock, toBlock)

	var (
		wg        sync.WaitGroup
		failedMu  sync.Mutex
		failed    int
		submitErr error
	)
	for address, contractLogs := range m.groupLogsByContract(logs) {
		contract := contractMap[address]
		if contract == nil {
			logger.Warn("Unknown contract address: %s", address.Hex())
			continue
		}

		wg.Add(1)
		contractLogs := contractLogs
		err := m.pool.Submit(func() {
			defer wg.Done()
			if n := m.processContractLogs(contract, contractLogs); n > 0 {
				failedMu.Lock()
				failed += n
				failedMu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			submitErr = fmt.Errorf("failed to submit task to pool: %w", err)
			break
		}
	}
	wg.Wait()

	if submitErr != nil {
		return submitErr
	}

	if failed > 0 {
		return fmt.Errorf("%d events could not be stored", failed)
	}
	return nil
}

// processContractLogs 处理合约的所有日志，返回存储失败的数量
func (m *EventMonitor) processContractLogs(contract *chain.Contract, logs []types.Log) int {
	failed := 0
	for _, log := range logs {
		eventData, err := contract.ParseEvent(log)
		if err != nil {
			logger.Error("Error parsing event for contract %s: %v", contract.GetName(), err)
			continue
		}

		event, err := ToEventModel(contract, log, eventData)
		if err != nil {
			logger.Error("Failed to convert event for contract %s: %v", contract.GetName(), err)
			continue
		}

		if err := m.store.CreateEvent(event); err != nil {
			if errors.Is(err, logic.ErrEventExists) {
				continue
			}
			logger.Error("Failed to store %s event %s#%d: %v", event.EventType, event.TxHash, event.LogIndex, err)
			failed++
			continue
		}

		logger.Debug("Indexed %s for campaign %d at block %d", event.EventType, event.CampaignId, log.BlockNumber)

		if m.opts.Processors != nil {
			if err := m.opts.Processors.ProcessEvent(event, eventData); err != nil {
				logger.Warn("Failed to process %s event %s#%d: %v", event.EventType, event.TxHash, event.LogIndex, err)
			}
		}
	}
	return failed
}

// ToEventModel 将解析后的事件转换为存储模型，非活动事件的 CampaignId 为 -1
func ToEventModel(contract *chain.Contract, log types.Log, eventData map[string]interface{}) (*model.CampaignEventModel, error) {
	data, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data to JSON: %w", err)
	}

	eventName, _ := eventData["eventName"].(string)
	event := &model.CampaignEventModel{
		ContractAddress: contract.GetAddress().Hex(),
		ContractName:    contract.GetName(),
		EventType:       eventName,
		CampaignId:      -1,
		BlockNum:        int64(log.BlockNumber),
		TxHash:          log.TxHash.Hex(),
		LogIndex:        int64(log.Index),
		Data:            string(data),
	}

	if id, ok := eventData["campaignId"].(*big.Int); ok {
		event.CampaignId = id.Int64()
	}
	for _, key := range []string{"donator", "owner", "from"} {
		if account, ok := eventData[key].(common.Address); ok {
			event.Account = account.Hex()
			break
		}
	}
	for _, key := range []string{"amount", "target", "value"} {
		if amount, ok := eventData[key].(*big.Int); ok {
			event.Amount = money.FormatUnits(amount)
			break
		}
	}

	return event, nil
}

// getStartBlockNum 起始区块取配置的部署区块与已处理区块的较大者
func (m *EventMonitor) getStartBlockNum() int64 {
	m.mu.RLock()
	startBlock := m.startBlockNum
	m.mu.RUnlock()

	if startBlock > 0 {
		return startBlock
	}

	first := true
	for _, contract := range m.source.GetContracts() {
		next := contract.GetBlockNum()

		lastProcessed, err := m.store.GetLastProcessedBlock(contract.GetAddress().Hex())
		if err != nil {
			logger.Error("Failed to get last processed block for %s: %v", contract.GetName(), err)
		} else if lastProcessed > 0 && lastProcessed >= next {
			next = lastProcessed + 1
		}

		if first || next < startBlock {
			startBlock = next
			first = false
		}
	}

	m.updateStartBlockNum(startBlock)
	return startBlock
}

// updateStartBlockNum 更新起始区块号
func (m *EventMonitor) updateStartBlockNum(blockNum int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startBlockNum = blockNum
}

// handleError 出错后按指数退避暂停轮询
func (m *EventMonitor) handleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retryCount++
	wait := m.backoff.NextBackOff()
	m.pauseUntil = time.Now().Add(wait)

	if isAPIRateLimitError(err) {
		logger.Warn("API rate limit hit, pausing monitor for %s", wait)
	}
	logger.Error("Monitor encountered error (retry %d): %v", m.retryCount, err)
}

func (m *EventMonitor) resetError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount = 0
	m.pauseUntil = time.Time{}
	m.backoff.Reset()
}

func (m *EventMonitor) paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Now().Before(m.pauseUntil)
}

// GetStatus 获取监控状态
func (m *EventMonitor) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"next_block":     m.startBlockNum,
		"contract_count": len(m.source.GetContracts()),
		"retry_count":    m.retryCount,
		"paused_until":   m.pauseUntil,
		"pool_status": map[string]interface{}{
			"running": m.pool.Running(),
			"free":    m.pool.Free(),
			"cap":     m.pool.Cap(),
		},
	}
}

// getDeployedContracts 获取已部署的合约地址和映射
func (m *EventMonitor) getDeployedContracts(contracts map[string]*chain.Contract, fromBlock, toBlock int64) ([]common.Address, map[common.Address]*chain.Contract) {
	var contractAddresses []common.Address
	contractMap := make(map[common.Address]*chain.Contract)

	for contractName, contract := range contracts {
		if toBlock < contract.GetBlockNum() {
			logger.Debug("Skipping blocks %d-%d for contract %s (deployed at block %d)",
				fromBlock, toBlock, contractName, contract.GetBlockNum())
			continue
		}

		address := contract.GetAddress()
		contractAddresses = append(contractAddresses, address)
		contractMap[address] = contract
	}

	return contractAddresses, contractMap
}

// groupLogsByContract 按合约地址分组日志
func (m *EventMonitor) groupLogsByContract(logs []types.Log) map[common.Address][]types.Log {
	logsByContract := make(map[common.Address][]types.Log)
	for _, log := range logs {
		logsByContract[log.Address] = append(logsByContract[log.Address], log)
	}
	return logsByContract
}

// isAPIRateLimitError 检查是否为API限制错误
func isAPIRateLimitError(err error) bool {
	return strings.Contains(err.Error(), "Too Many Requests")
}
