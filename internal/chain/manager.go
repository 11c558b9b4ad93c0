package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/blues/tcf/internal/config"
	"github.com/blues/tcf/internal/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrReadOnly 未配置私钥时无法发送交易
var ErrReadOnly = errors.New("no private key configured, chain client is read-only")

var supportedTypes = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism"}

// Manager 单链管理器
type Manager struct {
	mu         sync.RWMutex
	contracts  map[string]*Contract // 合约映射: "contractName" -> Contract
	client     *ethclient.Client    // 链客户端
	config     config.ChainConfig   // 存储链配置
	privateKey *ecdsa.PrivateKey    // 签名私钥，可为空
	chainID    *big.Int

	txMu sync.Mutex // 串行发送交易，避免 nonce 冲突
}

// NewManager 创建单链管理器
func NewManager(ctx context.Context, cfg config.ChainConfig) (*Manager, error) {
	manager := &Manager{
		contracts: make(map[string]*Contract),
		config:    cfg,
		chainID:   big.NewInt(cfg.ChainId),
	}

	if cfg.PrivateKey != "" {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		manager.privateKey = privateKey
	}

	// 初始化客户端
	if err := manager.initClient(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	// 初始化所有启用的合约
	if err := manager.initContracts(cfg); err != nil {
		manager.client.Close()
		return nil, fmt.Errorf("failed to initialize contracts: %w", err)
	}

	return manager, nil
}

// initClient 初始化客户端
func (m *Manager) initClient(ctx context.Context, cfg config.ChainConfig) error {
	logger.Info("Initializing chain client (type: %s, id: %d)", cfg.ChainType, cfg.ChainId)

	if cfg.RpcUrl == "" {
		return fmt.Errorf("no RPC URL configured")
	}
	if !isSupportedType(cfg.ChainType) {
		return fmt.Errorf("unsupported chain type %s, supported types: %s", cfg.ChainType, strings.Join(supportedTypes, ", "))
	}

	logger.Info("Creating %s client connection (RPC: %s)", cfg.ChainType, cfg.RpcUrl)
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", cfg.ChainType, err)
	}

	// 测试连接，节点刚启动时允许重试
	if err := testClientConnection(ctx, client); err != nil {
		client.Close()
		return fmt.Errorf("client connection test failed (%s): %w", cfg.ChainType, err)
	}

	m.client = client
	logger.Info("Successfully created %s client", cfg.ChainType)
	return nil
}

// initContracts 初始化所有合约
func (m *Manager) initContracts(cfg config.ChainConfig) error {
	for contractName, contractCfg := range cfg.Contracts {
		if !contractCfg.Enabled {
			logger.Info("Skipping disabled contract: %s", contractName)
			continue
		}

		logger.Info("Initializing contract: %s (address: %s)", contractName, contractCfg.Address)

		contract, err := NewContract(m.client, contractName, contractCfg)
		if err != nil {
			return fmt.Errorf("failed to create contract %s: %w", contractName, err)
		}

		m.contracts[contractName] = contract
	}

	if _, ok := m.contracts[ContractCrowdfunding]; !ok {
		return fmt.Errorf("contract %s must be configured and enabled", ContractCrowdfunding)
	}

	logger.Info("Successfully initialized %d contracts", len(m.contracts))
	return nil
}

func isSupportedType(chainType string) bool {
	for _, supportedType := range supportedTypes {
		if chainType == supportedType {
			return true
		}
	}
	return false
}

// testClientConnection 测试客户端连接
func testClientConnection(ctx context.Context, client *ethclient.Client) error {
	_, err := backoff.Retry(ctx, func() (uint64, error) {
		return client.BlockNumber(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(30*time.Second))
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	return nil
}

// GetClient 获取客户端
func (m *Manager) GetClient() *ethclient.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// GetContract 获取指定合约
func (m *Manager) GetContract(contractName string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contract, exists := m.contracts[contractName]
	if !exists {
		return nil, fmt.Errorf("contract %s not found", contractName)
	}

	return contract, nil
}

// GetContracts 获取所有合约
func (m *Manager) GetContracts() map[string]*Contract {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// 返回副本以避免并发修改
	contracts := make(map[string]*Contract, len(m.contracts))
	for name, contract := range m.contracts {
		contracts[name] = contract
	}

	return contracts
}

// Address 获取合约地址
func (m *Manager) Address(contractName string) (common.Address, error) {
	contract, err := m.GetContract(contractName)
	if err != nil {
		return common.Address{}, err
	}
	return contract.GetAddress(), nil
}

// From 当前签名账户地址，只读模式下为零地址
func (m *Manager) From() common.Address {
	if m.privateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(m.privateKey.PublicKey)
}

// Call 调用合约只读方法
func (m *Manager) Call(ctx context.Context, contractName string, result *[]interface{}, method string, args ...interface{}) error {
	contract, err := m.GetContract(contractName)
	if err != nil {
		return err
	}

	opts := &bind.CallOpts{Context: ctx, From: m.From()}
	return contract.bound.Call(opts, result, method, args...)
}

// Transact 发送交易，value 为随交易转账的金额（wei），可为 nil
func (m *Manager) Transact(ctx context.Context, contractName string, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	if m.privateKey == nil {
		return nil, ErrReadOnly
	}
	contract, err := m.GetContract(contractName)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(m.privateKey, m.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value

	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx, err := contract.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, err
	}

	logger.Info("Sent %s.%s transaction %s (value: %s)", contractName, method, tx.Hash().Hex(), valueString(value))
	return tx, nil
}

// WaitMined 等待交易上链，执行失败时返回错误
func (m *Manager) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, m.GetClient(), tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted in block %d", tx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}
	return receipt, nil
}

// GetConfig 获取链配置
func (m *Manager) GetConfig() config.ChainConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := map[string]interface{}{
		"chain_type":    m.config.ChainType,
		"chain_id":      m.config.ChainId,
		"client_status": "connected",
		"read_only":     m.privateKey == nil,
	}

	// 检查客户端连接状态
	if m.client == nil {
		health["client_status"] = "not_initialized"
	} else if blockNum, err := m.client.BlockNumber(ctx); err != nil {
		health["client_status"] = "disconnected"
	} else {
		health["block_number"] = blockNum
	}

	contracts := make(map[string]interface{}, len(m.contracts))
	for contractName, contract := range m.contracts {
		contracts[contractName] = map[string]interface{}{
			"address":   contract.GetAddress().Hex(),
			"block_num": contract.GetBlockNum(),
		}
	}
	health["contracts"] = contracts

	return health
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		m.client.Close()
		m.client = nil
	}

	logger.Info("Chain manager closed")
	return nil
}

func valueString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
