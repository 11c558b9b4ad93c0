package chain

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/blues/tcf/internal/config"
	"github.com/blues/tcf/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 合约名称
const (
	ContractCrowdfunding = "crowdfunding"
	ContractToken        = "token"
)

//go:embed abi/*.json
var abiFiles embed.FS

// 未配置 abi_path 时使用的内置 ABI
var defaultABIFiles = map[string]string{
	ContractCrowdfunding: "abi/CrowdFunding.json",
	ContractToken:        "abi/ERC20.json",
}

// Contract 合约工具类
type Contract struct {
	address  common.Address      // 合约地址
	abi      abi.ABI             // 合约ABI
	name     string              // 合约名称
	blockNum int64               // 合约部署的区块号
	bound    *bind.BoundContract // 合约绑定
}

// NewContract 创建合约实例
func NewContract(backend bind.ContractBackend, name string, contractCfg config.ContractConfig) (*Contract, error) {
	parsedABI, err := LoadABI(name, contractCfg.ABIPath)
	if err != nil {
		return nil, err
	}

	if !common.IsHexAddress(contractCfg.Address) {
		return nil, fmt.Errorf("invalid address %q for contract %s", contractCfg.Address, name)
	}
	contractAddr := common.HexToAddress(contractCfg.Address)

	return &Contract{
		address:  contractAddr,
		abi:      parsedABI,
		name:     name,
		blockNum: contractCfg.BlockNum,
		bound:    bind.NewBoundContract(contractAddr, parsedABI, backend, backend, backend),
	}, nil
}

// LoadABI 从文件加载ABI，路径为空时使用内置ABI
func LoadABI(name, abiPath string) (abi.ABI, error) {
	var (
		abiData []byte
		err     error
	)

	if abiPath != "" {
		abiData, err = os.ReadFile(abiPath)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", abiPath, err)
		}
	} else {
		file, ok := defaultABIFiles[name]
		if !ok {
			return abi.ABI{}, fmt.Errorf("no abi_path configured and no built-in ABI for contract %s", name)
		}
		abiData, err = abiFiles.ReadFile(file)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to load built-in ABI %s: %w", file, err)
		}
	}

	return ParseABI(abiData)
}

// ParseABI 解析ABI，支持完整编译输出与纯ABI数组两种格式
func ParseABI(abiData []byte) (abi.ABI, error) {
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}

	// 首先尝试解析为完整编译输出
	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsedABI, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsedABI, nil
	}

	parsedABI, err := abi.JSON(bytes.NewReader(abiData))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsedABI, nil
}

// MustDefaultABI 返回内置ABI，仅用于测试与初始化
func MustDefaultABI(name string) abi.ABI {
	parsed, err := LoadABI(name, "")
	if err != nil {
		panic(err)
	}
	return parsed
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetABI 获取合约ABI
func (c *Contract) GetABI() abi.ABI {
	return c.abi
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

// GetBlockNum 获取合约部署区块号
func (c *Contract) GetBlockNum() int64 {
	return c.blockNum
}

// ParseEvent 解析事件日志
func (c *Contract) ParseEvent(log types.Log) (map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %s:%d has no topics", log.TxHash.Hex(), log.Index)
	}
	eventSignature := log.Topics[0]

	event, err := c.abi.EventByID(eventSignature)
	if err != nil {
		logger.Warn("Unknown event signature: %s in contract %s", eventSignature.Hex(), c.name)
		return map[string]interface{}{
			"eventName":   "Unknown",
			"signature":   eventSignature.Hex(),
			"contract":    c.name,
			"txHash":      log.TxHash.Hex(),
			"blockNumber": log.BlockNumber,
			"logIndex":    log.Index,
		}, nil
	}

	return c.parseEvent(log, event)
}

// parseEvent 解析事件
func (c *Contract) parseEvent(log types.Log, event *abi.Event) (map[string]interface{}, error) {
	result := make(map[string]interface{})
	result["eventName"] = event.Name
	result["contract"] = c.name
	result["txHash"] = log.TxHash.Hex()
	result["blockNumber"] = log.BlockNumber
	result["logIndex"] = log.Index

	// 解析索引参数
	topic := 1
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if topic >= len(log.Topics) {
			return nil, fmt.Errorf("event %s: missing topic for indexed parameter %s", event.Name, input.Name)
		}
		result[input.Name] = parseTopicValue(log.Topics[topic], input.Type)
		topic++
	}

	// 解析非索引参数
	if len(log.Data) > 0 {
		if err := c.abi.UnpackIntoMap(result, event.Name, log.Data); err != nil {
			return nil, fmt.Errorf("event %s: failed to unpack data: %w", event.Name, err)
		}
	}

	return result, nil
}

// parseTopicValue 解析主题值
func parseTopicValue(topic common.Hash, t abi.Type) interface{} {
	switch t.T {
	case abi.UintTy, abi.IntTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.BoolTy:
		return new(big.Int).SetBytes(topic.Bytes()).Sign() > 0
	case abi.BytesTy:
		return topic.Bytes()
	default:
		return topic.Hex()
	}
}
