package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"` // 允许跨域访问的来源，为空时拒绝跨域请求
	APIToken    string   `mapstructure:"api_token"`    // 写接口的 Bearer 令牌，加载私钥时必须配置
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"` // sqlite 文件路径
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainType     string                    `mapstructure:"chain_type"`    // 链类型 (ethereum, polygon, etc.)
	ChainId       int64                     `mapstructure:"chain_id"`      // 链ID
	RpcUrl        string                    `mapstructure:"rpc_url"`       // RPC节点URL
	PrivateKey    string                    `mapstructure:"private_key"`   // 私钥，为空时只读
	Confirmations int64                     `mapstructure:"confirmations"` // 交易确认区块数
	Contracts     map[string]ContractConfig `mapstructure:"contracts"`     // 该链上的合约配置
}

// ContractConfig 单个合约配置
type ContractConfig struct {
	Address  string `mapstructure:"address"`   // 合约地址
	ABIPath  string `mapstructure:"abi_path"`  // ABI文件路径，为空时使用内置ABI
	Enabled  bool   `mapstructure:"enabled"`   // 是否启用此合约
	BlockNum int64  `mapstructure:"block_num"` // 合约部署区块号
}

type TaskConfig struct {
	RefreshInterval int   `mapstructure:"refresh_interval"` // 活动快照刷新间隔，秒
	ReceiptInterval int   `mapstructure:"receipt_interval"` // 交易回执检查间隔，秒
	MonitorInterval int   `mapstructure:"monitor_interval"` // 事件索引间隔，秒
	BatchSize       int64 `mapstructure:"batch_size"`       // 每批处理的区块数
	Workers         int   `mapstructure:"workers"`          // 事件处理协程数
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// Load 加载配置，file 为空时按默认路径查找 config.yaml
func Load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tcf")
	}

	setDefaults(v)

	// 自动读取环境变量，例如 TCF_CHAIN_RPC_URL
	v.SetEnvPrefix("tcf")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.api_token", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "crowdfunding")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "tcf.db")
	v.SetDefault("chain.chain_type", "ethereum")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.rpc_url", "http://localhost:8545")
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("task.refresh_interval", 30)
	v.SetDefault("task.receipt_interval", 15)
	v.SetDefault("task.monitor_interval", 60)
	v.SetDefault("task.batch_size", 500)
	v.SetDefault("task.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}
