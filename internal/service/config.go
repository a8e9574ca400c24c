// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是整个交易台的配置根
type Config struct {
	App        AppConfig        `mapstructure:"App"`
	Market     MarketConfig     `mapstructure:"Market"`
	Order      OrderConfig      `mapstructure:"Order"`
	Collateral CollateralConfig `mapstructure:"Collateral"`
	Server     ServerConfig     `mapstructure:"Server"`
	NATS       NATSConfig       `mapstructure:"NATS"`
	GRPC       GRPCConfig       `mapstructure:"GRPC"`
	Report     ReportConfig     `mapstructure:"Report"`
}

type AppConfig struct {
	Name     string
	LogLevel string
	Console  bool // 是否在终端渲染盘口
}

// MarketConfig 定义了行情来源
type MarketConfig struct {
	Symbol         string        // 启动时的默认股票
	Source         string        // simulator 或 websocket
	FeedURL        string        // Source=websocket 时的行情地址
	TickInterval   time.Duration // 刷新周期, 默认 3s
	CandleInterval string        // K 线聚合周期, 如 "1m"
	Catalog        string        // 股票目录 yaml
	Seed           uint64        // 随机种子, 0 表示使用时间
}

// OrderConfig 定义了下单规则
type OrderConfig struct {
	LotSize          int64
	PriceBandPercent float64
	ToastTTL         time.Duration
	MockHolding      int64 // 卖出快捷比例使用的模拟持仓
	DefaultMode      string
}

// CollateralConfig 定义了保证金存储
type CollateralConfig struct {
	Key        string
	Initial    float64
	StorePath  string // 为空时使用内存存储
	MaxRetries int    // 版本冲突时的最大重试次数
}

type ServerConfig struct {
	Enabled bool
	Addr    string
}

// NATSConfig 定义了跨进程事件总线
type NATSConfig struct {
	Enabled        bool
	URL            string
	ClientID       string
	SubjectPrefix  string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

type GRPCConfig struct {
	Enabled bool
	Addr    string
}

type ReportConfig struct {
	Path         string
	ExportOnExit bool
}

// GlobalConfig 存储加载后的全局配置
var GlobalConfig Config

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("App.Name", "nepse-mock-trader")
	v.SetDefault("App.LogLevel", "info")
	v.SetDefault("App.Console", false)

	v.SetDefault("Market.Symbol", "NICA")
	v.SetDefault("Market.Source", "simulator")
	v.SetDefault("Market.TickInterval", 3*time.Second)
	v.SetDefault("Market.CandleInterval", "1m")
	v.SetDefault("Market.Catalog", "")

	v.SetDefault("Order.LotSize", 10)
	v.SetDefault("Order.PriceBandPercent", 0.02)
	v.SetDefault("Order.ToastTTL", 3*time.Second)
	v.SetDefault("Order.MockHolding", 1000)
	v.SetDefault("Order.DefaultMode", "buy")

	v.SetDefault("Collateral.Key", "userCollateral")
	v.SetDefault("Collateral.Initial", 50000000.00)
	v.SetDefault("Collateral.StorePath", "")
	v.SetDefault("Collateral.MaxRetries", 3)

	v.SetDefault("Server.Enabled", true)
	v.SetDefault("Server.Addr", ":8080")

	v.SetDefault("NATS.Enabled", false)
	v.SetDefault("NATS.URL", "nats://127.0.0.1:4222")
	v.SetDefault("NATS.ClientID", "nepse-mock-trader")
	v.SetDefault("NATS.SubjectPrefix", "nepse")
	v.SetDefault("NATS.ConnectTimeout", 5*time.Second)
	v.SetDefault("NATS.ReconnectWait", 2*time.Second)
	v.SetDefault("NATS.MaxReconnects", 10)

	v.SetDefault("GRPC.Enabled", false)
	v.SetDefault("GRPC.Addr", ":50051")

	v.SetDefault("Report.Path", "reports/orders.xlsx")
	v.SetDefault("Report.ExportOnExit", false)

	// 环境变量覆盖, 例如 NEPSE_MARKET_SYMBOL=NABIL
	v.SetEnvPrefix("NEPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// DefaultConfig 返回只包含默认值的配置
func DefaultConfig() *Config {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config does not decode: %v", err))
	}
	return &cfg
}

// LoadConfig 读取并解析配置文件, 找不到配置文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)

	// 查找并读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		Logger.Warn("Config file not found, using defaults")
	}

	// 将配置绑定到结构体
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	GlobalConfig = cfg
	return &cfg, nil
}

// Validate 检查配置的取值范围
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return fmt.Errorf("market symbol cannot be empty")
	}
	switch c.Market.Source {
	case "simulator":
	case "websocket":
		if c.Market.FeedURL == "" {
			return fmt.Errorf("market feed url is required when source is websocket")
		}
	default:
		return fmt.Errorf("unsupported market source: %s", c.Market.Source)
	}
	if c.Market.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Market.TickInterval)
	}
	if _, err := ParseIntervalDuration(c.Market.CandleInterval); err != nil {
		return fmt.Errorf("candle interval: %w", err)
	}

	if c.Order.LotSize <= 0 {
		return fmt.Errorf("lot size must be positive, got %d", c.Order.LotSize)
	}
	if c.Order.PriceBandPercent <= 0 || c.Order.PriceBandPercent >= 1 {
		return fmt.Errorf("price band percent must be in (0, 1), got %f", c.Order.PriceBandPercent)
	}
	switch c.Order.DefaultMode {
	case "buy", "sell", "dual":
	default:
		return fmt.Errorf("unsupported default trade mode: %s", c.Order.DefaultMode)
	}

	if c.Collateral.Key == "" {
		return fmt.Errorf("collateral key cannot be empty")
	}
	if c.Collateral.Initial < 0 {
		return fmt.Errorf("initial collateral cannot be negative")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("NATS url cannot be empty when NATS is enabled")
	}

	return nil
}
