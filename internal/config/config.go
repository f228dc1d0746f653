package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

const (
	ModeBasic   = "basic"
	ModeStaking = "staking"

	TokenProviderMemory = "memory"
	TokenProviderERC20  = "erc20"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	NonceStoreRedis  = "redis"
	NonceStoreMemory = "memory"
)

// Config 应用配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Governance   GovernanceConfig   `mapstructure:"governance"`
	Token        TokenConfig        `mapstructure:"token"`
	Events       EventsConfig       `mapstructure:"events"`
	Notification NotificationConfig `mapstructure:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | sqlite
	Path     string `mapstructure:"path"`   // sqlite文件路径
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	KeyPrefix   string        `mapstructure:"key_prefix"` // 本服务写入的键统一加前缀
}

type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`
	AccessExpiry  time.Duration `mapstructure:"access_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
}

// AuthConfig 钱包登录挑战
type AuthConfig struct {
	Domain     string        `mapstructure:"domain"` // 签名消息绑定的域名
	NonceTTL   time.Duration `mapstructure:"nonce_ttl"`
	NonceStore string        `mapstructure:"nonce_store"` // redis | memory
}

// GovernanceConfig 治理参数
type GovernanceConfig struct {
	Mode             string        `mapstructure:"mode"` // basic | staking
	InitialAdmins    []string      `mapstructure:"initial_admins"`
	MinAdmins        uint64        `mapstructure:"min_admins"` // 0表示按模式取默认下限
	ProposalTTL      time.Duration `mapstructure:"proposal_ttl"`
	MinTimeLockDelay time.Duration `mapstructure:"min_timelock_delay"`
	MinimumStake     string        `mapstructure:"minimum_stake"`
	SlashPercentage  uint64        `mapstructure:"slash_percentage"`
	MaxSlashCount    uint64        `mapstructure:"max_slash_count"`
}

// TokenConfig 质押代币配置
type TokenConfig struct {
	Provider        string            `mapstructure:"provider"` // memory | erc20
	ContractAddress string            `mapstructure:"contract_address"`
	CustodyAddress  string            `mapstructure:"custody_address"`
	RPCURL          string            `mapstructure:"rpc_url"`
	ChainID         int64             `mapstructure:"chain_id"`
	PrivateKey      string            `mapstructure:"private_key"`
	ReceiptTimeout  time.Duration     `mapstructure:"receipt_timeout"`
	InitialBalances map[string]string `mapstructure:"initial_balances"`
}

// EventsConfig 事件推送配置
type EventsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	RedisChannel string `mapstructure:"redis_channel"`
}

// NotificationConfig 告警通知配置
type NotificationConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	QueueSize   int           `mapstructure:"queue_size"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	Email       EmailConfig   `mapstructure:"email"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	SMTPHost     string   `mapstructure:"smtp_host"`
	SMTPPort     int      `mapstructure:"smtp_port"`
	SMTPUsername string   `mapstructure:"smtp_username"`
	SMTPPassword string   `mapstructure:"smtp_password"`
	FromName     string   `mapstructure:"from_name"`
	FromEmail    string   `mapstructure:"from_email"`
	Recipients   []string `mapstructure:"recipients"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "governance.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "governance")
	v.SetDefault("database.password", "governance")
	v.SetDefault("database.dbname", "governance_db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", time.Second*5)
	v.SetDefault("redis.key_prefix", "governance:")
	v.SetDefault("jwt.secret", "governance-jwt-secret-v1")
	v.SetDefault("jwt.access_expiry", time.Hour*24)
	v.SetDefault("jwt.refresh_expiry", time.Hour*24*7)
	v.SetDefault("auth.domain", "governance-backend")
	v.SetDefault("auth.nonce_ttl", time.Minute*5)
	v.SetDefault("auth.nonce_store", NonceStoreRedis)

	// Governance defaults
	v.SetDefault("governance.mode", ModeStaking)
	v.SetDefault("governance.initial_admins", []string{})
	v.SetDefault("governance.min_admins", 0)
	v.SetDefault("governance.proposal_ttl", time.Hour*24*7)
	v.SetDefault("governance.min_timelock_delay", time.Hour)
	v.SetDefault("governance.minimum_stake", "1000")
	v.SetDefault("governance.slash_percentage", 10)
	v.SetDefault("governance.max_slash_count", 3)

	// Token defaults
	v.SetDefault("token.provider", TokenProviderMemory)
	v.SetDefault("token.custody_address", "0x000000000000000000000000000000000000dEaD")
	v.SetDefault("token.chain_id", 1)
	v.SetDefault("token.receipt_timeout", time.Minute*2)

	v.SetDefault("events.enabled", true)
	v.SetDefault("events.redis_channel", "governance:events")

	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.queue_size", 256)
	v.SetDefault("notification.http_timeout", time.Second*10)
	v.SetDefault("notification.email.enabled", false)
	v.SetDefault("notification.email.smtp_host", "smtp.gmail.com")
	v.SetDefault("notification.email.smtp_port", 587)
	v.SetDefault("notification.email.from_name", "Governance Alert")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	SetDefaults(v)

	// Read environment variables, e.g. GOVERNANCE_MODE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Error("LoadConfig Error: ", errors.New("config file not found"), "error: ", err)
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logger.Error("LoadConfig Error: ", errors.New("failed to unmarshal config"), "error: ", err)
		return nil, err
	}

	if err := config.Validate(); err != nil {
		logger.Error("LoadConfig Error: ", err)
		return nil, err
	}

	logger.Info("LoadConfig: ", "load config success", "governance_mode", config.Governance.Mode, "token_provider", config.Token.Provider)
	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Auth.NonceStore {
	case NonceStoreRedis, NonceStoreMemory:
	default:
		return fmt.Errorf("unsupported nonce store: %s", c.Auth.NonceStore)
	}
	if c.Auth.Domain == "" {
		return errors.New("auth.domain is required")
	}
	if c.Auth.NonceTTL < time.Second {
		return fmt.Errorf("auth.nonce_ttl must be at least 1s, got %s", c.Auth.NonceTTL)
	}
	g := c.Governance
	if g.Mode != ModeBasic && g.Mode != ModeStaking {
		return fmt.Errorf("unsupported governance mode: %s", g.Mode)
	}
	// 无单位的整数会按纳秒解析
	if g.ProposalTTL < time.Second {
		return fmt.Errorf("proposal_ttl must be at least 1s (use a unit, e.g. 168h), got %s", g.ProposalTTL)
	}
	if g.MinTimeLockDelay < time.Second {
		return fmt.Errorf("min_timelock_delay must be at least 1s (use a unit, e.g. 1h), got %s", g.MinTimeLockDelay)
	}
	if g.SlashPercentage == 0 || g.SlashPercentage > 100 {
		return fmt.Errorf("slash_percentage must be in (0, 100], got %d", g.SlashPercentage)
	}
	if g.MaxSlashCount == 0 {
		return errors.New("max_slash_count must be positive")
	}
	if _, err := g.MinimumStakeAmount(); err != nil {
		return err
	}
	for _, addr := range g.InitialAdmins {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid initial admin address: %s", addr)
		}
	}
	if g.Mode == ModeStaking {
		switch c.Token.Provider {
		case TokenProviderMemory:
		case TokenProviderERC20:
			if !common.IsHexAddress(c.Token.ContractAddress) {
				return fmt.Errorf("invalid token contract address: %s", c.Token.ContractAddress)
			}
			if c.Token.RPCURL == "" || c.Token.PrivateKey == "" {
				return errors.New("erc20 token provider requires rpc_url and private_key")
			}
		default:
			return fmt.Errorf("unsupported token provider: %s", c.Token.Provider)
		}
	}
	return nil
}

// AdminFloor 管理员人数下限：基础模式1，质押模式3
func (g GovernanceConfig) AdminFloor() uint64 {
	if g.MinAdmins > 0 {
		return g.MinAdmins
	}
	if g.Mode == ModeBasic {
		return 1
	}
	return 3
}

// MinimumStakeAmount 解析最低质押数量
func (g GovernanceConfig) MinimumStakeAmount() (*big.Int, error) {
	if g.MinimumStake == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(g.MinimumStake, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid minimum_stake: %s", g.MinimumStake)
	}
	return v, nil
}

// InitialAdminAddresses 初始管理员地址
func (g GovernanceConfig) InitialAdminAddresses() []common.Address {
	out := make([]common.Address, 0, len(g.InitialAdmins))
	for _, a := range g.InitialAdmins {
		out = append(out, common.HexToAddress(a))
	}
	return out
}
