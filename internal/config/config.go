// Package config loads node, gateway and client settings from a config file
// and RPS_* environment variables.
package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"sealedrps/internal/authz"
	"sealedrps/internal/retry"
	"sealedrps/internal/session"
	"sealedrps/internal/types"
)

const (
	EnvPrefix = "RPS"

	DefaultHome        = ".rps"
	DefaultABCIAddr    = "tcp://127.0.0.1:26658"
	DefaultNodeRPC     = "http://127.0.0.1:26657"
	DefaultGatewayURL  = "http://127.0.0.1:8545"
	DefaultGatewayAddr = "127.0.0.1:8545"
)

type Config struct {
	Home     string `mapstructure:"home"`
	LogLevel string `mapstructure:"log-level"`
	LogJSON  bool   `mapstructure:"log-json"`

	Node    NodeConfig     `mapstructure:"node"`
	Gateway GatewayConfig  `mapstructure:"gateway"`
	Wallet  WalletConfig   `mapstructure:"wallet"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Retry   retry.Policy   `mapstructure:"retry"`
	Session session.Config `mapstructure:"session"`
	Genesis types.Params   `mapstructure:"genesis"`
}

type NodeConfig struct {
	// ABCIAddr is where rpsd listens for the consensus engine.
	ABCIAddr  string `mapstructure:"abci-addr"`
	Transport string `mapstructure:"transport"`
	// RPC is the CometBFT RPC endpoint clients broadcast to.
	RPC string `mapstructure:"rpc"`
}

type GatewayConfig struct {
	URL     string        `mapstructure:"url"`
	Listen  string        `mapstructure:"listen"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Secret is the hex network secret. Only rpsgw reads it.
	Secret    string `mapstructure:"secret"`
	CacheSize int    `mapstructure:"cache-size"`
}

type WalletConfig struct {
	Key string `mapstructure:"key"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("home", DefaultHome)
	v.SetDefault("log-level", zerolog.InfoLevel.String())
	v.SetDefault("log-json", false)

	v.SetDefault("node.abci-addr", DefaultABCIAddr)
	v.SetDefault("node.transport", "socket")
	v.SetDefault("node.rpc", DefaultNodeRPC)

	v.SetDefault("gateway.url", DefaultGatewayURL)
	v.SetDefault("gateway.listen", DefaultGatewayAddr)
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.secret", "")
	v.SetDefault("gateway.cache-size", 1024)

	v.SetDefault("wallet.key", "")
	v.SetDefault("metrics.listen", "")

	p := retry.DefaultPolicy()
	v.SetDefault("retry.max-attempts", p.MaxAttempts)
	v.SetDefault("retry.base-delay", p.BaseDelay)
	v.SetDefault("retry.multiplier", p.Multiplier)
	v.SetDefault("retry.max-delay", p.MaxDelay)

	s := session.DefaultConfig()
	v.SetDefault("session.domain.chain-id", s.Domain.ChainID)
	v.SetDefault("session.domain.verifying-contract", "")
	v.SetDefault("session.authorization-days", s.AuthorizationDays)
	v.SetDefault("session.poll-interval", s.PollInterval)
	v.SetDefault("session.randomness-timeout", s.RandomnessTimeout)
	v.SetDefault("session.auto-claim", s.AutoClaim)

	g := types.DefaultParams()
	v.SetDefault("genesis.contract-address", "")
	v.SetDefault("genesis.entry-fee", g.EntryFee)
	v.SetDefault("genesis.reward-multiplier-num", g.RewardMultiplierNum)
	v.SetDefault("genesis.reward-multiplier-den", g.RewardMultiplierDen)
	v.SetDefault("genesis.network-key", "")
	v.SetDefault("genesis.randomness-provider", "")
	v.SetDefault("genesis.settlers", []string{})
	v.SetDefault("genesis.allow-mint", false)
}

// Load reads file (if non-empty) over the defaults, then applies RPS_*
// environment overrides: RPS_NODE_RPC overrides node.rpc.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log-level: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max-attempts must be at least 1")
	}
	if c.Session.AuthorizationDays > authz.MaxDurationDays {
		return fmt.Errorf("config: session.authorization-days exceeds %d", authz.MaxDurationDays)
	}
	return nil
}

// DataDir is where rpsd keeps its database.
func (c *Config) DataDir() string {
	return filepath.Join(c.Home, "data")
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger(w io.Writer) (log.Logger, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: log-level: %w", err)
	}
	opts := []log.Option{log.LevelOption(lvl)}
	if c.LogJSON {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(w, opts...), nil
}
