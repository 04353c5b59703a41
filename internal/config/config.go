package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chainraise/chainraise/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config represents the main application configuration
type Config struct {
	Environment types.Environment   `mapstructure:"environment"`
	Server      ServerConfig        `mapstructure:"server"`
	Network     types.NetworkConfig `mapstructure:"network"`
	Contract    ContractConfig      `mapstructure:"contract"`
	Wallet      WalletConfig        `mapstructure:"wallet"`
	Tracker     TrackerConfig       `mapstructure:"tracker"`
	Cache       CacheConfig         `mapstructure:"cache"`
	Notify      NotifyConfig        `mapstructure:"notify"`
	Monitoring  MonitoringConfig    `mapstructure:"monitoring"`
}

// ServerConfig represents HTTP gateway configuration
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	TLSEnabled     bool   `mapstructure:"tls_enabled"`
	TLSCertPath    string `mapstructure:"tls_cert_path"`
	TLSKeyPath     string `mapstructure:"tls_key_path"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	MaxHeaderBytes int    `mapstructure:"max_header_bytes"`
}

// ContractConfig pins the deployed donation contract and the per-operation
// gas limits used when submitting writes.
type ContractConfig struct {
	Address   string         `mapstructure:"address"`
	GasLimits GasLimitConfig `mapstructure:"gas_limits"`
}

// GasLimitConfig carries fixed gas limits per write operation. Zero means
// estimate on submission.
type GasLimitConfig struct {
	CreateCampaign uint64 `mapstructure:"create_campaign"`
	Donate         uint64 `mapstructure:"donate"`
	CloseCampaign  uint64 `mapstructure:"close_campaign"`
	WithdrawFunds  uint64 `mapstructure:"withdraw_funds"`
}

// ForOp returns the configured gas limit for a write operation.
func (g GasLimitConfig) ForOp(op types.WriteOp) uint64 {
	switch op {
	case types.OpCreateCampaign:
		return g.CreateCampaign
	case types.OpDonate:
		return g.Donate
	case types.OpCloseCampaign:
		return g.CloseCampaign
	case types.OpWithdrawFunds:
		return g.WithdrawFunds
	default:
		return 0
	}
}

// WalletProviderConfig describes one connectable wallet provider.
type WalletProviderConfig struct {
	ID               string `mapstructure:"id"`
	Name             string `mapstructure:"name"`
	Type             string `mapstructure:"type"` // keystore, env
	KeystorePath     string `mapstructure:"keystore_path"`
	PassphraseEnvVar string `mapstructure:"passphrase_env_var"`
	KeyEnvVar        string `mapstructure:"key_env_var"`
}

// WalletConfig represents wallet session configuration
type WalletConfig struct {
	Providers []WalletProviderConfig `mapstructure:"providers"`

	// RPCEndpoint is the endpoint the wallet-backed handle connects to. It
	// may point at a different network than the required one; the session
	// manager then negotiates a chain switch.
	RPCEndpoint string `mapstructure:"rpc_endpoint"`

	// ChainPollInterval is how often the session manager checks the wallet
	// connection for chain changes.
	ChainPollInterval string `mapstructure:"chain_poll_interval"`
}

// GetChainPollInterval returns the chain poll interval, defaulting to 15s.
func (w *WalletConfig) GetChainPollInterval() time.Duration {
	d, err := time.ParseDuration(w.ChainPollInterval)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// TrackerConfig represents transaction confirmation tracking configuration
type TrackerConfig struct {
	PollInterval    string `mapstructure:"poll_interval"`
	PollMaxAttempts int    `mapstructure:"poll_max_attempts"`
	WaitTimeout     string `mapstructure:"wait_timeout"`
}

// GetPollInterval returns the receipt poll interval, defaulting to 5s.
func (t *TrackerConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(t.PollInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetWaitTimeout returns the blocking-wait budget, defaulting to 3m.
func (t *TrackerConfig) GetWaitTimeout() time.Duration {
	d, err := time.ParseDuration(t.WaitTimeout)
	if err != nil || d <= 0 {
		return 3 * time.Minute
	}
	return d
}

// CacheConfig represents the campaign snapshot cache configuration
type CacheConfig struct {
	TTL string `mapstructure:"ttl"`
}

// GetTTL returns the cache TTL, defaulting to 30s.
func (c *CacheConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// NotifyConfig represents notification sink configuration
type NotifyConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
	NATS    NATSConfig    `mapstructure:"nats"`
}

// WebhookConfig represents the webhook notification sink
type WebhookConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Secret     string `mapstructure:"secret"`
	MaxRetries int    `mapstructure:"max_retries"`
	Timeout    string `mapstructure:"timeout"`
}

// GetTimeout returns the delivery timeout, defaulting to 10s.
func (w *WebhookConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(w.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// NATSConfig represents the NATS notification sink
type NATSConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	URLs       []string `mapstructure:"urls"`
	Subject    string   `mapstructure:"subject"`
	StreamName string   `mapstructure:"stream_name"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusPort int    `mapstructure:"prometheus_port"`
	LogLevel       string `mapstructure:"log_level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		env := os.Getenv("CHAINRAISE_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		configPath = getConfigPathForEnv(env)
	}

	viper.SetConfigFile(configPath)

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CHAINRAISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// getConfigPathForEnv returns the config file path for the given environment
func getConfigPathForEnv(env string) string {
	switch env {
	case "mainnet":
		return "config/config.mainnet.yaml"
	case "testnet":
		return "config/config.testnet.yaml"
	default:
		return "config/config.dev.yaml"
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if config.Environment == "" {
		return fmt.Errorf("environment must be specified")
	}

	if err := validateNetworkConfig(&config.Network, config.Environment); err != nil {
		return fmt.Errorf("invalid network config: %w", err)
	}

	if !common.IsHexAddress(config.Contract.Address) {
		return fmt.Errorf("contract address %q is not a valid hex address", config.Contract.Address)
	}

	if config.Tracker.PollMaxAttempts < 1 {
		return fmt.Errorf("tracker poll_max_attempts must be at least 1")
	}

	for i, p := range config.Wallet.Providers {
		if err := validateProviderConfig(&p); err != nil {
			return fmt.Errorf("invalid wallet provider at index %d (%s): %w", i, p.ID, err)
		}
	}

	if config.Notify.Webhook.Enabled && config.Notify.Webhook.URL == "" {
		return fmt.Errorf("webhook notifications enabled without a url")
	}

	if config.Notify.NATS.Enabled {
		if len(config.Notify.NATS.URLs) == 0 {
			return fmt.Errorf("nats notifications enabled without urls")
		}
		if config.Notify.NATS.Subject == "" {
			return fmt.Errorf("nats notifications enabled without a subject")
		}
	}

	return nil
}

// validateNetworkConfig validates the fixed network parameters
func validateNetworkConfig(network *types.NetworkConfig, env types.Environment) error {
	if network.Name == "" {
		return fmt.Errorf("network name is required")
	}
	if network.ChainID == 0 {
		return fmt.Errorf("network chain_id is required")
	}
	if network.Environment != env {
		return fmt.Errorf("network environment (%s) does not match global environment (%s)",
			network.Environment, env)
	}
	if len(network.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	if network.NativeCurrency.Decimals == 0 {
		network.NativeCurrency.Decimals = 18
	}
	return nil
}

// validateProviderConfig validates a single wallet provider entry
func validateProviderConfig(p *WalletProviderConfig) error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}

	switch p.Type {
	case "keystore":
		if p.KeystorePath == "" {
			return fmt.Errorf("keystore provider must have keystore_path")
		}
	case "env":
		if p.KeyEnvVar == "" {
			return fmt.Errorf("env provider must have key_env_var")
		}
	default:
		return fmt.Errorf("unsupported provider type: %s", p.Type)
	}

	return nil
}
