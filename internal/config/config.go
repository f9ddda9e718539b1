package config

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/solquote/mmbot/pkg/secrets"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Asset      AssetConfig      `mapstructure:"asset"`
	Volatility VolatilityConfig `mapstructure:"volatility"`
	Volume     VolumeConfig     `mapstructure:"volume"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GCP        GCPConfig        `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ExchangeConfig struct {
	Name             string `mapstructure:"name"`
	BaseURL          string `mapstructure:"base_url"`
	WebSocketURL     string `mapstructure:"websocket_url"`
	AuthType         string `mapstructure:"auth_type"` // "hmac" or "wallet"
	APIWallet        string `mapstructure:"api_wallet"`
	APIWalletPrivate string `mapstructure:"api_wallet_private"`
	MainWallet       string `mapstructure:"main_wallet"`
}

type AssetConfig struct {
	Base          string  `mapstructure:"base"`
	SpotSymbol    string  `mapstructure:"spot_symbol"`
	PerpSymbol    string  `mapstructure:"perp_symbol"`
	BaseSpread    float64 `mapstructure:"base_spread"`
	InventorySize float64 `mapstructure:"inventory_size"`
	Leverage      float64 `mapstructure:"leverage"`
}

type VolatilityConfig struct {
	ATRPeriod   int     `mapstructure:"atr_period"`
	Timeframe   string  `mapstructure:"timeframe"`
	ScaleFactor float64 `mapstructure:"scale_factor"`
}

type VolumeConfig struct {
	MinSpread         float64 `mapstructure:"min_spread"`
	MaxSpread         float64 `mapstructure:"max_spread"`
	SpreadAggression  float64 `mapstructure:"spread_aggression"`
	OrderTiers        int     `mapstructure:"order_tiers"`
	TierSpacing       float64 `mapstructure:"tier_spacing"`
	MinOrderSize      float64 `mapstructure:"min_order_size"`
	MaxOrderSize      float64 `mapstructure:"max_order_size"`
	TargetDailyVolume float64 `mapstructure:"target_daily_volume"`
}

type RiskConfig struct {
	MaxInventory  float64 `mapstructure:"max_inventory"`
	MaxVolatility float64 `mapstructure:"max_volatility"`
	MarginBuffer  float64 `mapstructure:"margin_buffer"`
	TradesPerDay  int     `mapstructure:"trades_per_day"`
	QuoteCurrency string  `mapstructure:"quote_currency"`
}

type TradingConfig struct {
	UpdateInterval    int     `mapstructure:"update_interval"`
	FundingRateAnnual float64 `mapstructure:"funding_rate_annual"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string              `mapstructure:"project_id"`
	UseSecrets      bool                `mapstructure:"use_secrets"`
	CredentialsFile string              `mapstructure:"credentials_file"`
	SecretNames     secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	// A missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/mmbot")
	}

	v.SetEnvPrefix("MMBOT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Asset.Base == "" && c.Asset.SpotSymbol == "" {
		return fmt.Errorf("either asset.base or asset.spot_symbol must be set")
	}
	if c.Asset.BaseSpread <= 0 {
		return fmt.Errorf("asset.base_spread must be positive")
	}
	if c.Volume.OrderTiers <= 0 {
		return fmt.Errorf("volume.order_tiers must be positive")
	}
	if c.Volume.MinSpread > c.Volume.MaxSpread {
		return fmt.Errorf("volume.min_spread must not exceed volume.max_spread")
	}
	if c.Volatility.ATRPeriod <= 0 {
		return fmt.Errorf("volatility.atr_period must be positive")
	}
	if c.Trading.UpdateInterval <= 0 {
		return fmt.Errorf("trading.update_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)

	// Exchange defaults
	v.SetDefault("exchange.name", "hyperliquid")
	v.SetDefault("exchange.base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("exchange.websocket_url", "wss://api.hyperliquid.xyz/ws")
	v.SetDefault("exchange.auth_type", "hmac")

	// Asset defaults
	v.SetDefault("asset.base", "SOL")
	v.SetDefault("asset.base_spread", 0.00245)
	v.SetDefault("asset.inventory_size", 10.0)
	v.SetDefault("asset.leverage", 1.0)

	// Volatility defaults
	v.SetDefault("volatility.atr_period", 14)
	v.SetDefault("volatility.timeframe", "1h")
	v.SetDefault("volatility.scale_factor", 0.5)

	// Volume generation defaults
	v.SetDefault("volume.min_spread", 0.0005)
	v.SetDefault("volume.max_spread", 0.0050)
	v.SetDefault("volume.spread_aggression", 0.8)
	v.SetDefault("volume.order_tiers", 3)
	v.SetDefault("volume.tier_spacing", 0.0002)
	v.SetDefault("volume.min_order_size", 0.5)
	v.SetDefault("volume.max_order_size", 5.0)
	v.SetDefault("volume.target_daily_volume", 1000.0)

	// Risk defaults
	v.SetDefault("risk.max_inventory", 10.0)
	v.SetDefault("risk.max_volatility", 0.24)
	v.SetDefault("risk.margin_buffer", 2.0)
	v.SetDefault("risk.trades_per_day", 500)
	v.SetDefault("risk.quote_currency", "USDC")

	// Trading defaults
	v.SetDefault("trading.update_interval", 5)
	v.SetDefault("trading.funding_rate_annual", 0.08)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "logs/mmbot.log")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.api_wallet", secretNames.APIWallet)
	v.SetDefault("gcp.secret_names.api_wallet_private", secretNames.APIWalletPrivate)
	v.SetDefault("gcp.secret_names.main_wallet", secretNames.MainWallet)
}

func overrideFromEnv(config *Config) {
	if wallet := os.Getenv("HYPERLIQUID_API_WALLET"); wallet != "" {
		config.Exchange.APIWallet = wallet
	}
	if key := os.Getenv("HYPERLIQUID_API_WALLET_PRIVATE"); key != "" {
		config.Exchange.APIWalletPrivate = key
	}
	if wallet := os.Getenv("HYPERLIQUID_MAIN_WALLET"); wallet != "" {
		config.Exchange.MainWallet = wallet
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only fill in credentials that are not already set.
	if config.Exchange.APIWallet == "" {
		config.Exchange.APIWallet = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APIWallet, "")
	}
	if config.Exchange.APIWalletPrivate == "" {
		config.Exchange.APIWalletPrivate = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.APIWalletPrivate, "")
	}
	if config.Exchange.MainWallet == "" {
		config.Exchange.MainWallet = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.MainWallet, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
