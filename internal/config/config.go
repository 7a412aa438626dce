package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"cryptofund"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}

	// Store selects the invoice repository: "memory" or "postgres".
	Store struct {
		Driver string `envconfig:"STORE_DRIVER" default:"memory"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"cryptofund"`
	}

	Server struct {
		Timeout        time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	}

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	}

	Invoice struct {
		FiatCurrency string `envconfig:"FIAT_CURRENCY" default:"CZK"`
		FiatExponent int32  `envconfig:"FIAT_EXPONENT" default:"2"`
		DueDays      int    `envconfig:"INVOICE_DUE_DAYS" default:"14"`
		Locale       string `envconfig:"INVOICE_LOCALE" default:"cs"`
	}

	Rates struct {
		OracleURL       string        `envconfig:"RATES_ORACLE_URL" default:"https://api.coingecko.com/api/v3"`
		RefreshInterval time.Duration `envconfig:"RATES_REFRESH_INTERVAL" default:"5m"`
		MaxStaleness    time.Duration `envconfig:"RATES_MAX_STALENESS" default:"30m"`
		Timeout         time.Duration `envconfig:"RATES_TIMEOUT" default:"10s"`
		BreakerFailures uint32        `envconfig:"RATES_BREAKER_FAILURES" default:"3"`
		BreakerCooldown time.Duration `envconfig:"RATES_BREAKER_COOLDOWN" default:"1m"`
	}

	Explorer struct {
		EtherscanURL    string        `envconfig:"ETHERSCAN_URL" default:"https://api.etherscan.io/api"`
		EtherscanAPIKey string        `envconfig:"ETHERSCAN_API_KEY"`
		EtherscanRPS    float64       `envconfig:"ETHERSCAN_RPS" default:"5"`
		USDCContract    string        `envconfig:"USDC_CONTRACT" default:"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"`
		BlockstreamURL  string        `envconfig:"BLOCKSTREAM_URL" default:"https://blockstream.info/api"`
		Timeout         time.Duration `envconfig:"EXPLORER_TIMEOUT" default:"15s"`
		AmountTolerance string        `envconfig:"AMOUNT_TOLERANCE" default:"0.0001"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// Tolerance parses the absolute amount tolerance used when matching
// on-chain values against invoice amounts.
func (c *Config) Tolerance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Explorer.AmountTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing AMOUNT_TOLERANCE: %w", err)
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("AMOUNT_TOLERANCE must not be negative")
	}

	return d, nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.Store.Driver {
	case "memory", "postgres":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}

	if _, err := cfg.Tolerance(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
