package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Upbit    UpbitConfig
	Trading  TradingConfig
	Stream   StreamConfig
	Executor ExecutorConfig
	Notify   NotifyConfig
	Storage  StorageConfig
	Logging  LoggingConfig

	// ChannelCapacity bounds every pipeline channel.
	ChannelCapacity int
}

// UpbitConfig holds exchange endpoints and credentials.
type UpbitConfig struct {
	APIURL    string
	WSURL     string
	AccessKey string
	SecretKey string
	// RateLimit is the shared outbound request budget per second.
	RateLimit int
}

// TradingConfig holds the strategy parameters.
type TradingConfig struct {
	// Markets to monitor; empty means discover the top TargetMarkets
	// KRW markets at startup.
	Markets       []string
	TargetMarkets int

	ProfitRate       decimal.Decimal
	StopLossRate     decimal.Decimal
	SurgeThreshold   float64
	SurgeWindow      time.Duration
	VolumeMultiplier float64
	MinOrderAmount   decimal.Decimal
	MaxPositionRatio decimal.Decimal
	MaxPositions     int
}

// StreamConfig controls market-data stream reconnection.
type StreamConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// ExecutorConfig controls order placement retries.
type ExecutorConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// NotifyConfig holds Discord webhook settings.
type NotifyConfig struct {
	WebhookURL   string
	NotifyOnBuy  bool
	NotifyOnSell bool
	NotifyOnErr  bool
}

// StorageConfig holds the WAL location.
type StorageConfig struct {
	Dir string
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string
	JSONFormat bool
}

type configTmp struct {
	Upbit struct {
		APIURL    string `yaml:"api_url"`
		WSURL     string `yaml:"ws_url"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		RateLimit int    `yaml:"rate_limit"`
	} `yaml:"upbit"`
	Trading struct {
		Markets          []string      `yaml:"markets"`
		TargetMarkets    int           `yaml:"target_markets"`
		ProfitRate       string        `yaml:"profit_rate"`
		StopLossRate     string        `yaml:"stop_loss_rate"`
		SurgeThreshold   float64       `yaml:"surge_threshold"`
		SurgeWindow      time.Duration `yaml:"surge_window"`
		VolumeMultiplier float64       `yaml:"volume_multiplier"`
		MinOrderAmount   string        `yaml:"min_order_amount"`
		MaxPositionRatio string        `yaml:"max_position_ratio"`
		MaxPositions     int           `yaml:"max_positions"`
	} `yaml:"trading"`
	Stream struct {
		MaxRetries int           `yaml:"max_retries"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"stream"`
	Executor struct {
		MaxRetries int           `yaml:"max_retries"`
		BaseDelay  time.Duration `yaml:"base_delay"`
	} `yaml:"executor"`
	Notify struct {
		WebhookURL   string `yaml:"webhook_url"`
		NotifyOnBuy  *bool  `yaml:"notify_on_buy"`
		NotifyOnSell *bool  `yaml:"notify_on_sell"`
		NotifyOnErr  *bool  `yaml:"notify_on_error"`
	} `yaml:"notify"`
	Storage struct {
		Dir string `yaml:"dir"`
	} `yaml:"storage"`
	Logging struct {
		Level      string `yaml:"level"`
		JSONFormat *bool  `yaml:"json_format"`
	} `yaml:"logging"`
	ChannelCapacity int `yaml:"channel_capacity"`
}

// Default returns the configuration with production defaults.
func Default() Config {
	return Config{
		Upbit: UpbitConfig{
			APIURL:    "https://api.upbit.com/v1",
			WSURL:     "wss://api.upbit.com/websocket/v1",
			RateLimit: 10,
		},
		Trading: TradingConfig{
			TargetMarkets:    20,
			ProfitRate:       decimal.NewFromFloat(0.10),
			StopLossRate:     decimal.NewFromFloat(0.05),
			SurgeThreshold:   0.05,
			SurgeWindow:      60 * time.Minute,
			VolumeMultiplier: 2.0,
			MinOrderAmount:   decimal.NewFromInt(5000),
			MaxPositionRatio: decimal.NewFromFloat(0.5),
			MaxPositions:     1,
		},
		Stream: StreamConfig{
			MaxRetries: 5,
			RetryDelay: 5 * time.Second,
		},
		Executor: ExecutorConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
		},
		Notify: NotifyConfig{
			NotifyOnBuy:  true,
			NotifyOnSell: true,
			NotifyOnErr:  true,
		},
		Storage: StorageConfig{Dir: "./wal/positions"},
		Logging: LoggingConfig{Level: "info", JSONFormat: true},

		ChannelCapacity: 1000,
	}
}

// Load reads the optional YAML file at path, then applies environment
// overrides. An empty path skips the file and uses defaults plus env.
func Load(path string) (Config, error) {
	// .env is optional, ignore absence
	_ = godotenv.Load()

	conf := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}

		var tmp configTmp
		if err := yaml.Unmarshal(raw, &tmp); err != nil {
			return Config{}, errors.Wrap(err, "parse config file")
		}
		if err := apply(&conf, tmp); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&conf)

	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

func apply(conf *Config, tmp configTmp) error {
	if tmp.Upbit.APIURL != "" {
		conf.Upbit.APIURL = tmp.Upbit.APIURL
	}
	if tmp.Upbit.WSURL != "" {
		conf.Upbit.WSURL = tmp.Upbit.WSURL
	}
	if tmp.Upbit.AccessKey != "" {
		conf.Upbit.AccessKey = tmp.Upbit.AccessKey
	}
	if tmp.Upbit.SecretKey != "" {
		conf.Upbit.SecretKey = tmp.Upbit.SecretKey
	}
	if tmp.Upbit.RateLimit > 0 {
		conf.Upbit.RateLimit = tmp.Upbit.RateLimit
	}

	if len(tmp.Trading.Markets) > 0 {
		conf.Trading.Markets = tmp.Trading.Markets
	}
	if tmp.Trading.TargetMarkets > 0 {
		conf.Trading.TargetMarkets = tmp.Trading.TargetMarkets
	}
	if tmp.Trading.SurgeThreshold > 0 {
		conf.Trading.SurgeThreshold = tmp.Trading.SurgeThreshold
	}
	if tmp.Trading.SurgeWindow > 0 {
		conf.Trading.SurgeWindow = tmp.Trading.SurgeWindow
	}
	if tmp.Trading.VolumeMultiplier > 0 {
		conf.Trading.VolumeMultiplier = tmp.Trading.VolumeMultiplier
	}
	if tmp.Trading.MaxPositions > 0 {
		conf.Trading.MaxPositions = tmp.Trading.MaxPositions
	}

	for _, field := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{tmp.Trading.ProfitRate, &conf.Trading.ProfitRate},
		{tmp.Trading.StopLossRate, &conf.Trading.StopLossRate},
		{tmp.Trading.MinOrderAmount, &conf.Trading.MinOrderAmount},
		{tmp.Trading.MaxPositionRatio, &conf.Trading.MaxPositionRatio},
	} {
		if field.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return errors.Wrapf(err, "invalid decimal %q in config", field.raw)
		}
		*field.dst = d
	}

	if tmp.Stream.MaxRetries > 0 {
		conf.Stream.MaxRetries = tmp.Stream.MaxRetries
	}
	if tmp.Stream.RetryDelay > 0 {
		conf.Stream.RetryDelay = tmp.Stream.RetryDelay
	}
	if tmp.Executor.MaxRetries > 0 {
		conf.Executor.MaxRetries = tmp.Executor.MaxRetries
	}
	if tmp.Executor.BaseDelay > 0 {
		conf.Executor.BaseDelay = tmp.Executor.BaseDelay
	}

	if tmp.Notify.WebhookURL != "" {
		conf.Notify.WebhookURL = tmp.Notify.WebhookURL
	}
	if tmp.Notify.NotifyOnBuy != nil {
		conf.Notify.NotifyOnBuy = *tmp.Notify.NotifyOnBuy
	}
	if tmp.Notify.NotifyOnSell != nil {
		conf.Notify.NotifyOnSell = *tmp.Notify.NotifyOnSell
	}
	if tmp.Notify.NotifyOnErr != nil {
		conf.Notify.NotifyOnErr = *tmp.Notify.NotifyOnErr
	}

	if tmp.Storage.Dir != "" {
		conf.Storage.Dir = tmp.Storage.Dir
	}
	if tmp.Logging.Level != "" {
		conf.Logging.Level = tmp.Logging.Level
	}
	if tmp.Logging.JSONFormat != nil {
		conf.Logging.JSONFormat = *tmp.Logging.JSONFormat
	}
	if tmp.ChannelCapacity > 0 {
		conf.ChannelCapacity = tmp.ChannelCapacity
	}
	return nil
}

func applyEnv(conf *Config) {
	if v := os.Getenv("UPBIT_API_URL"); v != "" {
		conf.Upbit.APIURL = v
	}
	if v := os.Getenv("UPBIT_WS_URL"); v != "" {
		conf.Upbit.WSURL = v
	}
	if v := os.Getenv("UPBIT_ACCESS_KEY"); v != "" {
		conf.Upbit.AccessKey = v
	}
	if v := os.Getenv("UPBIT_SECRET_KEY"); v != "" {
		conf.Upbit.SecretKey = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		conf.Notify.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		conf.Logging.Level = v
	}
	if v := os.Getenv("SURGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			conf.Trading.SurgeThreshold = f
		}
	}
	if v := os.Getenv("STOP_LOSS_RATE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			conf.Trading.StopLossRate = d
		}
	}
	if v := os.Getenv("TARGET_PROFIT_RATE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			conf.Trading.ProfitRate = d
		}
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Upbit.AccessKey == "" {
		return errors.New("UPBIT_ACCESS_KEY is required")
	}
	if c.Upbit.SecretKey == "" {
		return errors.New("UPBIT_SECRET_KEY is required")
	}
	if c.Trading.MaxPositions != 1 {
		// the pipeline enforces a single concurrently held position
		return errors.Errorf("max_positions must be 1, got %d", c.Trading.MaxPositions)
	}
	if c.Trading.SurgeThreshold <= 0 {
		return errors.New("surge_threshold must be positive")
	}
	if c.Trading.MinOrderAmount.LessThanOrEqual(decimal.Zero) {
		return errors.New("min_order_amount must be positive")
	}
	if c.Trading.MaxPositionRatio.LessThanOrEqual(decimal.Zero) || c.Trading.MaxPositionRatio.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("max_position_ratio must be in (0, 1]")
	}
	return nil
}
