package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "COURTD"

// Config captures environment driven configuration values for the court booking service.
type Config struct {
	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	ShutdownTimeout   time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver   string `envconfig:"STORE_DRIVER" default:"memory"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"courtbooking"`
	LedgerDSN     string `envconfig:"LEDGER_DSN" default:"file:courtbooking-ledger.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	AMQPURL       string `envconfig:"AMQP_URL"`
	AMQPExchange  string `envconfig:"AMQP_EXCHANGE" default:"courtbooking.events"`
	SeedCourts    int    `envconfig:"SEED_COURTS" default:"4"`

	GatewayClientID     string        `envconfig:"GATEWAY_CLIENT_ID"`
	GatewayClientSecret string        `envconfig:"GATEWAY_CLIENT_SECRET"`
	GatewayEnv          string        `envconfig:"GATEWAY_ENV" default:"sandbox"`
	GatewayBaseURL      string        `envconfig:"GATEWAY_BASE_URL"`
	GatewayTimeout      time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`
	ReturnURL           string        `envconfig:"RETURN_URL" default:"com.managercourt.app://payment/return"`
	CancelURL           string        `envconfig:"CANCEL_URL" default:"com.managercourt.app://payment/cancel"`
	BrandName           string        `envconfig:"BRAND_NAME" default:"Court Booking App"`

	ExchangeRate       int64  `envconfig:"EXCHANGE_RATE" default:"24000"`
	LocalCurrency      string `envconfig:"LOCAL_CURRENCY" default:"VND"`
	SettlementCurrency string `envconfig:"SETTLEMENT_CURRENCY" default:"USD"`
	TimeZone           string `envconfig:"TIMEZONE" default:"Asia/Ho_Chi_Minh"`
	NormalRate         int64  `envconfig:"NORMAL_RATE" default:"60000"`
	SundayRate         int64  `envconfig:"SUNDAY_RATE" default:"65000"`

	PendingMaxAge  time.Duration `envconfig:"PENDING_MAX_AGE" default:"0s"`
	ReaperInterval time.Duration `envconfig:"REAPER_INTERVAL" default:"1m"`

	Location *time.Location `ignored:"true"`
	Level    slog.Level     `ignored:"true"`
}

// Load reads optional dotenv files, then parses configuration values from the
// process environment. Values already present in the environment win over
// the files. Every invalid or missing key is reported in a single error.
func Load(files ...string) (Config, error) {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)
	key := func(name string) string { return Prefix + "_" + name }

	if strings.TrimSpace(c.GatewayClientID) == "" {
		missing = append(missing, key("GATEWAY_CLIENT_ID"))
	}
	if strings.TrimSpace(c.GatewayClientSecret) == "" {
		missing = append(missing, key("GATEWAY_CLIENT_SECRET"))
	}

	switch c.StoreDriver {
	case "memory", "mongo":
	default:
		invalid = append(invalid, key("STORE_DRIVER"))
	}
	if c.GatewayBaseURL == "" {
		switch c.GatewayEnv {
		case "sandbox", "live", "production":
		default:
			invalid = append(invalid, key("GATEWAY_ENV"))
		}
	}
	if err := c.Level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		invalid = append(invalid, key("LOG_LEVEL"))
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		invalid = append(invalid, key("TIMEZONE"))
	} else {
		c.Location = loc
	}
	if c.ExchangeRate <= 0 {
		invalid = append(invalid, key("EXCHANGE_RATE"))
	}
	if c.NormalRate <= 0 {
		invalid = append(invalid, key("NORMAL_RATE"))
	}
	if c.SundayRate <= 0 {
		invalid = append(invalid, key("SUNDAY_RATE"))
	}
	if c.GatewayTimeout <= 0 {
		invalid = append(invalid, key("GATEWAY_TIMEOUT"))
	}
	if c.PendingMaxAge < 0 {
		invalid = append(invalid, key("PENDING_MAX_AGE"))
	}
	if c.PendingMaxAge > 0 && c.ReaperInterval <= 0 {
		invalid = append(invalid, key("REAPER_INTERVAL"))
	}
	if c.SeedCourts < 0 {
		invalid = append(invalid, key("SEED_COURTS"))
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}
	return nil
}
