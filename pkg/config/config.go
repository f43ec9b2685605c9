package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Gateway  Gateway  `yaml:"gateway"`
	Ledger   Ledger   `yaml:"ledger"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Sweeper  Sweeper  `yaml:"sweeper"`
	Notify   Notify   `yaml:"notify"`
	Sandbox  Sandbox  `yaml:"sandbox"`
	Outbound Outbound `yaml:"outbound"`
}

type HTTP struct {
	Addr           string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"15s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

type GRPC struct {
	Addr        string `yaml:"addr" env:"GRPC_ADDR" env-default:":9091"`
	MetricsAddr string `yaml:"metrics_addr" env:"GRPC_METRICS_ADDR" env-default:":9101"`
}

// Gateway holds the mobile-money gateway credentials. All secrets come from the environment.
type Gateway struct {
	BaseURL           string        `yaml:"base_url" env:"MPESA_BASE_URL" env-default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey       string        `yaml:"consumer_key" env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret    string        `yaml:"consumer_secret" env:"MPESA_CONSUMER_SECRET"`
	BusinessShortCode string        `yaml:"business_shortcode" env:"MPESA_BUSINESS_SHORTCODE"`
	Passkey           string        `yaml:"passkey" env:"MPESA_PASSKEY"`
	CallbackURL       string        `yaml:"callback_url" env:"MPESA_CALLBACK_URL"`
	TransactionDesc   string        `yaml:"transaction_desc" env:"MPESA_TRANSACTION_DESC" env-default:"Rent Payment"`
	Timeout           time.Duration `yaml:"timeout" env:"GATEWAY_TIMEOUT" env-default:"10s"`
	CountryPrefix     string        `yaml:"country_prefix" env:"PHONE_COUNTRY_PREFIX" env-default:"254"`
	BreakerFailures   uint32        `yaml:"breaker_failures" env:"GATEWAY_BREAKER_FAILURES" env-default:"5"`
	BreakerOpenFor    time.Duration `yaml:"breaker_open_for" env:"GATEWAY_BREAKER_OPEN_FOR" env-default:"30s"`
}

type Ledger struct {
	Driver string `yaml:"driver" env:"LEDGER_DRIVER" env-default:"memory"`
	URL    string `yaml:"url" env:"DB_URL"`
}

type Redis struct {
	Addr string        `yaml:"addr" env:"REDIS_ADDR"`
	TTL  time.Duration `yaml:"ttl" env:"REDIS_STATUS_TTL" env-default:"24h"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	EventsTopic string   `yaml:"events_topic" env:"KAFKA_EVENTS_TOPIC" env-default:"payments.resolved"`
	GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"payments-notifier"`
	BufferSize  int      `yaml:"buffer_size" env:"EVENT_BUFFER_SIZE" env-default:"256"`
}

type Sweeper struct {
	Interval time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"1m"`
	MinAge   time.Duration `yaml:"min_age" env:"SWEEP_MIN_AGE" env-default:"5m"`
	Batch    int           `yaml:"batch" env:"SWEEP_BATCH" env-default:"50"`
}

type Notify struct {
	WebhookURL string        `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"NOTIFY_TIMEOUT" env-default:"5s"`
}

// Sandbox configures services/gateway-sim.
type Sandbox struct {
	Addr          string        `yaml:"addr" env:"SANDBOX_ADDR" env-default:":8081"`
	FailRate      float64       `yaml:"fail_rate" env:"FAIL_RATE" env-default:"0"`
	CallbackDelay time.Duration `yaml:"callback_delay" env:"SANDBOX_CALLBACK_DELAY" env-default:"2s"`
}

type Outbound struct {
	MaxIdleConns int `yaml:"max_idle_conns" env:"OUTBOUND_MAX_IDLE_CONNS" env-default:"20"`
}

// Load reads an optional .env file, then CONFIG_PATH (YAML) if it exists, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	path := os.Getenv("CONFIG_PATH")
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Ledger.Driver) {
	case "memory":
	case "postgres":
		if c.Ledger.URL == "" {
			return errors.New("config: DB_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_DRIVER %q", c.Ledger.Driver)
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("config: GATEWAY_TIMEOUT must be positive")
	}
	if c.Kafka.BufferSize <= 0 {
		return errors.New("config: EVENT_BUFFER_SIZE must be positive")
	}
	return nil
}

// ValidateGateway is called by binaries that talk to the real gateway.
func (g Gateway) ValidateGateway() error {
	var missing []string
	for name, v := range map[string]string{
		"MPESA_CONSUMER_KEY":       g.ConsumerKey,
		"MPESA_CONSUMER_SECRET":    g.ConsumerSecret,
		"MPESA_BUSINESS_SHORTCODE": g.BusinessShortCode,
		"MPESA_PASSKEY":            g.Passkey,
		"MPESA_CALLBACK_URL":       g.CallbackURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing gateway settings %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireShared is called by binaries that read payments written by another
// process. The memory ledger lives and dies with one process, so it is refused.
func (l Ledger) RequireShared() error {
	if strings.EqualFold(l.Driver, "postgres") {
		return nil
	}
	return fmt.Errorf("config: LEDGER_DRIVER %q is private to one process; set LEDGER_DRIVER=postgres and DB_URL", l.Driver)
}
