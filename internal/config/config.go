package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/drone/envsubst"
	"github.com/subosito/gotenv"
	"go.yaml.in/yaml/v3"
)

const configFileEnv = "DRIVER_AGENT_CONFIG"

type Config struct {
	Driver   *Driverconfig   `yaml:"driver"`
	Dispatch *Dispatchconfig `yaml:"dispatch"`
	RabbitMq *RabbitMqconfig `yaml:"rabbitmq"`
	Kafka    *Kafkaconfig    `yaml:"kafka"`
	DB       *DBconfig       `yaml:"database"`
	Backend  *Backendconfig  `yaml:"backend"`
	Routing  *Routingconfig  `yaml:"routing"`
	Offer    *Offerconfig    `yaml:"offer"`
	Location *Locationconfig `yaml:"location"`
	Pending  *Pendingconfig  `yaml:"pending"`
	UI       *UIconfig       `yaml:"ui"`
	Log      *Loggerconfig   `yaml:"log"`
}

type Driverconfig struct {
	ID        string `yaml:"id"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

type Dispatchconfig struct {
	Transport      string        `yaml:"transport"` // ws | amqp
	WSURL          string        `yaml:"ws_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

type RabbitMqconfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type Kafkaconfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

type DBconfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	MaxRetries int    `yaml:"max_retries"`
}

type Backendconfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Routingconfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Offerconfig struct {
	Countdown time.Duration `yaml:"countdown"`
}

type Locationconfig struct {
	Interval        time.Duration `yaml:"interval"`
	MinDisplacement float64       `yaml:"min_displacement_m"`
	Sink            string        `yaml:"sink"` // http | amqp | kafka
}

type Pendingconfig struct {
	Store             string        `yaml:"store"` // memory | file | postgres
	Dir               string        `yaml:"dir"`
	Capacity          int           `yaml:"capacity"`
	LocationRetention time.Duration `yaml:"location_retention"`
	TripRetention     time.Duration `yaml:"trip_retention"`
}

type UIconfig struct {
	Port int `yaml:"port"`
	// RequireAuth makes the bridge demand the driver's bearer token.
	RequireAuth bool `yaml:"require_auth"`
}

type Loggerconfig struct {
	Level string `yaml:"level"`
}

func New() (*Config, error) {
	// .env is optional
	_ = gotenv.Load()

	getEnv := func(key, def string) string {
		val := os.Getenv(key)
		if val == "" {
			return def
		}
		return val
	}

	getEnvInt := func(key string, def int) int {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := strconv.Atoi(valStr)
		if err != nil {
			fmt.Printf("cannot parse %s, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvFloat := func(key string, def float64) float64 {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			fmt.Printf("cannot parse %s, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvBool := func(key string, def bool) bool {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := strconv.ParseBool(valStr)
		if err != nil {
			fmt.Printf("cannot parse %s, using default %v\n", key, def)
			return def
		}
		return val
	}

	getEnvDuration := func(key string, def time.Duration) time.Duration {
		valStr := os.Getenv(key)
		if valStr == "" {
			return def
		}
		val, err := time.ParseDuration(valStr)
		if err != nil {
			fmt.Printf("cannot parse %s, using default %v\n", key, def)
			return def
		}
		return val
	}

	cnf := &Config{
		Driver: &Driverconfig{
			ID:        getEnv("DRIVER_ID", ""),
			Token:     getEnv("DRIVER_TOKEN", ""),
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Dispatch: &Dispatchconfig{
			Transport:      getEnv("DISPATCH_TRANSPORT", "ws"),
			WSURL:          getEnv("DISPATCH_WS_URL", "ws://localhost:3001/ws/drivers/%s"),
			ReconnectDelay: getEnvDuration("DISPATCH_RECONNECT_DELAY", 5*time.Second),
			MaxAttempts:    getEnvInt("DISPATCH_MAX_ATTEMPTS", 5),
		},
		RabbitMq: &RabbitMqconfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnvInt("RABBITMQ_PORT", 5672),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", ""),
		},
		Kafka: &Kafkaconfig{
			Brokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getEnv("KAFKA_LOCATION_TOPIC", "driver-locations"),
		},
		DB: &DBconfig{
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "ridehail_user"),
			Password:   getEnv("DB_PASSWORD", "ridehail_pass"),
			Database:   getEnv("DB_NAME", "ridehail_db"),
			MaxRetries: getEnvInt("DB_MAX_RETRIES", 3),
		},
		Backend: &Backendconfig{
			BaseURL: getEnv("BACKEND_URL", "http://localhost:3001"),
			Timeout: getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Routing: &Routingconfig{
			BaseURL: getEnv("ROUTING_URL", "http://localhost:5000"),
			Timeout: getEnvDuration("ROUTING_TIMEOUT", 10*time.Second),
		},
		Offer: &Offerconfig{
			Countdown: getEnvDuration("OFFER_COUNTDOWN", 15*time.Second),
		},
		Location: &Locationconfig{
			Interval:        getEnvDuration("LOCATION_INTERVAL", 5*time.Second),
			MinDisplacement: getEnvFloat("LOCATION_MIN_DISPLACEMENT_M", 10),
			Sink:            getEnv("LOCATION_SINK", "http"),
		},
		Pending: &Pendingconfig{
			Store:             getEnv("PENDING_STORE", "file"),
			Dir:               getEnv("PENDING_DIR", ".driver-agent"),
			Capacity:          getEnvInt("PENDING_CAPACITY", 50),
			LocationRetention: getEnvDuration("PENDING_LOCATION_RETENTION", 30*time.Minute),
			TripRetention:     getEnvDuration("PENDING_TRIP_RETENTION", 24*time.Hour),
		},
		UI: &UIconfig{
			Port:        getEnvInt("UI_PORT", 3050),
			RequireAuth: getEnvBool("UI_REQUIRE_AUTH", false),
		},
		Log: &Loggerconfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}

	if path := os.Getenv(configFileEnv); path != "" {
		if err := cnf.mergeYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cnf.Validate(); err != nil {
		return nil, err
	}
	return cnf, nil
}

// mergeYAML overlays values from a YAML file. ${VAR:-default} expressions
// are expanded before parsing.
func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	replaced, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return fmt.Errorf("expand config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(replaced), c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Dispatch.Transport {
	case "ws", "amqp":
	default:
		return fmt.Errorf("unknown dispatch transport %q", c.Dispatch.Transport)
	}
	switch c.Location.Sink {
	case "http", "amqp", "kafka":
	default:
		return fmt.Errorf("unknown location sink %q", c.Location.Sink)
	}
	switch c.Pending.Store {
	case "memory", "file", "postgres":
	default:
		return fmt.Errorf("unknown pending store %q", c.Pending.Store)
	}
	if c.Pending.Capacity <= 0 {
		return fmt.Errorf("pending capacity must be positive, got %d", c.Pending.Capacity)
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch max attempts must be positive, got %d", c.Dispatch.MaxAttempts)
	}
	if c.Offer.Countdown <= 0 {
		return fmt.Errorf("offer countdown must be positive, got %s", c.Offer.Countdown)
	}
	if c.Location.Interval <= 0 {
		return fmt.Errorf("location interval must be positive, got %s", c.Location.Interval)
	}
	return nil
}
