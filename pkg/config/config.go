package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	Platform struct {
		Name     string `mapstructure:"NAME"`
		Timezone string `mapstructure:"TIMEZONE"`
		NodeID   int64  `mapstructure:"NODE_ID"`
	} `mapstructure:"PLATFORM"`
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Host                   string `mapstructure:"HOST"`
		Port                   string `mapstructure:"PORT"`
		DBNAME                 string `mapstructure:"DBNAME"`
		User                   string `mapstructure:"USER"`
		Password               string `mapstructure:"PASSWORD"`
		SSLMode                string `mapstructure:"SSLMODE"`
		Timezone               string `mapstructure:"TIMEZONE"`
		AutoMigrate            bool   `mapstructure:"AUTO_MIGRATE"`
		// seconds between pool stat refreshes
		MetricsRefreshInterval uint32 `mapstructure:"METRICS_REFRESH_INTERVAL"`
		ConnectionPool         struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Enable     bool   `mapstructure:"ENABLE"`
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Unipile struct {
		BaseURL       string        `mapstructure:"BASE_URL"`
		APIKey        string        `mapstructure:"API_KEY"`
		WebhookSecret string        `mapstructure:"WEBHOOK_SECRET"`
		Timeout       time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"UNIPILE"`
	Scheduler struct {
		Enable        bool          `mapstructure:"ENABLE"`
		Token         string        `mapstructure:"TOKEN"`
		Cron          string        `mapstructure:"CRON"`
		DispatchDelay time.Duration `mapstructure:"DISPATCH_DELAY"`
		LockTTL       time.Duration `mapstructure:"LOCK_TTL"`
	} `mapstructure:"SCHEDULER"`
	Executor struct {
		ReadInterval    time.Duration `mapstructure:"READ_INTERVAL"`
		ReadBurst       int           `mapstructure:"READ_BURST"`
		ReadConcurrency int           `mapstructure:"READ_CONCURRENCY"`
		WriteInterval   time.Duration `mapstructure:"WRITE_INTERVAL"`
		SearchPageSize  int           `mapstructure:"SEARCH_PAGE_SIZE"`
		MaxLeadsPerRun  int           `mapstructure:"MAX_LEADS_PER_RUN"`
		Timeout         time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"EXECUTOR"`
	Credits struct {
		InviteCost  int64  `mapstructure:"INVITE_COST"`
		MessageCost int64  `mapstructure:"MESSAGE_COST"`
		AdminToken  string `mapstructure:"ADMIN_TOKEN"`
	} `mapstructure:"CREDITS"`
	DeadLetter struct {
		Key    string `mapstructure:"KEY"`
		MaxLen int64  `mapstructure:"MAX_LEN"`
	} `mapstructure:"DLQ"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "outreach-controlplane")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PLATFORM.TIMEZONE", "UTC")
	v.SetDefault("PLATFORM.NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Minute)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("UNIPILE.TIMEOUT", 30*time.Second)
	v.SetDefault("SCHEDULER.ENABLE", true)
	v.SetDefault("SCHEDULER.CRON", "0 * * * *")
	v.SetDefault("SCHEDULER.DISPATCH_DELAY", 5*time.Second)
	v.SetDefault("SCHEDULER.LOCK_TTL", 55*time.Minute)
	v.SetDefault("EXECUTOR.READ_INTERVAL", 1500*time.Millisecond)
	v.SetDefault("EXECUTOR.READ_BURST", 1)
	v.SetDefault("EXECUTOR.READ_CONCURRENCY", 5)
	v.SetDefault("EXECUTOR.WRITE_INTERVAL", 3*time.Second)
	v.SetDefault("EXECUTOR.SEARCH_PAGE_SIZE", 25)
	v.SetDefault("EXECUTOR.MAX_LEADS_PER_RUN", 100)
	v.SetDefault("EXECUTOR.TIMEOUT", 30*time.Minute)
	v.SetDefault("CREDITS.INVITE_COST", 1)
	v.SetDefault("CREDITS.MESSAGE_COST", 1)
	v.SetDefault("DLQ.KEY", "dlq:workflow_history")
	v.SetDefault("DLQ.MAX_LEN", 10000)
}

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			zap.L().Error("failed to read config", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Warn("config.yaml not found, using defaults and environment")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to decode config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

// Location returns the scheduler reference timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Platform.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Platform.Timezone)
	if err != nil {
		zap.L().Warn("invalid platform timezone, falling back to UTC", zap.String("timezone", c.Platform.Timezone), zap.Error(err))
		return time.UTC
	}
	return loc
}
