package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig        `mapstructure:"app"`
	Server   ServerConfig     `mapstructure:"server"`
	Log      LogConfig        `mapstructure:"log"`
	DB       DBConfig         `mapstructure:"db"`
	Terminal TerminalConfig   `mapstructure:"terminal"`
	Refresh  RefreshConfig    `mapstructure:"refresh"`
	Ingest   IngestConfig     `mapstructure:"ingest"`
	Rebates  RebateConfig     `mapstructure:"rebates"`
	Fees     FeeConfig        `mapstructure:"fees"`
	Accounts []ManagedAccount `mapstructure:"accounts"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type TerminalConfig struct {
	GatewayURL  string        `mapstructure:"gateway_url"`
	Server      string        `mapstructure:"server"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type IngestConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	LookbackDays int           `mapstructure:"lookback_days"`
	Overlap      time.Duration `mapstructure:"overlap"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type RebateConfig struct {
	RatePerLot float64 `mapstructure:"rate_per_lot"`
}

type FeeConfig struct {
	AccrualInterval time.Duration `mapstructure:"accrual_interval"`
}

// ManagedAccount is static configuration for one logical trading account
// multiplexed over the single terminal connection. Passwords are resolved
// from the environment at startup, never stored in config files.
type ManagedAccount struct {
	Login       int64  `mapstructure:"login"`
	PasswordEnv string `mapstructure:"password_env"`
	Server      string `mapstructure:"server"`
	FundType    string `mapstructure:"fund_type"`
	Name        string `mapstructure:"name"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MT5")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("terminal.gateway_url", "ws://127.0.0.1:8222/terminal")
	v.SetDefault("terminal.call_timeout", "10s")
	v.SetDefault("refresh.interval", "60s")
	v.SetDefault("ingest.interval", "10m")
	v.SetDefault("ingest.lookback_days", 30)
	v.SetDefault("ingest.overlap", "1h")
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("rebates.rate_per_lot", 5.05)
	v.SetDefault("fees.accrual_interval", "1h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
