package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL"`
	MultiUser   bool   `env:"MULTI_USER_MODE"`
	Postgres    Postgres
	Redis       Redis
	HTTP        HTTP
	API         API
	Cache       Cache
	Jobs        Jobs
	Session     Session
	GoogleDrive GoogleDrive
	Telegram    Telegram
	Watcher     Watcher
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME"`
	MigrationDir    string `env:"PG_MIGRATION_DIR"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type HTTP struct {
	Port            int           `env:"HTTP_PORT"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `env:"HTTP_MAX_BODY_BYTES"`
}

type API struct {
	Debug     bool          `env:"API_DEBUG"`
	Timeout   time.Duration `env:"API_TIMEOUT"`
	Eastmoney Eastmoney
}

type Eastmoney struct {
	SearchURL   string `env:"EASTMONEY_SEARCH_URL"`
	EstimateURL string `env:"EASTMONEY_ESTIMATE_URL"`
	QuoteURL    string `env:"EASTMONEY_QUOTE_URL"`
	HistoryURL  string `env:"EASTMONEY_HISTORY_URL"`
}

type Cache struct {
	ValuationExpiration time.Duration `env:"CACHE_VALUATION_EXPIRATION"`
}

type Jobs struct {
	IntradayCollectInterval time.Duration `env:"INTRADAY_COLLECT_JOB_INTERVAL"`
	ConfirmTradesInterval   time.Duration `env:"CONFIRM_TRADES_JOB_INTERVAL"`
	FundIndexRefreshCrontab string        `env:"FUND_INDEX_REFRESH_CRONTAB"`
	ExportBackupCrontab     string        `env:"EXPORT_BACKUP_CRONTAB"`
}

type Session struct {
	Expiration time.Duration `env:"SESSION_EXPIRATION"`
	CookieName string        `env:"SESSION_COOKIE_NAME"`
}

type GoogleDrive struct {
	Enabled         bool          `env:"GOOGLE_DRIVE_ENABLED"`
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL"`
}

type Telegram struct {
	Enabled bool   `env:"TELEGRAM_ALERTS_ENABLED"`
	Token   string `env:"TELEGRAM_TOKEN"`
}

type Watcher struct {
	ServerURL       string        `env:"WATCHER_SERVER_URL"`
	RefreshInterval time.Duration `env:"WATCHER_REFRESH_INTERVAL"`
	PrefsFile       string        `env:"WATCHER_PREFS_FILE"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
