package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CODEDESK_DB_DSN"
	EnvDBHost = "CODEDESK_DB_HOST"
	EnvDBUser = "CODEDESK_DB_USER"
	EnvDBName = "CODEDESK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Recovery     RecoveryConfig
	Redeemer     RedeemerConfig
	Settings     SettingsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CODEDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"CODEDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CODEDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CODEDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CODEDESK_DB_DSN"`
	Driver string `envconfig:"CODEDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CODEDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"CODEDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CODEDESK_DB_USER"`
	LegacyPassword string `envconfig:"CODEDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"CODEDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"CODEDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CODEDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CODEDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CODEDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CODEDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CODEDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CODEDESK_REDIS_ADDR"`
	Password     string        `envconfig:"CODEDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"CODEDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CODEDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CODEDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CODEDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CODEDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CODEDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CODEDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CODEDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CODEDESK_JWT_EXPIRATION_MINUTES" default:"720"`
}

// RecoveryConfig tunes the account recovery engine.
type RecoveryConfig struct {
	// WindowDays is the warranty window fallback when no settings row overrides it.
	WindowDays int `envconfig:"CODEDESK_RECOVERY_WINDOW_DAYS" default:"30"`
	// MaxBatchSize caps how many original code ids one recover call may carry.
	MaxBatchSize int `envconfig:"CODEDESK_RECOVERY_MAX_BATCH" default:"200"`
	// SeatCapacity is the per-account seat ceiling a candidate must stay under.
	SeatCapacity int `envconfig:"CODEDESK_RECOVERY_SEAT_CAPACITY" default:"5"`
	// PlanDays is the contractual plan length used to derive warranty deadlines.
	PlanDays int `envconfig:"CODEDESK_RECOVERY_PLAN_DAYS" default:"30"`
}

func (r RecoveryConfig) PlanDuration() time.Duration {
	days := r.PlanDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// RedeemerConfig points at the external code redemption service.
type RedeemerConfig struct {
	BaseURL string        `envconfig:"CODEDESK_REDEEMER_BASE_URL"`
	Token   string        `envconfig:"CODEDESK_REDEEMER_TOKEN"`
	Timeout time.Duration `envconfig:"CODEDESK_REDEEMER_TIMEOUT" default:"30s"`
}

type SettingsConfig struct {
	CacheTTL time.Duration `envconfig:"CODEDESK_SETTINGS_CACHE_TTL" default:"1m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CODEDESK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
