package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes every configuration variable read by the service.
const EnvPrefix = "ESIM"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "ESIM_DB_DSN"
	EnvDBHost = "ESIM_DB_HOST"
	EnvDBUser = "ESIM_DB_USER"
	EnvDBName = "ESIM_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	PayLane      PayLaneConfig
	Supplier     SupplierConfig
	Provisioning ProvisioningConfig
	Telegram     TelegramConfig
	Storefront   StorefrontConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	// envconfig treats a set-but-empty variable as satisfying required, so
	// blank secrets have to be caught here.
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("%s_JWT_SECRET must not be empty", EnvPrefix)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ESIM_APP_ENV" required:"true"`
	Port         string `envconfig:"ESIM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ESIM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ESIM_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ESIM_DB_DSN"`
	Driver string `envconfig:"ESIM_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ESIM_DB_HOST"`
	LegacyPort     int    `envconfig:"ESIM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ESIM_DB_USER"`
	LegacyPassword string `envconfig:"ESIM_DB_PASSWORD"`
	LegacyName     string `envconfig:"ESIM_DB_NAME"`
	LegacySSLMode  string `envconfig:"ESIM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ESIM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ESIM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ESIM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ESIM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ESIM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ESIM_REDIS_ADDR"`
	Password     string        `envconfig:"ESIM_REDIS_PASSWORD"`
	DB           int           `envconfig:"ESIM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ESIM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ESIM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ESIM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ESIM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ESIM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ESIM_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ESIM_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ESIM_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"ESIM_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"ESIM_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"ESIM_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"ESIM_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"ESIM_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ESIM_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey     string        `envconfig:"ESIM_STRIPE_API_KEY"`
	Secret     string        `envconfig:"ESIM_STRIPE_WEBHOOK_SECRET"`
	Env        string        `envconfig:"ESIM_STRIPE_ENV" default:"test"`
	SuccessURL string        `envconfig:"ESIM_STRIPE_SUCCESS_URL" required:"true"`
	CancelURL  string        `envconfig:"ESIM_STRIPE_CANCEL_URL" required:"true"`
	SessionTTL time.Duration `envconfig:"ESIM_STRIPE_SESSION_TTL" default:"30m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PayLaneConfig struct {
	SigningKey string `envconfig:"ESIM_PAYLANE_SIGNING_KEY"`
}

type SupplierConfig struct {
	BaseURL    string        `envconfig:"ESIM_SUPPLIER_BASE_URL" required:"true"`
	AccessCode string        `envconfig:"ESIM_SUPPLIER_ACCESS_CODE" required:"true"`
	Timeout    time.Duration `envconfig:"ESIM_SUPPLIER_TIMEOUT" default:"15s"`
}

type ProvisioningConfig struct {
	PollInterval time.Duration `envconfig:"ESIM_PROVISION_POLL_INTERVAL" default:"3s"`
	MaxAttempts  int           `envconfig:"ESIM_PROVISION_MAX_ATTEMPTS" default:"10"`
	Deadline     time.Duration `envconfig:"ESIM_PROVISION_DEADLINE" default:"45s"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"ESIM_TELEGRAM_BOT_TOKEN"`
	ChatID   string `envconfig:"ESIM_TELEGRAM_CHAT_ID"`
}

type StorefrontConfig struct {
	BaseURL         string `envconfig:"ESIM_BASE_URL" default:"http://localhost:3000"`
	ReferencePrefix string `envconfig:"ESIM_REFERENCE_PREFIX" default:"SIMV"`
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
