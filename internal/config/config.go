package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dispatcher process.
// All values come from env (or an env-file loaded by the process runner).
// Postgres, Redis and AMQP are optional; each is enabled by setting its host/URL.
type Config struct {
	App      AppConfig
	Dispatch DispatchConfig
	Auth     AuthConfig
	DB       DBConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicDir holds the customer and agent pages. Empty disables static serving.
	PublicDir string

	// TrustedProxies lists the IPs/CIDRs whose X-Forwarded-For is believed.
	// Empty means the peer address is the client address.
	TrustedProxies []string
}

type DispatchConfig struct {
	WaitMinutesPerPosition int
	DefaultCustomerName    string
	DefaultAgentName       string

	// SendBuffer is the per-session outbound frame buffer.
	SendBuffer int

	// MemoryHistory caps the call records and audit events kept in process
	// when no database is configured.
	MemoryHistory int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AgentAccessKey guards token issuance for the agent console.
	AgentAccessKey string
	// RequireAgentToken makes agent:register and the agent HTTP views demand a token.
	RequireAgentToken bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host             string
	Port             int
	Password         string
	MaxSessionsPerIP int
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT", 3000)
	c.App.PublicDir = strings.TrimSpace(os.Getenv("PUBLIC_DIR"))
	c.App.TrustedProxies = splitList(os.Getenv("TRUSTED_PROXIES"))

	c.Dispatch.WaitMinutesPerPosition, parseErrs = optionalInt(parseErrs, "DISPATCH_WAIT_MINUTES_PER_POSITION", 0)
	c.Dispatch.DefaultCustomerName = strings.TrimSpace(os.Getenv("DISPATCH_DEFAULT_CUSTOMER_NAME"))
	c.Dispatch.DefaultAgentName = strings.TrimSpace(os.Getenv("DISPATCH_DEFAULT_AGENT_NAME"))
	c.Dispatch.SendBuffer, parseErrs = optionalInt(parseErrs, "DISPATCH_SEND_BUFFER", 0)
	c.Dispatch.MemoryHistory, parseErrs = optionalInt(parseErrs, "DISPATCH_MEMORY_HISTORY", 0)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")
	c.Auth.AgentAccessKey = os.Getenv("AGENT_ACCESS_KEY")
	c.Auth.RequireAgentToken, parseErrs = optionalBool(parseErrs, "AUTH_REQUIRE_AGENT_TOKEN")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.MaxSessionsPerIP, parseErrs = optionalInt(parseErrs, "REALTIME_MAX_SESSIONS_PER_IP", 0)

	c.AMQP.URL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	c.AMQP.Exchange = strings.TrimSpace(os.Getenv("AMQP_EXCHANGE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks c and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	for _, p := range c.App.TrustedProxies {
		if !isIPOrCIDR(p) {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entries must be IPs or CIDRs, got %q", p))
		}
	}

	if c.Dispatch.WaitMinutesPerPosition < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_WAIT_MINUTES_PER_POSITION must be >= 0, got %d", c.Dispatch.WaitMinutesPerPosition))
	} else if c.Dispatch.WaitMinutesPerPosition == 0 {
		c.Dispatch.WaitMinutesPerPosition = 3
	}
	if c.Dispatch.SendBuffer < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_SEND_BUFFER must be >= 0, got %d", c.Dispatch.SendBuffer))
	} else if c.Dispatch.SendBuffer == 0 {
		c.Dispatch.SendBuffer = 32
	}
	if c.Dispatch.MemoryHistory < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MEMORY_HISTORY must be >= 0, got %d", c.Dispatch.MemoryHistory))
	} else if c.Dispatch.MemoryHistory == 0 {
		c.Dispatch.MemoryHistory = 10000
	}

	errs = append(errs, c.validateAuth()...)
	if c.DBEnabled() {
		errs = append(errs, c.validateDB()...)
	}
	if c.RedisEnabled() {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Redis.MaxSessionsPerIP < 0 {
			errs = append(errs, fmt.Errorf("REALTIME_MAX_SESSIONS_PER_IP must be >= 0, got %d", c.Redis.MaxSessionsPerIP))
		} else if c.Redis.MaxSessionsPerIP == 0 {
			c.Redis.MaxSessionsPerIP = 20
		}
	}
	if c.AMQPEnabled() && c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "dispatch.events"
	}

	return joinErrors(errs)
}

func (c *Config) validateAuth() []error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		if c.Auth.RequireAgentToken {
			errs = append(errs, errors.New("JWT_SECRET is required when AUTH_REQUIRE_AGENT_TOKEN is set"))
		}
		if c.Auth.AgentAccessKey != "" {
			errs = append(errs, errors.New("JWT_SECRET is required when AGENT_ACCESS_KEY is set"))
		}
		return errs
	}

	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		// An agent shift.
		c.Auth.AccessTokenTTL = 12 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	return errs
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool { return c.App.Env == "production" }

func (c Config) AuthEnabled() bool { return c.Auth.JWTSecret != "" }

func (c Config) DBEnabled() bool { return c.DB.Host != "" }

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) AMQPEnabled() bool { return c.AMQP.URL != "" }

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func optionalInt(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func optionalBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isIPOrCIDR(v string) bool {
	if net.ParseIP(v) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(v)
	return err == nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
