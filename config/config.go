package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the server reads from the environment.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	PostgresURI string
	RedisAddr   string
	MongoURI    string
	MongoDB     string
	AutoMigrate bool

	GCPProjectID    string
	GCPLocation     string
	GeminiModel     string
	CredentialsFile string
	GCSBucket       string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTokenTTL time.Duration

	CacheTTL       time.Duration
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	EventWorkers   int
	WSOrigins      []string

	MongoForceTLS    bool
	MongoInsecureTLS bool
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from any lookup func; tests pass a map.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:        p.str("PORT", "8080"),
		Env:         p.str("GO_ENV", "production"),
		LogLevel:    p.str("LOG_LEVEL", "info"),
		PostgresURI: getenv("POSTGRES_URI"),
		RedisAddr:   firstNonEmpty(getenv("REDIS_ADDR"), getenv("REDIS_URI"), getenv("REDIS_URL")),
		MongoURI:    getenv("MONGO_URI"),
		MongoDB:     p.str("MONGO_DB", "dinedesk"),
		AutoMigrate: p.boolean("DB_AUTO_MIGRATE", false),

		GCPProjectID:    getenv("GCP_PROJECT_ID"),
		GCPLocation:     p.str("GCP_LOCATION", "us-central1"),
		GeminiModel:     p.str("GEMINI_MODEL", "gemini-1.5-flash"),
		CredentialsFile: getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		GCSBucket:       getenv("GCS_BUCKET"),

		JWTSecret:   getenv("STAFF_JWT_SECRET"),
		JWTIssuer:   getenv("STAFF_JWT_ISSUER"),
		JWTAudience: getenv("STAFF_JWT_AUDIENCE"),
		JWTTokenTTL: p.duration("STAFF_JWT_TTL", 12*time.Hour),

		CacheTTL:       p.duration("CACHE_TTL", time.Hour),
		RequestTimeout: p.duration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitRPS:   p.float("RATE_LIMIT_RPS", 5),
		RateLimitBurst: p.int("RATE_LIMIT_BURST", 20),
		EventWorkers:   p.int("EVENT_WORKERS", 2),
		WSOrigins:      splitList(getenv("WS_ALLOWED_ORIGINS")),

		MongoForceTLS:    p.boolean("MONGO_FORCE_TLS_CONFIG", false),
		MongoInsecureTLS: p.boolean("MONGO_INSECURE_TLS", false),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.Env == "development" {
		cfg.MongoForceTLS = true
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.PostgresURI == "" {
		missing = append(missing, "POSTGRES_URI")
	}
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR (or REDIS_URI/REDIS_URL)")
	}
	if c.GCPProjectID == "" {
		missing = append(missing, "GCP_PROJECT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s=%q: %w", key, val, err)
	}
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare numbers are seconds
		n, nerr := strconv.Atoi(v)
		if nerr != nil {
			p.fail(key, v, err)
			return def
		}
		d = time.Duration(n) * time.Second
	}
	return d
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
