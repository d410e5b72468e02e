package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Port              string
	SecretKey         string
	SessionTTLMinutes int
	CookieSecure      bool
	StorageDriver     string
	DatabaseURL       string
	SQLitePath        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	AllowedOrigins    []string
	BusinessName      string
	BusinessTimezone  string
	ReportDir         string
	ReportS3Bucket    string
	ReportS3Prefix    string
	AutoCloseCron     string
	LogLevel          string
	LogPretty         bool
	SeedAdminUsername string
	SeedAdminPassword string
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Values already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("SESSION_TTL_MINUTES", "480"))
	if err != nil || ttl < 0 {
		ttl = 480
	}

	return Config{
		Port:              getEnv("PORT", "8080"),
		SecretKey:         strings.TrimSpace(os.Getenv("SECRET_KEY")),
		SessionTTLMinutes: ttl,
		CookieSecure:      getBool("COOKIE_SECURE", false),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getEnv("SQLITE_PATH", "caixa.db"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
		BusinessName:      getEnv("BUSINESS_NAME", "Rações Trovão"),
		BusinessTimezone:  getEnv("BUSINESS_TIMEZONE", "America/Sao_Paulo"),
		ReportDir:         os.Getenv("REPORT_DIR"),
		ReportS3Bucket:    os.Getenv("REPORT_S3_BUCKET"),
		ReportS3Prefix:    os.Getenv("REPORT_S3_PREFIX"),
		AutoCloseCron:     strings.TrimSpace(os.Getenv("AUTO_CLOSE_CRON")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getBool("LOG_PRETTY", false),
		SeedAdminUsername: getEnv("SEED_ADMIN_USERNAME", "admin"),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// SessionTTL is zero when sessions should not expire.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("business timezone %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
