package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration, loaded from the environment.
type Config struct {
	DBHost            string
	DBPort            int
	DBUser            string
	DBPassword        string
	DBName            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	RedisAddr     string
	RedisPassword string

	ImageCheckerURL string
	EvidenceBaseDir string

	FTPHost     string
	FTPPort     string
	FTPUser     string
	FTPPassword string

	AuditURL string

	HTTPPort    string
	MetricsPort string
}

// Load reads configuration from the environment. A .env file is loaded first
// when present. IMAGE_CHECKER_URL and IMAGE_BASE_DIR have no sensible
// defaults and are required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "3306"))
	if err != nil {
		return nil, fmt.Errorf("DB_PORT must be a valid number: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be a valid number: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS must be a valid number: %w", err)
	}

	connLifetimeMinutes, err := strconv.Atoi(getEnv("DB_CONN_MAX_LIFETIME_MINUTES", "5"))
	if err != nil {
		return nil, fmt.Errorf("DB_CONN_MAX_LIFETIME_MINUTES must be a valid number: %w", err)
	}

	imageCheckerURL := os.Getenv("IMAGE_CHECKER_URL")
	if imageCheckerURL == "" {
		return nil, fmt.Errorf("missing required environment variable: IMAGE_CHECKER_URL")
	}

	evidenceBaseDir := os.Getenv("IMAGE_BASE_DIR")
	if evidenceBaseDir == "" {
		return nil, fmt.Errorf("missing required environment variable: IMAGE_BASE_DIR")
	}

	return &Config{
		DBHost:            getEnv("DB_HOST", "mysql"),
		DBPort:            dbPort,
		DBUser:            getEnv("DB_USER", "hunt_user"),
		DBPassword:        getEnv("DB_PASSWORD", "hunt_password"),
		DBName:            getEnv("DB_DATABASE", "hunt_db"),
		DBMaxOpenConns:    maxOpenConns,
		DBMaxIdleConns:    maxIdleConns,
		DBConnMaxLifetime: time.Duration(connLifetimeMinutes) * time.Minute,

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ImageCheckerURL: imageCheckerURL,
		EvidenceBaseDir: evidenceBaseDir,

		FTPHost:     getEnv("FTP_HOST", "ftp"),
		FTPPort:     getEnv("FTP_PORT", "21"),
		FTPUser:     getEnv("FTP_USER", "hunt"),
		FTPPassword: os.Getenv("FTP_PASSWORD"),

		AuditURL: os.Getenv("AUDIT_URL"),

		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
