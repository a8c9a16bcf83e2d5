package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Zego        ZegoConfig
	AWS         AWSConfig
	Midtrans    MidtransConfig
	Coordinator CoordinatorConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/lms?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds the per-user-type signing secrets.
type JWTConfig struct {
	TeacherSecret string
	StudentSecret string
	ExpireHours   int
}

// ZegoConfig holds the media SDK credentials used for channel tokens.
type ZegoConfig struct {
	AppID        uint32
	ServerSecret string // 32 characters
	TokenTTLSec  int64
}

// AWSConfig holds AWS credentials and the lecture archive bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ArchiveBucket   string
}

// MidtransConfig holds the payment gateway settings for checkout descriptors.
type MidtransConfig struct {
	ServerKey  string
	Production bool
}

// CoordinatorConfig selects storage backends and the reconciliation schedule.
type CoordinatorConfig struct {
	StoreBackend    string // postgres | memory; memory is for local development and tests
	BlockStore      string // memory | redis
	SweeperSchedule string // cron expression, e.g. "@every 5m"
	SeedFile        string // JSON array of lectures loaded into the memory store at startup
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lms"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			TeacherSecret: getEnv("JWT_TEACHER_SECRET", getEnv("JWT_SECRET", "")),
			StudentSecret: getEnv("JWT_STUDENT_SECRET", getEnv("JWT_SECRET", "")),
			ExpireHours:   getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Zego: ZegoConfig{
			AppID:        uint32(getEnvInt("ZEGO_APP_ID", 0)),
			ServerSecret: getEnv("ZEGO_SERVER_SECRET", ""),
			TokenTTLSec:  int64(getEnvInt("ZEGO_TOKEN_TTL_SEC", 3600)),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-southeast-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:   getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
		},
		Midtrans: MidtransConfig{
			ServerKey:  getEnv("MIDTRANS_SERVER_KEY", ""),
			Production: getEnvBool("MIDTRANS_PRODUCTION", false),
		},
		Coordinator: CoordinatorConfig{
			StoreBackend:    strings.ToLower(getEnv("LECTURE_STORE", BackendPostgres)),
			BlockStore:      strings.ToLower(getEnv("BLOCK_STORE", BackendMemory)),
			SweeperSchedule: getEnv("SWEEPER_SCHEDULE", "@every 5m"),
			SeedFile:        getEnv("LECTURE_SEED_FILE", ""),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.JWT.TeacherSecret == "" || c.JWT.StudentSecret == "" {
		return fmt.Errorf("JWT_TEACHER_SECRET and JWT_STUDENT_SECRET (or JWT_SECRET) are required")
	}
	switch c.Coordinator.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("LECTURE_STORE must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Coordinator.StoreBackend)
	}
	if c.Coordinator.SeedFile != "" && c.Coordinator.StoreBackend != BackendMemory {
		return fmt.Errorf("LECTURE_SEED_FILE requires LECTURE_STORE=memory")
	}
	switch c.Coordinator.BlockStore {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("BLOCK_STORE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("BLOCK_STORE must be %q or %q, got %q", BackendMemory, BackendRedis, c.Coordinator.BlockStore)
	}
	if s := c.Zego.ServerSecret; s != "" && len(s) != 32 {
		return fmt.Errorf("ZEGO_SERVER_SECRET must be 32 characters")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
