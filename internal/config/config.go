package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel  string
	LogFormat string

	AllowedOrigins []string

	Countdown       time.Duration
	ChatTimeout     time.Duration
	LobbyIdleTTL    time.Duration
	FinalizeLockTTL time.Duration
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	countdown, err := strconv.Atoi(getEnv("COUNTDOWN_SECONDS", "3"))
	if err != nil || countdown <= 0 {
		return nil, errors.New("COUNTDOWN_SECONDS: must be a positive integer")
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	chatTimeout, err := getDuration("CHAT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	idleTTL, err := getDuration("LOBBY_IDLE_TTL", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getDuration("FINALIZE_LOCK_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:            getEnv("PORT", "8000"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "codelobby"),
		DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         redisDB,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "*")),
		Countdown:       time.Duration(countdown) * time.Second,
		ChatTimeout:     chatTimeout,
		LobbyIdleTTL:    idleTTL,
		FinalizeLockTTL: lockTTL,
	}, nil
}

// DSN prefers DATABASE_URL and otherwise builds a keyword/value string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) Addr() string { return ":" + c.Port }

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
