package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	DebugMode      bool
	ServerConfig   *ServerConfig
	ExecutorConfig *ExecutorConfig
	SweeperConfig  *SweeperConfig
	RedisConfig    *RedisConfig
	DatabaseConfig *DatabaseConfig
	JwtConfig      *JwtConfig
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		ServerConfig:   NewServerConfig(),
		ExecutorConfig: NewExecutorConfig(),
		SweeperConfig:  NewSweeperConfig(),
		RedisConfig:    NewRedisConfig(),
		DatabaseConfig: NewDatabaseConfig(),
		JwtConfig:      NewJwtConfig(),
	}
}

// LoadEnv loads <environment>.env into the process environment.
// An empty environment leaves the environment untouched.
func LoadEnv(environment string) error {
	if environment == "" {
		return nil
	}
	if err := godotenv.Load(environment + ".env"); err != nil {
		return fmt.Errorf("failed to load %s.env: %w", environment, err)
	}
	return nil
}

type ServerConfig struct {
	HTTPPort  int
	TCPAddr   string
	MediaRoot string
}

func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPPort:  getIntEnv("HTTP_PORT", 8082),
		TCPAddr:   getEnv("TCP_ADDR", ":9000"),
		MediaRoot: getEnv("MEDIA_ROOT", "./media"),
	}
}

// getEnv gets an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an environment variable as an integer with a fallback
func getIntEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getSecondsEnv(key string, fallback int) time.Duration {
	return time.Duration(getIntEnv(key, fallback)) * time.Second
}
