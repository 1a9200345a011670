package config

import "time"

type RedisConfig struct {
	DB          int
	Url         string
	Password    string
	PresenceTTL time.Duration
}

func NewRedisConfig() *RedisConfig {
	return &RedisConfig{
		DB:          getIntEnv("REDIS_DB", 0),
		Url:         getEnv("REDIS_ADDR", "localhost:6379"),
		Password:    getEnv("REDIS_PASSWORD", ""),
		PresenceTTL: getSecondsEnv("MACHINE_PRESENCE_TTL_SEC", 120),
	}
}
