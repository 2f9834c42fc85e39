package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                       string
	AllowedOrigin              string
	DatabaseURL                string
	RedisAddr                  string
	RedisPassword              string
	RedisDB                    int
	SummaryTTLSeconds          int
	AuthSecret                 string
	AccessTokenTTLMinutes      int
	DefaultCreditDays          int
	AllowUnknownCustomerCredit bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	summaryTTL, err := strconv.Atoi(getEnv("SUMMARY_TTL_SECONDS", "60"))
	if err != nil || summaryTTL < 1 {
		summaryTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	creditDays, err := strconv.Atoi(getEnv("DEFAULT_CREDIT_DAYS", "30"))
	if err != nil || creditDays < 1 {
		creditDays = 30
	}

	cfg := Config{
		Port:                       getEnv("PORT", "8080"),
		AllowedOrigin:              getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisDB:                    redisDB,
		SummaryTTLSeconds:          summaryTTL,
		AuthSecret:                 strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:      tokenTTL,
		DefaultCreditDays:          creditDays,
		AllowUnknownCustomerCredit: getEnv("ALLOW_UNKNOWN_CUSTOMER_CREDIT", "true") == "true",
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
