package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type Config struct {
	CompletionsAPIURL string
	CompletionsAPIKey string
	ExtractionModel   string
	ExtractionTimeout time.Duration
	HTTPPort          string
	DBPath            string
	AllowedOrigins    []string
}

func getEnv(key, defaultValue string, printEnv bool) string {
	logger := log.Default()
	value := os.Getenv(key)
	if printEnv {
		logger.Info("Env", "key", key, "value", value)
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvOrPanic(key string, printEnv bool) string {
	value := getEnv(key, "", printEnv)
	if value == "" {
		panic(fmt.Sprintf("Environment variable %s is not set", key))
	}
	return value
}

func getEnvSeconds(key string, defaultSeconds int, printEnv bool) time.Duration {
	raw := getEnv(key, strconv.Itoa(defaultSeconds), printEnv)
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		seconds = defaultSeconds
	}
	return time.Duration(seconds) * time.Second
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		CompletionsAPIURL: getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsAPIKey: getEnvOrPanic("COMPLETIONS_API_KEY", printEnv),
		ExtractionModel:   getEnv("EXTRACTION_MODEL", "gpt-4.1-mini", printEnv),
		ExtractionTimeout: getEnvSeconds("EXTRACTION_TIMEOUT_SECONDS", 30, printEnv),
		HTTPPort:          getEnv("HTTP_PORT", "8090", printEnv),
		DBPath:            getEnv("DB_PATH", "./output/sqlite/profile.db", printEnv),
		AllowedOrigins:    []string{getEnv("ALLOWED_ORIGIN", "*", printEnv)},
	}

	return conf, nil
}
