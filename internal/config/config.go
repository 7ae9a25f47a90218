package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr string

	DatabasePath string

	// NonIncreasingPolicy selects how the conversion engine treats a point
	// reading below the running total: "clamp" or "reject".
	NonIncreasingPolicy string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:             getenv("APP_SERVICE", "metermate"),
		AppVersion:          getenv("APP_VERSION", "0.1.0"),
		Environment:         getenv("ENVIRONMENT", "development"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
		DatabasePath:        getenv("DATABASE_PATH", "metermate.db"),
		NonIncreasingPolicy: strings.ToLower(getenv("NONINCREASING_POLICY", "clamp")),
	}
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
