package util

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

// LoadEnv loads the given .env files (".env" when none is given) into the
// process environment. Variables that are already set win.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

func GetEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return ""
	}
	return value
}

func GetEnvString(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	return value
}

func GetEnvNumeric(key string, defaultValue int) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return float64(defaultValue)
	}
	returnValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return float64(defaultValue)
	}

	return returnValue
}

// GetEnvInt returns the integer value of key, or defaultValue when the
// variable is unset or not an integer.
func GetEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("Ignoring non-integer environment variable", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func GetEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
