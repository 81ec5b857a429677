package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	ErrNotFound         = errors.New("environment variable with key not found")
	ErrConversionFailed = errors.New("failed to convert environment variable with key to value")
)

func errNotFound(key string) error {
	return fmt.Errorf("key: %s: %w", key, ErrNotFound)
}

func errConversionFailed(key string, typeName string, err error) error {
	return fmt.Errorf("key: %s type: %s: %s: %w", key, typeName, err.Error(), ErrConversionFailed)
}

func MustGetString(key string) string {
	if val, found := os.LookupEnv(key); found {
		return val
	}

	panic(errNotFound(key))
}

func MustGetInt(key string) int {
	envVal, found := os.LookupEnv(key)
	if !found {
		panic(errNotFound(key))
	}

	val, err := strconv.Atoi(envVal)
	if err != nil {
		panic(errConversionFailed(key, "int", err))
	}

	return val
}

func GetStringOrDefault(key string, fallback string) string {
	if val, found := os.LookupEnv(key); found {
		return val
	}

	return fallback
}

func GetInt64OrDefault(key string, fallback int64) int64 {
	envVal, found := os.LookupEnv(key)
	if !found {
		return fallback
	}

	val, err := strconv.ParseInt(envVal, 10, 64)
	if err != nil {
		panic(errConversionFailed(key, "int64", err))
	}

	return val
}

func GetDurationOrDefault(key string, fallback time.Duration) time.Duration {
	envVal, found := os.LookupEnv(key)
	if !found {
		return fallback
	}

	val, err := time.ParseDuration(envVal)
	if err != nil {
		panic(errConversionFailed(key, "time.Duration", err))
	}

	return val
}
