// Package config reads the node configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eigerco/attestd/internal/constants"
)

type Config struct {
	DataDir   string
	P2PAddr   string
	HTTPAddr  string
	Peers     []string
	ChainHash string
	OracleURL string
	KeyFile   string
	Validator bool
	Author    bool
	BlockTime time.Duration
	AdminKey  string
	LogLevel  string
	LogFormat string

	RateLimitRequests   int
	RateLimitWindow     time.Duration
	RateLimitFailClosed bool
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
}

func FromEnv() (Config, error) {
	var err error
	cfg := Config{
		DataDir:       os.Getenv("ATTESTD_DATA_DIR"),
		P2PAddr:       envDefault("ATTESTD_P2P_ADDR", "127.0.0.1:40000"),
		HTTPAddr:      envDefault("ATTESTD_HTTP_ADDR", ":8080"),
		Peers:         splitList(os.Getenv("ATTESTD_PEERS")),
		ChainHash:     envDefault("ATTESTD_CHAIN_HASH", "00000000"),
		OracleURL:     envDefault("ATTESTD_ORACLE_URL", constants.DefaultOracleURL),
		KeyFile:       os.Getenv("ATTESTD_KEY_FILE"),
		AdminKey:      os.Getenv("ATTESTD_ADMIN_KEY"),
		LogLevel:      envDefault("LOG_LEVEL", "info"),
		LogFormat:     envDefault("LOG_FORMAT", "console"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
	if cfg.Validator, err = envBool("ATTESTD_VALIDATOR", false); err != nil {
		return Config{}, err
	}
	if cfg.Author, err = envBool("ATTESTD_AUTHOR", false); err != nil {
		return Config{}, err
	}
	if cfg.BlockTime, err = envDuration("ATTESTD_BLOCK_TIME", 6*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRequests, err = envInt("RATE_LIMIT_REQUESTS", 60); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitFailClosed, err = envBool("RATE_LIMIT_FAIL_CLOSED", false); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
