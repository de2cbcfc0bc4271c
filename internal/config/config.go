package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SaltSource names where the masking salt comes from.
type SaltSource string

const (
	SaltFromEnv            SaltSource = "env"
	SaltFromSSM            SaltSource = "ssm"
	SaltFromSecretsManager SaltSource = "secretsmanager"
)

// Config contains runtime configuration required by the worker.
type Config struct {
	DBURL       string
	AutoMigrate bool

	AWSRegion           string
	SQSEndpoint         string
	SQSQueueURL         string
	SQSMaxMessages      int
	SQSWaitSeconds      int
	ReceiveErrorBackoff time.Duration

	// Salt is set directly for SaltFromEnv, otherwise SaltRef names the
	// parameter or secret and Salt is filled by ResolveSalt.
	Salt       string
	SaltSource SaltSource
	SaltRef    string

	HTTPAddr string
	APIKeys  map[string]string // apiKey -> operator

	LogLevel  string
	LogFormat string
}

// Load reads values from environment variables.
// API_KEYS format: "operator1:key1,operator2:key2"
func Load() (Config, error) {
	cfg := Config{
		DBURL:       env("DB_URL"),
		AWSRegion:   envOr("AWS_REGION", "us-east-1"),
		SQSEndpoint: env("SQS_ENDPOINT"),
		SQSQueueURL: env("SQS_QUEUE_URL"),
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
	}

	if cfg.DBURL == "" {
		return Config{}, errors.New("DB_URL required")
	}
	if cfg.SQSQueueURL == "" {
		return Config{}, errors.New("SQS_QUEUE_URL required")
	}

	var err error
	if cfg.SQSMaxMessages, err = envInt("SQS_MAX_MESSAGES", 10); err != nil {
		return Config{}, err
	}
	if cfg.SQSMaxMessages < 1 || cfg.SQSMaxMessages > 10 {
		return Config{}, errors.New("SQS_MAX_MESSAGES must be within 1..10")
	}
	if cfg.SQSWaitSeconds, err = envInt("SQS_WAIT_SECONDS", 20); err != nil {
		return Config{}, err
	}
	if cfg.SQSWaitSeconds < 0 || cfg.SQSWaitSeconds > 20 {
		return Config{}, errors.New("SQS_WAIT_SECONDS must be within 0..20")
	}

	backoff := envOr("RECEIVE_ERROR_BACKOFF", "1s")
	if cfg.ReceiveErrorBackoff, err = time.ParseDuration(backoff); err != nil {
		return Config{}, fmt.Errorf("RECEIVE_ERROR_BACKOFF: %w", err)
	}

	autoMigrate := envOr("AUTO_MIGRATE", "true")
	if cfg.AutoMigrate, err = strconv.ParseBool(autoMigrate); err != nil {
		return Config{}, fmt.Errorf("AUTO_MIGRATE: %w", err)
	}

	if err := loadSalt(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.APIKeys, err = parseAPIKeys(env("API_KEYS")); err != nil {
		return Config{}, err
	}
	// Local dev fallback so the stats endpoint works out-of-the-box.
	if len(cfg.APIKeys) == 0 {
		cfg.APIKeys["operator-key-123"] = "operator"
	}

	return cfg, nil
}

// loadSalt requires exactly one of MASKING_SALT, MASKING_SALT_SSM_PARAM, MASKING_SALT_SECRET_ID.
func loadSalt(cfg *Config) error {
	literal := os.Getenv("MASKING_SALT")
	ssmParam := env("MASKING_SALT_SSM_PARAM")
	secretID := env("MASKING_SALT_SECRET_ID")

	set := 0
	for _, v := range []string{literal, ssmParam, secretID} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of MASKING_SALT, MASKING_SALT_SSM_PARAM, MASKING_SALT_SECRET_ID required")
	}

	switch {
	case literal != "":
		cfg.Salt, cfg.SaltSource = literal, SaltFromEnv
	case ssmParam != "":
		cfg.SaltSource, cfg.SaltRef = SaltFromSSM, ssmParam
	default:
		cfg.SaltSource, cfg.SaltRef = SaltFromSecretsManager, secretID
	}
	return nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	apiKeys := map[string]string{}
	if raw == "" {
		return apiKeys, nil
	}

	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "operator:key,operator:key"`)
		}
		operator := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if operator == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "operator:key,operator:key"`)
		}
		apiKeys[key] = operator
	}
	return apiKeys, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envOr(key, def string) string {
	if v := env(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
