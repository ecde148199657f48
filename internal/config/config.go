package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded by the process
// runner). No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	Redis RedisConfig
	Calls CallsConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type RedisConfig struct {
	Host string
	Port int

	// StatusChannel is the pub/sub channel carrying call status updates.
	StatusChannel string
}

// CallsConfig tunes orchestration. Defaults are applied in Validate().
type CallsConfig struct {
	MaxConcurrentCalls int
	CallTimeout        time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	IntelligentRouting bool
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.StatusChannel = strings.TrimSpace(os.Getenv("REDIS_STATUS_CHANNEL"))

	c.Calls.MaxConcurrentCalls = optionalInt("MAX_CONCURRENT_CALLS")
	c.Calls.CallTimeout = optionalDuration("CALL_TIMEOUT")
	c.Calls.MaxRetries = optionalInt("MAX_RETRIES")
	c.Calls.RetryDelay = optionalDuration("RETRY_DELAY")
	c.Calls.IntelligentRouting = optionalBool("INTELLIGENT_ROUTING", true)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.StatusChannel == "" {
		c.Redis.StatusChannel = "calls:status"
	}

	if c.Calls.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS must be >= 0, got %d", c.Calls.MaxConcurrentCalls))
	}
	if c.Calls.MaxConcurrentCalls == 0 {
		c.Calls.MaxConcurrentCalls = 10
	}
	if c.Calls.CallTimeout <= 0 {
		c.Calls.CallTimeout = 30 * time.Second
	}
	if c.Calls.MaxRetries <= 0 {
		c.Calls.MaxRetries = 3
	}
	if c.Calls.RetryDelay <= 0 {
		c.Calls.RetryDelay = time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optionalDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optionalBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
