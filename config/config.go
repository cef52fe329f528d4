// Package config holds runtime configuration for the crawler, the
// scheduler, and the query API.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all tunables. One struct serves every entrypoint; the
// API- and scheduler-specific fields are ignored by a one-shot crawl.
type Config struct {
	BaseURL       string
	CataloguePath string
	MaxPages      int // 0 means walk until the catalog runs out
	Parallelism   int
	Timeout       time.Duration
	MaxRetries    int // retries after the first attempt, not total attempts
	RetryDelay    time.Duration
	UserAgent     string

	DatabasePath string
	ReportJSON   string
	ReportCSV    string

	Interval time.Duration

	APIAddr     string
	APIKeys     []string
	RatePerHour int

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://books.toscrape.com",
		CataloguePath: "catalogue",
		MaxPages:      0,
		Parallelism:   16,
		Timeout:       10 * time.Second,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		DatabasePath:  "data/bookwatch.db",
		ReportJSON:    "reports/report.json",
		ReportCSV:     "reports/report.csv",
		Interval:      5 * time.Minute,
		APIAddr:       ":8080",
		RatePerHour:   100,
		MetricsAddr:   "",
		Verbose:       false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.CataloguePath == "" {
		return fmt.Errorf("catalogue path cannot be empty")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.ReportJSON == "" || c.ReportCSV == "" {
		return fmt.Errorf("report paths cannot be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.RatePerHour <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// EnvString reads a string environment override.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment override.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration reads a duration environment override ("90s", "5m").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
