package config

import (
	"fmt"
	"net/url"
	"strings"
)

// normalizeConfig replaces out-of-range or empty values with their defaults
// so a partially broken config file degrades instead of failing startup.
func normalizeConfig(config *Config) {
	defaults := DefaultConfig()

	if config.Catalog.BaseURL == "" {
		config.Catalog.BaseURL = defaults.Catalog.BaseURL
	}
	if config.Catalog.MaxConcurrent <= 0 {
		config.Catalog.MaxConcurrent = defaults.Catalog.MaxConcurrent
	}
	if config.Catalog.MaxQueued <= 0 {
		config.Catalog.MaxQueued = defaults.Catalog.MaxQueued
	}
	if config.Catalog.PermitWait <= 0 {
		config.Catalog.PermitWait = defaults.Catalog.PermitWait
	}
	if config.Catalog.Timeout <= 0 {
		config.Catalog.Timeout = defaults.Catalog.Timeout
	}

	if config.Cache.TTLDays <= 0 {
		config.Cache.TTLDays = defaults.Cache.TTLDays
	}
	if config.Cache.MaxEntries <= 0 {
		config.Cache.MaxEntries = defaults.Cache.MaxEntries
	}
	if config.Cache.Slack <= 0 {
		config.Cache.Slack = defaults.Cache.Slack
	}

	if config.Scanner.MaxDepth <= 0 {
		config.Scanner.MaxDepth = defaults.Scanner.MaxDepth
	}
	if config.Scanner.MaxFiles <= 0 {
		config.Scanner.MaxFiles = defaults.Scanner.MaxFiles
	}

	if config.Resolver.ResultCapacity <= 0 {
		config.Resolver.ResultCapacity = defaults.Resolver.ResultCapacity
	}
	if config.Resolver.MaxInFlight <= 0 {
		config.Resolver.MaxInFlight = defaults.Resolver.MaxInFlight
	}

	config.Logging.Level = strings.ToLower(config.Logging.Level)
	config.Logging.Format = strings.ToLower(config.Logging.Format)
}

// validateConfig rejects values that normalization cannot repair.
func validateConfig(config *Config) error {
	var validationErrors []string

	if parsed, err := url.Parse(config.Catalog.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		validationErrors = append(validationErrors, fmt.Sprintf("catalog.base_url must be an absolute URL (got: %s)", config.Catalog.BaseURL))
	}

	switch config.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "":
		// Valid
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("logging.level must be one of: trace, debug, info, warn, error (got: %s)", config.Logging.Level))
	}

	switch config.Logging.Format {
	case "auto", "json", "console", "":
		// Valid
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("logging.format must be one of: auto, json, console (got: %s)", config.Logging.Format))
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(validationErrors, "\n  - "))
	}
	return nil
}
