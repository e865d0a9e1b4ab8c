package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values, then any overrides (CLI flags),
// and validates the result.
// Returns an error if required values are missing or validation fails.
func Load(overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Input validation
	if strings.TrimSpace(c.Input.Root) == "" {
		errs = append(errs, "INPUT_ROOT is required")
	}
	if c.Input.MaxFileSize <= 0 {
		errs = append(errs, "INPUT_MAX_FILE_SIZE must be positive")
	}
	if len(c.Input.Extensions) == 0 {
		errs = append(errs, "INPUT_EXTENSIONS must list at least one extension")
	}
	for _, ext := range c.Input.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("INPUT_EXTENSIONS entry %q must start with a dot", ext))
		}
	}

	// Store validation
	if strings.TrimSpace(c.Store.Root) == "" {
		errs = append(errs, "STORE_ROOT is required")
	}
	if c.Store.LockTimeout <= 0 {
		errs = append(errs, "STORE_LOCK_TIMEOUT must be positive")
	}
	if storeCoversInput(c.Input.Root, c.Store.Root) {
		errs = append(errs, fmt.Sprintf("STORE_ROOT (%q) must not be INPUT_ROOT (%q) or one of its parents", c.Store.Root, c.Input.Root))
	}

	// Normalize validation
	if c.Normalize.FuzzyThreshold <= 0 || c.Normalize.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Sprintf("NORMALIZE_FUZZY_THRESHOLD (%g) must be in (0, 1]", c.Normalize.FuzzyThreshold))
	}
	if len(c.Normalize.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Sprintf("NORMALIZE_DEFAULT_CURRENCY (%q) must be a 3-letter code", c.Normalize.DefaultCurrency))
	}

	// Pipeline validation
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, "WORKERS must be positive")
	}
	if c.Pipeline.WatchInterval <= 0 {
		errs = append(errs, "WATCH_INTERVAL must be positive")
	}
	if c.Pipeline.SinkTimeout <= 0 {
		errs = append(errs, "SINK_TIMEOUT must be positive")
	}

	// Monitor validation
	if c.Monitor.Enabled {
		if c.Monitor.Port <= 0 || c.Monitor.Port > 65535 {
			errs = append(errs, fmt.Sprintf("MONITOR_PORT (%d) must be 1-65535", c.Monitor.Port))
		}
		if c.Monitor.ShutdownTimeout <= 0 {
			errs = append(errs, "MONITOR_SHUTDOWN_TIMEOUT must be positive")
		}
	}

	// Database validation
	if c.Database.MirrorEnabled() {
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.BreakerFailures <= 0 {
			errs = append(errs, "DB_BREAKER_FAILURES must be positive")
		}
		if c.Database.BreakerTimeout <= 0 {
			errs = append(errs, "DB_BREAKER_TIMEOUT must be positive")
		}
	}

	// NATS validation
	if c.NATS.URL != "" && strings.TrimSpace(c.NATS.Subject) == "" {
		errs = append(errs, "NATS_SUBJECT is required when NATS_URL is set")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// storeCoversInput reports whether store is input or an ancestor of it.
// The scan would then read the store's own exports back in. A store inside
// the input tree is fine: the scanner skips it.
func storeCoversInput(input, store string) bool {
	if strings.TrimSpace(input) == "" || strings.TrimSpace(store) == "" {
		return false
	}
	in, err := filepath.Abs(input)
	if err != nil {
		return false
	}
	st, err := filepath.Abs(store)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(st, in)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	dbURL := ""
	if c.Database.MirrorEnabled() {
		dbURL = "[MASKED]"
	}
	natsURL := ""
	if c.NATS.URL != "" {
		natsURL = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Input: {Root: %q, MaxFileSize: %d}, ", c.Input.Root, c.Input.MaxFileSize))
	b.WriteString(fmt.Sprintf("Store: {Root: %q, LockTimeout: %s}, ", c.Store.Root, c.Store.LockTimeout))
	b.WriteString(fmt.Sprintf("Export: {CSV: %v, Parquet: %v}, ", c.Export.CSV, c.Export.Parquet))
	b.WriteString(fmt.Sprintf("Pipeline: {Workers: %d, WatchInterval: %s}, ",
		c.Pipeline.Workers, c.Pipeline.WatchInterval))
	b.WriteString(fmt.Sprintf("Monitor: {Enabled: %v, Addr: %q}, ", c.Monitor.Enabled, c.Monitor.Addr()))
	b.WriteString(fmt.Sprintf("Database: {URL: %s, MaxConns: %d}, ", dbURL, c.Database.MaxConns))
	b.WriteString(fmt.Sprintf("NATS: {URL: %s, Subject: %q}, ", natsURL, c.NATS.Subject))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
