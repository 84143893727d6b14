package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable. A missing OpenAI key is not an
// error here: commands that never reach the external services still work, and
// preflight reports the gap.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateOpenAI(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	url := strings.ToLower(c.Database.URL)
	if strings.Contains(url, "://") && !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") {
		return fmt.Errorf("database.url: unsupported scheme in %q (use a file path or postgres://)", c.Database.URL)
	}
	return nil
}

func (c *Config) validateOpenAI() error {
	if c.OpenAI.TimeoutSeconds <= 0 {
		return errors.New("openai.timeout_seconds must be positive")
	}
	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		return fmt.Errorf("analysis.temperature must be between 0 and 2, got %v", c.Analysis.Temperature)
	}
	if c.Analysis.MaxTokens <= 0 {
		return errors.New("analysis.max_tokens must be positive")
	}
	return nil
}

func (c *Config) validateCompression() error {
	if c.Compression.TimeoutSeconds < 0 {
		return errors.New("compression.timeout_seconds must be positive")
	}
	if c.Compression.ProbeTimeoutSeconds < 0 {
		return errors.New("compression.probe_timeout_seconds must be positive")
	}
	if c.Compression.MinOutputBytes < 0 {
		return errors.New("compression.min_output_bytes must not be negative")
	}
	if c.Compression.MaxUploadMB < 0 {
		return errors.New("compression.max_upload_mb must be positive")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.Bind) == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 {
		return fmt.Errorf("logging.max_size_mb: must not be negative, got %d", c.Logging.MaxSizeMB)
	}
	return nil
}
