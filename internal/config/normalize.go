package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeOpenAI()
	c.normalizeCompression()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	derived := []struct {
		key   string
		value *string
		sub   string
	}{
		{"paths.upload_dir", &c.Paths.UploadDir, "audio"},
		{"paths.work_dir", &c.Paths.WorkDir, "work"},
		{"paths.export_dir", &c.Paths.ExportDir, "exports"},
		{"paths.log_dir", &c.Paths.LogDir, "logs"},
	}
	for _, d := range derived {
		if strings.TrimSpace(*d.value) == "" {
			*d.value = filepath.Join(c.Paths.DataDir, d.sub)
		}
		if *d.value, err = expandPath(*d.value); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.URL == "" {
		if value, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.Database.URL = strings.TrimSpace(value)
		}
	}
	// sqlite:///relative.db and sqlite:////absolute.db both name a file path.
	path, isSQLiteURL := strings.CutPrefix(c.Database.URL, "sqlite:///")
	if !isSQLiteURL && (c.Database.URL == "" || strings.Contains(c.Database.URL, "://")) {
		return nil
	}
	if !isSQLiteURL {
		path = c.Database.URL
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("database.url: %w", err)
	}
	c.Database.URL = expanded
	return nil
}

func (c *Config) normalizeOpenAI() {
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	if c.OpenAI.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.OpenAI.APIKey = strings.TrimSpace(value)
		}
	}
	if value, ok := os.LookupEnv("OPENAI_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.OpenAI.BaseURL = strings.TrimSpace(value)
	}
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = defaultOpenAIBaseURL
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		c.OpenAI.TimeoutSeconds = defaultOpenAITimeoutSeconds
	}

	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))

	c.Analysis.Model = strings.TrimSpace(c.Analysis.Model)
	if c.Analysis.Model == "" {
		c.Analysis.Model = defaultAnalysisModel
	}
	if c.Analysis.MaxTokens <= 0 {
		c.Analysis.MaxTokens = defaultAnalysisMaxTokens
	}
	if strings.TrimSpace(c.Analysis.OutputLanguage) == "" {
		c.Analysis.OutputLanguage = defaultAnalysisOutputLanguage
	}

	if value, ok := os.LookupEnv("LOREKEEPER_API_TOKEN"); ok && strings.TrimSpace(c.API.Token) == "" {
		c.API.Token = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeCompression() {
	if strings.TrimSpace(c.Compression.FFmpegBinary) == "" {
		c.Compression.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Compression.FFprobeBinary) == "" {
		c.Compression.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Compression.TimeoutSeconds == 0 {
		c.Compression.TimeoutSeconds = defaultEncodeTimeoutSeconds
	}
	if c.Compression.ProbeTimeoutSeconds == 0 {
		c.Compression.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if c.Compression.MinOutputBytes == 0 {
		c.Compression.MinOutputBytes = defaultMinOutputBytes
	}
	if c.Compression.MaxUploadMB == 0 {
		c.Compression.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
