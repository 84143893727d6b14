package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"lorekeeper/internal/analysis"
	"lorekeeper/internal/compression"
	"lorekeeper/internal/config"
	"lorekeeper/internal/logging"
	"lorekeeper/internal/pipeline"
	"lorekeeper/internal/services/llm"
	"lorekeeper/internal/services/transcription"
	"lorekeeper/internal/session"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	store *session.Store
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// log returns the configured logger, falling back to a no-op logger when the
// log destination cannot be opened.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) openStore() (*session.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := session.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	c.store = store
	return store, nil
}

func (c *commandContext) withStore(fn func(*session.Store) error) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	return fn(store)
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}

func (c *commandContext) newExecutor() (*compression.Executor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return compression.NewExecutor(
		compression.WithBinary(cfg.Compression.FFmpegBinary),
		compression.WithFFprobe(cfg.Compression.FFprobeBinary),
		compression.WithTimeout(time.Duration(cfg.Compression.TimeoutSeconds)*time.Second),
		compression.WithProbeTimeout(time.Duration(cfg.Compression.ProbeTimeoutSeconds)*time.Second),
		compression.WithMinOutputBytes(cfg.Compression.MinOutputBytes),
		compression.WithLogger(c.log()),
	), nil
}

// newOrchestrator wires the full pipeline against store.
func (c *commandContext) newOrchestrator(store *session.Store) (*pipeline.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.log()

	executor, err := c.newExecutor()
	if err != nil {
		return nil, err
	}
	chain := compression.NewChain(executor, cfg.Paths.WorkDir, logger)

	transcriber := transcription.NewClient(transcription.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.Transcription.Model,
		Language:       cfg.Transcription.Language,
		TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
	}, logger)

	chat := llm.NewClient(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Model:          cfg.Analysis.Model,
		Temperature:    cfg.Analysis.Temperature,
		MaxTokens:      cfg.Analysis.MaxTokens,
		TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
	})
	analyst := analysis.NewAnalyzer(chat, cfg.Analysis.OutputLanguage, logger)

	return pipeline.New(store, chain, transcriber, analyst,
		pipeline.WithLogger(logger),
		pipeline.WithTranscriptionTimeout(transcriber.TimeoutFor),
	), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
