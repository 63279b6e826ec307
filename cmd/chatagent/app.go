package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/martinemde/chatagent/agentloop"
	"github.com/martinemde/chatagent/config"
	"github.com/martinemde/chatagent/logger"
	"github.com/martinemde/chatagent/memory"
	"github.com/martinemde/chatagent/metrics"
	"github.com/martinemde/chatagent/store"
	"github.com/martinemde/chatagent/tools"
	"github.com/martinemde/chatagent/transport"
	"github.com/martinemde/chatagent/unifiedllm"
)

// app holds the components shared by every transport.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	orchestrator *agentloop.Orchestrator
	commands     *transport.Commands
	metrics      *metrics.Metrics
	closers      []func()
}

// newApp loads configuration and wires storage, tools, the model client and
// the orchestrator.
func newApp(cli *CLI) (*app, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, cli)

	a := &app{cfg: cfg}
	if err := a.initLogger(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	for _, w := range cfg.Warnings() {
		a.logger.Warn(w)
	}

	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// applyFlags lets global CLI flags override the loaded configuration.
func applyFlags(cfg *config.Config, cli *CLI) {
	if cli.Provider != "" && !strings.EqualFold(cli.Provider, cfg.Provider.Name) {
		cfg.Provider.Name = cli.Provider
		cfg.Provider.APIKey = os.Getenv(config.ProviderAPIKeyEnv(cli.Provider))
	}
	if cli.Model != "" {
		cfg.Provider.Model = cli.Model
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	if cli.LogFile != "" {
		cfg.Log.File = cli.LogFile
	}
}

func (a *app) initLogger() error {
	level, err := logger.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	output := os.Stderr
	if a.cfg.Log.File != "" {
		file, cleanup, err := logger.OpenLogFile(a.cfg.Log.File)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		a.closers = append(a.closers, cleanup)
	}
	a.logger = logger.Init(level, output, a.cfg.Log.Format)
	return nil
}

func (a *app) wire() error {
	cfg := a.cfg

	env := agentloop.NewLocalExecutionEnvironment(cfg.Tools.SandboxDir)
	if err := env.Initialize(); err != nil {
		return fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	db, err := store.Open(cfg.Tools.DatabasePath)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { db.Close() })

	var mailer tools.Mailer
	if cfg.SMTP.Enabled() {
		mailer = &tools.SMTPMailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}
	}
	mailFrom := cfg.SMTP.From
	if mailFrom == "" {
		mailFrom = cfg.SMTP.Username
	}

	registry := agentloop.NewToolRegistry()
	tools.RegisterAll(registry, tools.Deps{
		Env:           env,
		DB:            db,
		Mailer:        mailer,
		MailFrom:      mailFrom,
		SerpAPIKey:    cfg.Tools.SerpAPIKey,
		PythonPath:    cfg.Tools.PythonPath,
		PythonTimeout: cfg.Tools.PythonTimeout,
		Logger:        a.logger,
	})

	client, err := buildClient(cfg, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	a.metrics = metrics.New()
	emitter := agentloop.NewEventEmitter()
	a.metrics.Subscribe(emitter)

	conversations := memory.NewStore(cfg.Memory.MaxMessages)
	a.orchestrator = agentloop.New(client, conversations, registry,
		agentloop.WithConfig(agentloop.Config{
			Model:           cfg.Provider.Model,
			Provider:        strings.ToLower(cfg.Provider.Name),
			SystemPrompt:    cfg.Agent.SystemPrompt,
			Instructions:    cfg.Agent.Instructions,
			MaxTokens:       cfg.Provider.MaxTokens,
			Temperature:     cfg.Provider.Temperature,
			MaxIterations:   cfg.Agent.MaxIterations,
			ContextMessages: cfg.Agent.ContextMessages,
			ParallelTools:   cfg.Agent.ParallelTools,
		}),
		agentloop.WithEnvironment(env),
		agentloop.WithEventEmitter(emitter),
		agentloop.WithLogger(a.logger),
	)
	a.commands = transport.NewCommands(a.orchestrator, conversations)

	a.logger.Info("agent ready",
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"tools", registry.Count(),
		"sandbox", env.WorkingDirectory())
	return nil
}

// buildClient creates the model client for the configured provider:
// the Anthropic SDK for anthropic, gollm for everything else.
func buildClient(cfg *config.Config, log *slog.Logger) (*unifiedllm.Client, error) {
	provider := strings.ToLower(cfg.Provider.Name)
	model := unifiedllm.ResolveModelID(cfg.Provider.Model)

	var adapter unifiedllm.ProviderAdapter
	if provider == "anthropic" {
		opts := []unifiedllm.AnthropicOption{
			unifiedllm.WithAnthropicModel(model),
			unifiedllm.WithAnthropicMaxTokens(cfg.Provider.MaxTokens),
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, unifiedllm.WithAnthropicBaseURL(cfg.Provider.BaseURL))
		}
		anthropicAdapter, err := unifiedllm.NewAnthropicAdapter(cfg.Provider.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		adapter = anthropicAdapter
	} else {
		gollmAdapter, err := unifiedllm.NewGollmAdapter(provider, cfg.Provider.APIKey,
			unifiedllm.WithModel(model),
			unifiedllm.WithMaxTokens(cfg.Provider.MaxTokens),
			unifiedllm.WithTemperature(cfg.Provider.Temperature),
		)
		if err != nil {
			return nil, err
		}
		adapter = gollmAdapter
	}

	return unifiedllm.NewClient(
		unifiedllm.WithProvider(provider, adapter),
		unifiedllm.WithDefaultProvider(provider),
		unifiedllm.WithRetryPolicy(cfg.RetryPolicy()),
		unifiedllm.WithRequestTimeout(cfg.Provider.RequestTimeout),
		unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(log)),
		unifiedllm.WithLogger(log),
	), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
