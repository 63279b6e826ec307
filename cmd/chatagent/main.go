// Command chatagent runs the conversational agent.
//
// Usage:
//
//	chatagent telegram
//	chatagent serve --addr :8080
//	chatagent chat --config chatagent.toml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/martinemde/chatagent/transport"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP gateway."`
	Telegram TelegramCmd `cmd:"" help:"Run the Telegram bot."`
	Chat     ChatCmd     `cmd:"" help:"Chat with the agent in this terminal."`

	Config    string `short:"c" help:"Path to config file (default: chatagent.toml when present)." type:"path"`
	Provider  string `help:"Model provider (anthropic, openai, ollama, ...)."`
	Model     string `help:"Model name."`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("chatagent version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP gateway.
type ServeCmd struct {
	Addr     string `help:"Listen address (overrides config)."`
	APIToken string `name:"api-token" help:"Bearer token required by /api routes (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cli)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.Server
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.APIToken != "" {
		cfg.APIToken = c.APIToken
	}
	if cfg.APIToken == "" {
		a.logger.Warn("CHATAGENT_API_TOKEN not set - the HTTP API accepts unauthenticated requests")
	}

	gateway := transport.NewHTTPGateway(a.orchestrator, a.commands, transport.GatewayConfig{
		Addr:      cfg.Addr,
		APIToken:  cfg.APIToken,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, transport.WithGatewayMetrics(a.metrics), transport.WithGatewayLogger(a.logger))
	return gateway.Start(ctx)
}

// TelegramCmd runs the Telegram bot.
type TelegramCmd struct {
	Token string `help:"Bot token (overrides TELEGRAM_BOT_TOKEN)."`
}

func (c *TelegramCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cli)
	if err != nil {
		return err
	}
	defer a.Close()

	token := a.cfg.Telegram.Token
	if c.Token != "" {
		token = c.Token
	}
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set (get one from @BotFather on Telegram)")
	}

	bot, err := transport.NewTelegramBot(a.orchestrator, a.commands, transport.TelegramConfig{Token: token}, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("Bot is starting... press Ctrl+C to stop")
	if err := bot.Run(ctx); err != nil {
		return err
	}
	a.logger.Info("Bot stopped")
	return nil
}

// ChatCmd chats over stdin/stdout.
type ChatCmd struct {
	User string `help:"Conversation user ID." default:"local"`
	Name string `help:"Display name used in the greeting."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cli)
	if err != nil {
		return err
	}
	defer a.Close()

	name := c.Name
	if name == "" {
		name = os.Getenv("USER")
	}
	return transport.NewConsole(a.orchestrator, a.commands, c.User, name, os.Stdin, os.Stdout).Run(ctx)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			slog.Info("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("chatagent"),
		kong.Description("A conversational agent with tools, reachable over Telegram, HTTP or the terminal."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
