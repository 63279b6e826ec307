// Package tools implements the agent's tool set: weather, web search,
// calculator, sandboxed file access, restricted Python execution, email and
// calendar.
//
// Every tool follows the same contract: failures the user can act on (a
// missing file, an unreachable service, a malformed expression) come back as
// human-readable output with a nil error. An error is returned only when the
// arguments themselves are unusable; the orchestrator turns it into a
// diagnostic result.
//
//	reg := agentloop.NewToolRegistry()
//	tools.RegisterAll(reg, tools.Deps{Env: env, DB: db})
package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/martinemde/chatagent/agentloop"
	"github.com/martinemde/chatagent/store"
)

// Default service endpoints.
const (
	DefaultWeatherURL    = "https://wttr.in"
	DefaultSerpAPIURL    = "https://serpapi.com/search"
	DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
)

// Deps carries what the tools need from the rest of the application. Zero
// values are replaced with defaults by RegisterAll.
type Deps struct {
	// Env confines file access and Python execution.
	Env agentloop.ExecutionEnvironment

	// DB backs the email and calendar tools. When nil those tools are not
	// registered.
	DB *store.DB

	// Mailer delivers outgoing email. When nil messages are only recorded
	// in the local mailbox.
	Mailer   Mailer
	MailFrom string

	HTTPClient    *http.Client
	SerpAPIKey    string
	WeatherURL    string
	SerpAPIURL    string
	DuckDuckGoURL string

	// PythonPath is the interpreter used by execute_python.
	PythonPath    string
	PythonTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Env == nil {
		d.Env = agentloop.NewLocalExecutionEnvironment("")
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{}
	}
	if d.WeatherURL == "" {
		d.WeatherURL = DefaultWeatherURL
	}
	if d.SerpAPIURL == "" {
		d.SerpAPIURL = DefaultSerpAPIURL
	}
	if d.DuckDuckGoURL == "" {
		d.DuckDuckGoURL = DefaultDuckDuckGoURL
	}
	if d.PythonPath == "" {
		d.PythonPath = "python3"
	}
	if d.PythonTimeout <= 0 {
		d.PythonTimeout = 5 * time.Second
	}
	if d.MailFrom == "" {
		d.MailFrom = "assistant@localhost"
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// RegisterAll registers every tool on reg in a fixed order. Email and
// calendar tools are skipped when deps.DB is nil.
func RegisterAll(reg *agentloop.ToolRegistry, deps Deps) {
	d := deps.withDefaults()

	registerWeather(reg, d)
	registerWebSearch(reg, d)
	registerCalculator(reg)
	registerReadFile(reg, d)
	registerWriteFile(reg, d)
	registerListFiles(reg, d)
	registerExecutePython(reg, d)

	if d.DB == nil {
		d.Logger.Warn("tool database not configured; email and calendar tools disabled")
		return
	}
	registerSendEmail(reg, d)
	registerReadEmails(reg, d)
	registerSearchEmails(reg, d)
	registerCreateEvent(reg, d)
	registerViewEvents(reg, d)
	registerCheckAvailability(reg, d)
}

// requiredString returns a non-empty string argument or an error naming it.
func requiredString(args map[string]interface{}, key string) (string, error) {
	v, ok := agentloop.GetStringArg(args, key)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// intArg returns an integer argument clamped to [lo, hi], or def when it is
// absent. A hi of zero means no upper bound.
func intArg(args map[string]interface{}, key string, def, lo, hi int) int {
	n, ok := agentloop.GetIntArg(args, key)
	if !ok {
		return def
	}
	if n < lo {
		return lo
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func intProp(description string, def int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
		"default":     def,
	}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
