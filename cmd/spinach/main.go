// Spinach is an interactive command-line assistant for a local chat model.
//
// Besides plain chat it understands a handful of directives that pull
// content into the conversation: the best-matching excerpt of a file, a
// URL or a prebuilt collection (look), news headlines (news), and web
// search results (search). Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]); with
// no file at all Spinach talks to a local Ollama on built-in defaults.
//
// Usage:
//
//	spinach [chat]                   Start an interactive chat
//	spinach init [dir]               Write a default config.yaml
//	spinach models                   List configured and installed models
//	spinach create <path> <name>     Build a collection for `look data`
//	spinach add [-folder f] <path>   Add an alias for `look dyn`
//	spinach collections [rm <name>]  List or remove collections
//	spinach sessions [rm <id>]       List or remove chat transcripts
//	spinach export [id|latest]       Render a transcript
//	spinach usage                    Summarize token usage and cost
//	spinach version                  Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spinach-rag/spinach/internal/buildinfo"
	"github.com/spinach-rag/spinach/internal/config"
	"github.com/spinach-rag/spinach/internal/llm"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdin, os.Stdout, and os.Args out of the application logic
// so that every subcommand can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the spinach command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process.
//   - stdin is read by the interactive chat. When it is a terminal the
//     chat gets line editing and persistent input history.
//   - stdout receives program output; stderr receives logs.
//   - args is os.Args[1:]. We parse these manually rather than using the
//     flag package to avoid global state that interferes with parallel
//     tests.
//
// run returns nil on clean exit and a non-nil error for any failure.
func run(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Remaining args, flags included, belong to the subcommand.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "", "chat":
		return runChat(ctx, stdin, stdout, stderr, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "create":
		return runCreate(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "add":
		return runAdd(stdout, configPath, outputFmt, cmdArgs)
	case "collections":
		return runCollections(ctx, stdout, configPath, outputFmt, cmdArgs)
	case "sessions":
		return runSessions(ctx, stdout, configPath, outputFmt, cmdArgs)
	case "export":
		return runExport(ctx, stdout, configPath, cmdArgs)
	case "models":
		return runModels(ctx, stdout, stderr, configPath, outputFmt)
	case "usage":
		return runUsage(ctx, stdout, configPath, outputFmt, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Spinach - chat with a local model, grounded in your files, the news and the web")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: spinach [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat [-model name]             Start an interactive chat (default)")
	fmt.Fprintln(w, "  init [dir]                     Write a default config.yaml (default: .)")
	fmt.Fprintln(w, "  models                         List configured and installed models")
	fmt.Fprintln(w, "  create <path> <name>           Build a collection for `look data <name>`")
	fmt.Fprintln(w, "  add [-folder f] <path>         Add an alias for `look dyn <name>`")
	fmt.Fprintln(w, "  collections [rm <name>]        List or remove collections")
	fmt.Fprintln(w, "  sessions [-n N] [rm <id>]      List or remove chat transcripts")
	fmt.Fprintln(w, "  export [id|latest] [-out file] [-format md|html|term] [-system]")
	fmt.Fprintln(w, "                                 Render a chat transcript")
	fmt.Fprintln(w, "  usage [-period p] [-by g]      Token usage and cost (period: today, yesterday,")
	fmt.Fprintln(w, "                                 week, month, all; by: model, directive, session)")
	fmt.Fprintln(w, "  version                        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Chat directives:")
	fmt.Fprintln(w, "  look <file|url>, look dyn <alias>, look data <collection>")
	fmt.Fprintln(w, "  news [count], news <source> [count], news search [source] <query> [count], news help")
	fmt.Fprintln(w, "  search <query>, update, reset, quit, bye")
	fmt.Fprintln(w, "  End a line with +++ to type several lines; finish with a line reading END.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/spinach/config.yaml, /etc/spinach/config.yaml")
	return nil
}

// newLogger creates a structured logger that writes to w at the given level
// and format. Format must be "text" or "json"; any other value defaults to
// text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// configLogger builds the logger described by cfg.
func configLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	return newLogger(w, level, cfg.LogFormat)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations, and when nothing
// is found the built-in defaults are returned with an empty path.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	if cfgPath == "" {
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// createLLMClient builds a multi-provider LLM client from the configuration.
// Each model listed in config is mapped to its provider. Models not
// explicitly mapped fall through to the Ollama provider, which acts as
// the default backend.
func createLLMClient(cfg *config.Config, logger *slog.Logger) *llm.MultiClient {
	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.OpenAI.Configured() {
		multi.AddProvider("openai", llm.NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, logger))
		logger.Info("OpenAI-compatible provider configured", "base_url", cfg.OpenAI.BaseURL)
	}
	if cfg.Anthropic.APIKey != "" {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, logger))
		logger.Info("Anthropic provider configured")
	}

	// Model providers are already defaulted to "ollama" by applyDefaults.
	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	logger.Info("LLM client initialized",
		"default_model", cfg.Models.Default,
		"default_provider", providerFor(cfg, cfg.Models.Default),
		"providers", multi.Providers(),
	)

	return multi
}

// providerFor names the provider serving model. Unlisted models go to
// Ollama.
func providerFor(cfg *config.Config, model string) string {
	for _, m := range cfg.Models.Available {
		if m.Name == model {
			return m.Provider
		}
	}
	return "ollama"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
