package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spinach-rag/spinach/internal/config"
	"github.com/spinach-rag/spinach/internal/llm"
)

// modelInfo is one row of `spinach models`.
type modelInfo struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Default   bool   `json:"default"`
	Installed bool   `json:"installed"`
}

// runModels lists the configured models and those installed in the
// local Ollama, marking the default.
func runModels(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configLogger(stderr, cfg)

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	installed, err := llm.NewOllamaClient(cfg.Models.OllamaURL, logger).ListModels(listCtx)
	if err != nil {
		logger.Warn("could not list Ollama models", "url", cfg.Models.OllamaURL, "error", err)
	}

	models := collectModels(cfg, installed)
	if outputFmt == "json" {
		return writeJSON(stdout, models)
	}
	for _, m := range models {
		mark := " "
		if m.Default {
			mark = "*"
		}
		note := ""
		if m.Provider == "ollama" && !m.Installed {
			note = "  (not installed: ollama pull " + m.Name + ")"
		}
		fmt.Fprintf(stdout, "%s %-32s %s%s\n", mark, m.Name, m.Provider, note)
	}
	return nil
}

// collectModels merges configured and installed models. Configured
// entries come first, then the default, then installed models by name.
func collectModels(cfg *config.Config, installed []string) []modelInfo {
	have := make(map[string]bool, len(installed))
	for _, name := range installed {
		have[name] = true
		// Ollama reports "llama3.1:latest" for a model pulled as "llama3.1".
		if base, ok := trimLatest(name); ok {
			have[base] = true
		}
	}

	seen := make(map[string]bool)
	var out []modelInfo
	add := func(name, provider string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, modelInfo{
			Name:      name,
			Provider:  provider,
			Default:   name == cfg.Models.Default,
			Installed: provider == "ollama" && have[name],
		})
	}

	for _, m := range cfg.Models.Available {
		add(m.Name, m.Provider)
	}
	add(cfg.Models.Default, providerFor(cfg, cfg.Models.Default))

	sorted := append([]string(nil), installed...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if base, ok := trimLatest(name); ok && seen[base] {
			continue
		}
		add(name, "ollama")
	}
	return out
}

func trimLatest(name string) (string, bool) {
	const suffix = ":latest"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)], true
	}
	return name, false
}
