package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spinach-rag/spinach/internal/retrieval"
)

// runAdd records a file or directory path under the dynamic directory so
// it can be looked up by its base name with `look dyn`.
func runAdd(w io.Writer, configPath, outputFmt string, args []string) error {
	var folder, target string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-folder" && i+1 < len(args):
			folder = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-folder="):
			folder = strings.TrimPrefix(args[i], "-folder=")
		case !strings.HasPrefix(args[i], "-") && target == "":
			target = args[i]
		default:
			return fmt.Errorf("add: unexpected argument %q", args[i])
		}
	}
	if target == "" {
		return fmt.Errorf("usage: spinach add [-folder name] <path>")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	aliasPath, err := retrieval.WriteAlias(cfg.Retrieval.DynamicDir, folder, target)
	if err != nil {
		return fmt.Errorf("add %s: %w", target, err)
	}
	name, err := filepath.Rel(cfg.Retrieval.DynamicDir, aliasPath)
	if err != nil {
		name = filepath.Base(aliasPath)
	}
	name = filepath.ToSlash(name)

	if outputFmt == "json" {
		return writeJSON(w, map[string]string{"alias": name, "file": aliasPath})
	}
	fmt.Fprintf(w, "  ✓ %s\n", aliasPath)
	fmt.Fprintf(w, "Ask about it with: look dyn %s\n", name)
	return nil
}
