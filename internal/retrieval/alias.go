package retrieval

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// aliasExt is appended to the base name of the target.
const aliasExt = ".txt"

// WriteAlias records target in <dir>[/<folder>]/<basename>.txt so it can
// be looked up later with `look dyn`. The target is stored as an
// absolute path. An existing alias is never overwritten.
func WriteAlias(dir, folder, target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("alias target is required")
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return "", err
	}

	if folder != "" && !filepath.IsLocal(folder) {
		return "", fmt.Errorf("folder %q must be a relative path inside the dynamic directory", folder)
	}
	aliasDir := filepath.Join(dir, folder)
	if err := os.MkdirAll(aliasDir, 0o755); err != nil {
		return "", fmt.Errorf("create alias directory: %w", err)
	}

	aliasPath := filepath.Join(aliasDir, filepath.Base(abs)+aliasExt)
	f, err := os.OpenFile(aliasPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrAliasExists, aliasPath)
		}
		return "", fmt.Errorf("create alias: %w", err)
	}
	if _, err := f.WriteString(abs + "\n"); err != nil {
		f.Close()
		return "", fmt.Errorf("write alias: %w", err)
	}
	return aliasPath, f.Close()
}

// ReadAlias returns the path stored in the alias file name under dir.
// The .txt extension may be omitted.
func ReadAlias(dir, name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: alias %q", ErrNotFound, name)
	}

	candidates := []string{filepath.Join(dir, name)}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, filepath.Join(dir, name+aliasExt))
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read alias %s: %w", name, err)
		}
		target := strings.TrimSpace(string(data))
		if target == "" {
			return "", fmt.Errorf("alias %s is empty", name)
		}
		return target, nil
	}
	return "", fmt.Errorf("%w: alias %q in %s", ErrNotFound, name, dir)
}

// Aliases lists alias names under dir, including those in folders.
func Aliases(dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	return names, err
}
