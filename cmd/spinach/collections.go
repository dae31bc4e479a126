package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spinach-rag/spinach/internal/retrieval"
)

// runCollections lists collections, or removes one with `rm <name>`.
func runCollections(ctx context.Context, w io.Writer, configPath, outputFmt string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	index, err := retrieval.OpenIndex(cfg.IndexPath())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	switch {
	case len(args) == 0:
		return listCollections(ctx, w, index, outputFmt)
	case len(args) == 2 && args[0] == "rm":
		if err := index.DeleteCollection(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(w, "Removed collection %q\n", args[1])
		return nil
	default:
		return fmt.Errorf("usage: spinach collections [rm <name>]")
	}
}

func listCollections(ctx context.Context, w io.Writer, index *retrieval.Index, outputFmt string) error {
	cols, err := index.Collections(ctx)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		out := make([]map[string]any, 0, len(cols))
		for _, c := range cols {
			out = append(out, map[string]any{
				"name":       c.Name,
				"root":       c.Root,
				"model":      c.Model,
				"files":      c.Files,
				"chunks":     c.Chunks,
				"created_at": c.CreatedAt,
			})
		}
		return writeJSON(w, out)
	}

	if len(cols) == 0 {
		fmt.Fprintln(w, "No collections. Build one with: spinach create <path> <name>")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILES\tCHUNKS\tMODEL\tCREATED\tROOT")
	for _, c := range cols {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			c.Name, c.Files, c.Chunks, c.Model, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Root)
	}
	return tw.Flush()
}
