package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spinach-rag/spinach/internal/usage"
)

// runUsage summarizes recorded token usage for a period, optionally
// broken down by model, directive or session.
func runUsage(ctx context.Context, w io.Writer, configPath, outputFmt string, args []string) error {
	period, groupBy := "today", ""
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-period" && i+1 < len(args):
			period = args[i+1]
			i++
		case args[i] == "-by" && i+1 < len(args):
			groupBy = args[i+1]
			i++
		default:
			return fmt.Errorf("usage: unexpected argument %q", args[i])
		}
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := usage.NewStore(cfg.UsagePath())
	if err != nil {
		return err
	}
	defer store.Close()

	return writeUsage(ctx, w, store, period, groupBy, outputFmt, time.Now())
}

func writeUsage(ctx context.Context, w io.Writer, store *usage.Store, period, groupBy, outputFmt string, now time.Time) error {
	report, err := store.BuildReport(ctx, period, groupBy, now)
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		return writeJSON(w, report)
	}
	report.WriteText(w)
	return nil
}
