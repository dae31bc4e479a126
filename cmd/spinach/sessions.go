package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spinach-rag/spinach/internal/memory"
)

// runSessions lists recorded chat transcripts, newest first, or removes
// one with `rm <id>`. Ids may be abbreviated to any unique prefix.
func runSessions(ctx context.Context, w io.Writer, configPath, outputFmt string, args []string) error {
	limit := 20
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-n" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				return fmt.Errorf("sessions: -n must be a positive number, got %q", args[i+1])
			}
			limit = n
			i++
			continue
		}
		rest = append(rest, args[i])
	}

	store, err := openTranscripts(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case len(rest) == 0:
		return listSessions(ctx, w, store, limit, outputFmt)
	case len(rest) == 2 && rest[0] == "rm":
		sess, err := store.Session(ctx, rest[1])
		if err != nil {
			return err
		}
		if err := store.DeleteSession(ctx, sess.ID); err != nil {
			return err
		}
		fmt.Fprintf(w, "Removed session %s\n", sess.ID)
		return nil
	default:
		return fmt.Errorf("usage: spinach sessions [-n N] [rm <id>]")
	}
}

func openTranscripts(configPath string) (*memory.SQLiteStore, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := memory.NewSQLiteStore(cfg.TranscriptPath())
	if err != nil {
		return nil, fmt.Errorf("open transcripts: %w", err)
	}
	return store, nil
}

func listSessions(ctx context.Context, w io.Writer, store *memory.SQLiteStore, limit int, outputFmt string) error {
	sessions, err := store.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		if sessions == nil {
			sessions = []memory.Session{}
		}
		return writeJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No recorded sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tSTARTED\tMESSAGES\tTOKENS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			s.ID, s.Model, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Messages, s.Tokens)
	}
	return tw.Flush()
}
