package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/spinach-rag/spinach/internal/export"
	"github.com/spinach-rag/spinach/internal/memory"
)

// runExport renders one recorded transcript. With no id, or the id
// "latest", the most recently active session is exported.
func runExport(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	var (
		id      string
		outPath string
		format  string
		opts    export.Options
	)
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-out" && i+1 < len(args):
			outPath = args[i+1]
			i++
		case args[i] == "-format" && i+1 < len(args):
			format = args[i+1]
			i++
		case args[i] == "-style" && i+1 < len(args):
			opts.Style = args[i+1]
			i++
		case args[i] == "-width" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				return fmt.Errorf("export: -width must be a positive number, got %q", args[i+1])
			}
			opts.Width = n
			i++
		case args[i] == "-system":
			opts.IncludeSystem = true
		case !strings.HasPrefix(args[i], "-") && id == "":
			id = args[i]
		default:
			return fmt.Errorf("export: unexpected argument %q", args[i])
		}
	}

	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if f == export.FormatTerminal && opts.Width == 0 {
		if tf, ok := stdout.(*os.File); ok {
			if w, _, err := term.GetSize(int(tf.Fd())); err == nil && w > 0 {
				opts.Width = w
			}
		}
	}

	store, err := openTranscripts(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	t, err := loadTranscript(ctx, store, id)
	if err != nil {
		return err
	}

	if outPath == "" {
		return export.Render(stdout, f, *t, opts)
	}
	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	if err := export.Render(out, f, *t, opts); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", outPath, err)
	}
	fmt.Fprintf(stdout, "  ✓ %s\n", outPath)
	return nil
}

// loadTranscript resolves id ("" and "latest" mean the newest session)
// and reads its messages.
func loadTranscript(ctx context.Context, store *memory.SQLiteStore, id string) (*export.Transcript, error) {
	var (
		sess *memory.Session
		err  error
	)
	if id == "" || id == "latest" {
		sess, err = store.Latest(ctx)
	} else {
		sess, err = store.Session(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	msgs, err := store.Messages(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return &export.Transcript{Session: *sess, Messages: msgs}, nil
}
