// Package export renders stored chat transcripts as Markdown, as a
// standalone HTML page, or as styled terminal output.
package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/spinach-rag/spinach/internal/memory"
)

// Format selects the output representation.
type Format string

// Supported formats.
const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatTerminal Format = "term"
)

// ParseFormat maps a -format flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "term", "terminal":
		return FormatTerminal, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want md, html or term)", s)
	}
}

// Transcript is a session together with its messages.
type Transcript struct {
	Session  memory.Session
	Messages []memory.Message
}

// Options tune rendering.
type Options struct {
	// IncludeSystem keeps system prompt messages in the output.
	IncludeSystem bool
	// Style is the glamour style for terminal output ("auto", "dark",
	// "light", "notty"). Empty means auto.
	Style string
	// Width wraps terminal output. Zero means 80.
	Width int
}

// Render writes t to w in the given format.
func Render(w io.Writer, f Format, t Transcript, opts Options) error {
	md := Markdown(t, opts)

	switch f {
	case FormatMarkdown:
		_, err := io.WriteString(w, md)
		return err
	case FormatHTML:
		return writeHTML(w, t, md)
	case FormatTerminal:
		return writeTerminal(w, md, opts)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// Markdown renders t as a Markdown document with one second-level
// section per message.
func Markdown(t Transcript, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(t.Session))
	if t.Session.Model != "" {
		fmt.Fprintf(&b, "- Model: %s\n", t.Session.Model)
	}
	if !t.Session.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", t.Session.StartedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(&b, "- Session: `%s`\n", t.Session.ID)

	for _, m := range t.Messages {
		if m.Role == "system" && !opts.IncludeSystem {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", m.Role)
		b.WriteString(strings.TrimRight(m.Content, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func title(s memory.Session) string {
	if s.StartedAt.IsZero() {
		return "Spinach session"
	}
	return "Spinach session " + s.StartedAt.Local().Format("2006-01-02 15:04")
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func writeHTML(w io.Writer, t Transcript, md string) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5; max-width: 50em; margin: auto;">
%s
</body></html>
`, html.EscapeString(title(t.Session)), body.String())
	return err
}

func writeTerminal(w io.Writer, md string, opts Options) error {
	width := opts.Width
	if width <= 0 {
		width = 80
	}
	styleOpt := glamour.WithAutoStyle()
	if opts.Style != "" && opts.Style != "auto" {
		styleOpt = glamour.WithStandardStyle(opts.Style)
	}

	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return fmt.Errorf("terminal renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render terminal: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
