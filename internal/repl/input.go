package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// Prompts shown by the loop.
const (
	MainPrompt         = ">> "
	QuestionPrompt     = "question>> "
	ContinuationPrompt = ""
)

// Multi-line input markers. A line ending in ContinueMarker starts
// continuation mode; a line reading EndMarker ends it.
const (
	ContinueMarker = "+++"
	EndMarker      = "END"
)

// ErrAborted is returned when the user presses Ctrl+C at a prompt.
var ErrAborted = errors.New("input aborted")

// LineReader reads one line of input after showing a prompt. It returns
// io.EOF at end of input and ErrAborted on Ctrl+C.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// NewReader returns a line-editing reader with persistent history when
// in is a terminal, and a plain buffered reader otherwise.
func NewReader(in io.Reader, out io.Writer, historyFile string) LineReader {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return NewTerminalReader(historyFile)
	}
	return NewPlainReader(in, out)
}

// plainReader reads newline-terminated lines from any io.Reader.
type plainReader struct {
	r *bufio.Reader
	w io.Writer
}

// NewPlainReader creates a reader for piped or scripted input. Prompts
// are written to w.
func NewPlainReader(r io.Reader, w io.Writer) LineReader {
	return &plainReader{r: bufio.NewReader(r), w: w}
}

func (p *plainReader) Prompt(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(p.w, prompt)
	}
	line, err := p.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *plainReader) Close() error { return nil }

// terminalReader provides line editing and history through liner.
type terminalReader struct {
	line        *liner.State
	historyFile string
}

// NewTerminalReader creates a line-editing reader. History is loaded
// from historyFile and written back on Close.
func NewTerminalReader(historyFile string) LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &terminalReader{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (t *terminalReader) Prompt(prompt string) (string, error) {
	input, err := t.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", ErrAborted
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		t.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (t *terminalReader) Close() error {
	defer t.line.Close()
	if t.historyFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.historyFile), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(t.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = t.line.WriteHistory(f)
	return err
}

// ReadInput reads one logical input. When the line ends with "+++" the
// text before the marker is kept and further lines are collected
// verbatim until a line reading "END". End of input inside continuation
// returns what was collected; Ctrl+C inside continuation discards it.
func ReadInput(r LineReader, prompt string) (string, error) {
	line, err := r.Prompt(prompt)
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, ContinueMarker) {
		return line, nil
	}

	var parts []string
	if head := strings.TrimSpace(strings.TrimSuffix(trimmed, ContinueMarker)); head != "" {
		parts = append(parts, head)
	}
	for {
		next, err := r.Prompt(ContinuationPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, ErrAborted) {
				return "", nil
			}
			return "", err
		}
		if strings.TrimSpace(next) == EndMarker {
			break
		}
		parts = append(parts, next)
	}
	return strings.Join(parts, "\n"), nil
}
