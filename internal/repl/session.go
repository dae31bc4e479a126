// Package repl implements the interactive chat loop: it reads input,
// recognizes directives (look, news, search, update, reset, quit, bye),
// gathers retrieved content for them, and streams each turn to the chat
// model while keeping the message history consistent.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spinach-rag/spinach/internal/config"
	"github.com/spinach-rag/spinach/internal/connwatch"
	"github.com/spinach-rag/spinach/internal/llm"
	"github.com/spinach-rag/spinach/internal/memory"
	"github.com/spinach-rag/spinach/internal/news"
	"github.com/spinach-rag/spinach/internal/prompts"
	"github.com/spinach-rag/spinach/internal/retrieval"
	"github.com/spinach-rag/spinach/internal/search"
	"github.com/spinach-rag/spinach/internal/usage"
)

// Chatter streams a chat completion.
type Chatter interface {
	ChatStream(ctx context.Context, model string, messages []llm.Message, callback llm.StreamCallback) (*llm.ChatResponse, error)
}

// Looker answers look directives.
type Looker interface {
	Look(ctx context.Context, target, question string) (*retrieval.Result, error)
	LookAlias(ctx context.Context, name, question string) (*retrieval.Result, error)
	LookCollection(ctx context.Context, name, question string) (*retrieval.Result, error)
	Collections(ctx context.Context) ([]string, error)
	Aliases() ([]string, error)
}

// NewsFetcher answers news directives.
type NewsFetcher interface {
	Fetch(ctx context.Context, q news.Query) ([]news.Article, error)
}

// Searcher answers search directives.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	// Primary names the provider Search uses.
	Primary() string
}

// Recorder persists transcripts.
type Recorder interface {
	StartSession(ctx context.Context, model string) (*memory.Session, error)
	Append(ctx context.Context, sessionID, role, content string) error
}

// UsageRecorder persists per-turn token usage.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// HealthReporter reports whether the model endpoint is answering.
type HealthReporter interface {
	State() connwatch.State
	LastError() error
}

// Config wires a Session. Nil collaborators disable their directives.
type Config struct {
	Chat    Chatter
	Model   string
	History *memory.History

	Looker   Looker
	News     NewsFetcher
	Search   Searcher
	Recorder Recorder
	Usage    UsageRecorder
	// Health, if set, is consulted before each turn so a down model
	// endpoint is reported instead of hanging silently.
	Health HealthReporter

	// Provider names the backend serving Model, for usage records.
	Provider string
	// Pricing prices hosted models for usage records.
	Pricing map[string]config.PricingEntry

	// SearchCount is the number of web results requested.
	SearchCount int

	Reader LineReader
	Out    io.Writer
	Styles *Styles
	Logger *slog.Logger

	// Interruptible derives the context for a streaming turn. The
	// command line wires it to SIGINT so Ctrl+C stops generation
	// without leaving the loop. Nil means turns are not interruptible.
	Interruptible func(context.Context) (context.Context, context.CancelFunc)

	// Now is the clock used for the news date. Defaults to time.Now.
	Now func() time.Time
}

// Session is one interactive conversation.
type Session struct {
	cfg    Config
	styles Styles
	logger *slog.Logger

	loadedPath   string
	last         *retrieval.Result
	transcriptID string
	kind         Kind
}

// New creates a Session.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SearchCount <= 0 {
		cfg.SearchCount = search.DefaultCount
	}
	if cfg.History == nil {
		cfg.History = memory.NewHistory(prompts.BaseSystemPrompt(), 0)
	}
	styles := NewStyles(cfg.Out)
	if cfg.Styles != nil {
		styles = *cfg.Styles
	}
	return &Session{
		cfg:    cfg,
		styles: styles,
		logger: cfg.Logger.With("component", "repl"),
	}
}

// LoadedPath is the file or URL `update` re-reads, or "" when none.
func (s *Session) LoadedPath() string { return s.loadedPath }

// LastResult is the most recent successful lookup, or nil.
func (s *Session) LastResult() *retrieval.Result { return s.last }

// TranscriptID is the current transcript session, or "" when not
// recording.
func (s *Session) TranscriptID() string { return s.transcriptID }

// Run reads and handles input until quit, bye, end of input or Ctrl+C
// at the prompt. It returns nil in all of those cases.
func (s *Session) Run(ctx context.Context) error {
	s.startTranscript(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		input, err := ReadInput(s.cfg.Reader, MainPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrAborted) {
				fmt.Fprintln(s.cfg.Out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		if quit := s.Handle(ctx, input); quit {
			return nil
		}
	}
}

// Handle processes one input and reports whether the loop should end.
func (s *Session) Handle(ctx context.Context, input string) bool {
	d := Parse(input)
	s.kind = d.Kind
	s.logger.Debug("input parsed", "kind", d.Kind.String(), "args", len(d.Args))

	var (
		synthetic string
		prompt    string
		ok        bool
	)
	switch d.Kind {
	case KindQuit:
		return true
	case KindReset:
		s.reset(ctx)
		return false
	case KindLook:
		synthetic, prompt, ok = s.look(ctx, d)
	case KindNews:
		synthetic, prompt, ok = s.news(ctx, d)
	case KindSearch:
		synthetic, prompt, ok = s.search(ctx, d)
	case KindUpdate:
		synthetic, prompt, ok = s.update(ctx)
	default:
		prompt, ok = input, true
	}
	if ok {
		s.turn(ctx, synthetic, prompt)
	}
	return false
}

// turn appends the synthetic message and prompt, streams the reply and
// appends it. A failed turn truncates the history to where it started.
func (s *Session) turn(ctx context.Context, synthetic, prompt string) {
	h := s.cfg.History
	mark := h.Len()
	var added []llm.Message
	if synthetic != "" {
		added = append(added, llm.Message{Role: llm.RoleUser, Content: synthetic})
	}
	added = append(added, llm.Message{Role: llm.RoleUser, Content: prompt})
	for _, m := range added {
		h.Append(m.Role, m.Content)
	}

	var (
		turnCtx context.Context
		cancel  context.CancelFunc
	)
	if s.cfg.Interruptible != nil {
		turnCtx, cancel = s.cfg.Interruptible(ctx)
	} else {
		turnCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if s.cfg.Health != nil && s.cfg.Health.State() == connwatch.StateDown {
		s.notice(fmt.Sprintf("model endpoint is not responding (%v); trying anyway", s.cfg.Health.LastError()))
	}

	start := time.Now()
	var reply strings.Builder
	resp, err := s.cfg.Chat.ChatStream(turnCtx, s.cfg.Model, h.Messages(), func(token string) {
		reply.WriteString(token)
		fmt.Fprint(s.cfg.Out, token)
	})
	if reply.Len() > 0 || err == nil {
		fmt.Fprintln(s.cfg.Out)
	}
	if err != nil {
		h.Truncate(mark)
		if errors.Is(err, context.Canceled) || errors.Is(turnCtx.Err(), context.Canceled) {
			s.notice("[cancelled]")
		} else {
			s.errorf("chat failed: %v", err)
		}
		s.logger.Warn("turn failed", "model", s.cfg.Model, "error", err)
		return
	}

	content := reply.String()
	if resp != nil && resp.Message.Content != "" {
		content = resp.Message.Content
	}
	h.Append(llm.RoleAssistant, content)
	added = append(added, llm.Message{Role: llm.RoleAssistant, Content: content})
	for _, m := range added {
		s.record(ctx, m.Role, m.Content)
	}

	if dropped := h.Trim(); dropped > 0 {
		s.logger.Debug("history trimmed", "dropped", dropped)
	}

	elapsed := time.Since(start)
	attrs := []any{"model", s.cfg.Model, "elapsed", elapsed.Round(time.Millisecond)}
	if resp != nil {
		attrs = append(attrs, "input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens)
		s.recordUsage(ctx, resp, elapsed)
	}
	s.logger.Info("turn complete", attrs...)
}

func (s *Session) recordUsage(ctx context.Context, resp *llm.ChatResponse, elapsed time.Duration) {
	if s.cfg.Usage == nil {
		return
	}
	rec := usage.Record{
		Timestamp:    s.cfg.Now(),
		SessionID:    s.transcriptID,
		Model:        s.cfg.Model,
		Provider:     s.cfg.Provider,
		Directive:    s.kind.String(),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      usage.ComputeCost(s.cfg.Model, resp.InputTokens, resp.OutputTokens, s.cfg.Pricing),
		Elapsed:      elapsed,
	}
	if err := s.cfg.Usage.Record(ctx, rec); err != nil {
		s.logger.Warn("usage write failed", "error", err)
	}
}

func (s *Session) reset(ctx context.Context) {
	s.cfg.History.Reset()
	s.last = nil
	s.startTranscript(ctx)
	s.notice("context cleared")
}

func (s *Session) startTranscript(ctx context.Context) {
	s.transcriptID = ""
	if s.cfg.Recorder == nil {
		return
	}
	sess, err := s.cfg.Recorder.StartSession(ctx, s.cfg.Model)
	if err != nil {
		s.logger.Warn("transcript session not started", "error", err)
		return
	}
	s.transcriptID = sess.ID
	s.record(ctx, llm.RoleSystem, s.cfg.History.SystemPrompt())
}

func (s *Session) record(ctx context.Context, role, content string) {
	if s.cfg.Recorder == nil || s.transcriptID == "" {
		return
	}
	if err := s.cfg.Recorder.Append(ctx, s.transcriptID, role, content); err != nil {
		s.logger.Warn("transcript write failed", "session", s.transcriptID, "error", err)
	}
}

// askQuestion reads the follow-up question for look and update. ok is
// false when no question was given.
func (s *Session) askQuestion() (string, bool) {
	q, err := ReadInput(s.cfg.Reader, QuestionPrompt)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, ErrAborted) {
		s.errorf("read question: %v", err)
		return "", false
	}
	q = strings.TrimSpace(q)
	if q == "" {
		s.notice("no question given")
		return "", false
	}
	return q, true
}

func (s *Session) notice(msg string) {
	fmt.Fprintln(s.cfg.Out, s.styles.Notice.Render(msg))
}

func (s *Session) errorf(format string, args ...any) {
	fmt.Fprintln(s.cfg.Out, s.styles.Error.Render(fmt.Sprintf(format, args...)))
}

func (s *Session) hint(lines ...string) {
	for _, l := range lines {
		fmt.Fprintln(s.cfg.Out, s.styles.Hint.Render(l))
	}
}
