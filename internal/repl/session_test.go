package repl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

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

type fakeChat struct {
	calls  [][]llm.Message
	tokens []string
	err    error
}

func (f *fakeChat) ChatStream(ctx context.Context, model string, messages []llm.Message, cb llm.StreamCallback) (*llm.ChatResponse, error) {
	f.calls = append(f.calls, messages)
	for _, tok := range f.tokens {
		cb(tok)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Model:        model,
		Message:      llm.Message{Role: llm.RoleAssistant, Content: strings.Join(f.tokens, "")},
		Done:         true,
		InputTokens:  100 * len(messages),
		OutputTokens: len(f.tokens),
	}, nil
}

func (f *fakeChat) last() []llm.Message {
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type lookCall struct {
	mode     string
	target   string
	question string
}

type fakeLooker struct {
	calls       []lookCall
	chunk       string
	err         error
	collections []string
	aliases     []string
}

func (f *fakeLooker) result(mode, target, question string) (*retrieval.Result, error) {
	f.calls = append(f.calls, lookCall{mode, target, question})
	if f.err != nil {
		return nil, f.err
	}
	return &retrieval.Result{Path: target, Question: question, Chunks: []string{"other", f.chunk}, Top: 1}, nil
}

func (f *fakeLooker) Look(_ context.Context, target, question string) (*retrieval.Result, error) {
	return f.result("path", target, question)
}

func (f *fakeLooker) LookAlias(_ context.Context, name, question string) (*retrieval.Result, error) {
	return f.result("alias", name, question)
}

func (f *fakeLooker) LookCollection(_ context.Context, name, question string) (*retrieval.Result, error) {
	return f.result("collection", name, question)
}

func (f *fakeLooker) Collections(context.Context) ([]string, error) { return f.collections, nil }
func (f *fakeLooker) Aliases() ([]string, error)                    { return f.aliases, nil }

type fakeNews struct {
	queries  []news.Query
	articles []news.Article
	err      error
}

func (f *fakeNews) Fetch(_ context.Context, q news.Query) ([]news.Article, error) {
	f.queries = append(f.queries, q)
	return f.articles, f.err
}

type fakeSearch struct {
	provider string
	queries  []string
	opts     []search.Options
	results  []search.Result
	err      error
}

func (f *fakeSearch) Search(_ context.Context, query string, opts search.Options) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	f.opts = append(f.opts, opts)
	return f.results, f.err
}

func (f *fakeSearch) Primary() string { return f.provider }

type harness struct {
	session *Session
	chat    *fakeChat
	looker  *fakeLooker
	news    *fakeNews
	search  *fakeSearch
	history *memory.History
	out     *bytes.Buffer
}

func newHarness(t *testing.T, input string, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		chat:    &fakeChat{tokens: []string{"Hel", "lo"}},
		looker:  &fakeLooker{chunk: "bananas are yellow"},
		news:    &fakeNews{articles: []news.Article{{Title: "Budget deal", URL: "https://example.com/1"}}},
		search:  &fakeSearch{provider: "serper", results: []search.Result{{Title: "Go", URL: "https://go.dev"}}},
		history: memory.NewHistory("sys", 0),
		out:     &bytes.Buffer{},
	}
	cfg := Config{
		Chat:    h.chat,
		Model:   "test-model",
		History: h.history,
		Looker:  h.looker,
		News:    h.news,
		Search:  h.search,
		Reader:  NewPlainReader(strings.NewReader(input), io.Discard),
		Out:     h.out,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC) },
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.session = New(cfg)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	if err := h.session.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func contents(msgs []llm.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role + ":" + m.Content
	}
	return out
}

func assertMessages(t *testing.T, got []llm.Message, want ...string) {
	t.Helper()
	g := contents(got)
	if len(g) != len(want) {
		t.Fatalf("messages = %q, want %q", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, g[i], want[i])
		}
	}
}

func TestSession_ChatTurn(t *testing.T) {
	h := newHarness(t, "hello\n")
	h.run(t)

	assertMessages(t, h.history.Messages(), "system:sys", "user:hello", "assistant:Hello")
	assertMessages(t, h.chat.last(), "system:sys", "user:hello")
	if !strings.Contains(h.out.String(), "Hello\n") {
		t.Errorf("streamed output missing: %q", h.out.String())
	}
}

func TestSession_EmptyInputIgnored(t *testing.T) {
	h := newHarness(t, "\n   \n")
	h.run(t)
	if len(h.chat.calls) != 0 || h.history.Len() != 1 {
		t.Errorf("empty input ran a turn")
	}
}

func TestSession_FailedTurnLeavesNoTrace(t *testing.T) {
	h := newHarness(t, "first\nsecond\n")
	h.chat.err = nil
	h.session.Handle(context.Background(), "first")

	h.chat.err = errors.New("connection refused")
	h.chat.tokens = []string{"partial"}
	h.session.Handle(context.Background(), "look notes.txt")
	// look asks for a question; the scripted reader supplies "first".
	assertMessages(t, h.history.Messages(), "system:sys", "user:first", "assistant:Hello")
	if !strings.Contains(h.out.String(), "chat failed: connection refused") {
		t.Errorf("error not printed: %q", h.out.String())
	}
}

func TestSession_CancelledTurn(t *testing.T) {
	h := newHarness(t, "")
	h.chat.err = context.Canceled
	h.session.Handle(context.Background(), "write a long story")

	if h.history.Len() != 1 {
		t.Errorf("cancelled turn left %d messages", h.history.Len())
	}
	if !strings.Contains(h.out.String(), "[cancelled]") {
		t.Errorf("output = %q", h.out.String())
	}
}

func TestSession_InterruptibleContextUsed(t *testing.T) {
	var used bool
	h := newHarness(t, "", func(c *Config) {
		c.Interruptible = func(ctx context.Context) (context.Context, context.CancelFunc) {
			used = true
			return context.WithCancel(ctx)
		}
	})
	h.session.Handle(context.Background(), "hi")
	if !used {
		t.Error("Interruptible was not used for the turn")
	}
}

func TestSession_LookPath(t *testing.T) {
	h := newHarness(t, "look notes.txt\nwhat color?\n")
	h.run(t)

	if len(h.looker.calls) != 1 || h.looker.calls[0] != (lookCall{"path", "notes.txt", "what color?"}) {
		t.Fatalf("look calls = %+v", h.looker.calls)
	}
	assertMessages(t, h.chat.last(),
		"system:sys",
		"user:"+prompts.FileContent("notes.txt", "bananas are yellow"),
		"user:what color?",
	)
	if h.session.LoadedPath() != "notes.txt" {
		t.Errorf("LoadedPath() = %q", h.session.LoadedPath())
	}
	if h.session.LastResult().Best() != "bananas are yellow" {
		t.Errorf("LastResult() = %+v", h.session.LastResult())
	}
}

func TestSession_LookAliasAndCollection(t *testing.T) {
	h := newHarness(t, "look notes.txt\nq1\nlook dyn recipes\nq2\nlook data physics\nq3\n")
	h.run(t)

	want := []lookCall{
		{"path", "notes.txt", "q1"},
		{"alias", "recipes", "q2"},
		{"collection", "physics", "q3"},
	}
	if len(h.looker.calls) != 3 {
		t.Fatalf("look calls = %+v", h.looker.calls)
	}
	for i := range want {
		if h.looker.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, h.looker.calls[i], want[i])
		}
	}
	last := h.chat.last()
	if got := last[len(last)-2].Content; got != prompts.AnonymousFileContent("bananas are yellow") {
		t.Errorf("synthetic = %q", got)
	}
	if h.session.LoadedPath() != "" {
		t.Errorf("collection look should clear the loaded path, got %q", h.session.LoadedPath())
	}
}

func TestSession_LookErrorsRunNoTurn(t *testing.T) {
	h := newHarness(t, "look missing.txt\nwhy?\nlook\nlook notes.txt\n\n")
	h.looker.err = fmt.Errorf("%w: missing.txt", retrieval.ErrNotFound)
	h.run(t)

	if len(h.chat.calls) != 0 {
		t.Errorf("chat called %d times", len(h.chat.calls))
	}
	if h.history.Len() != 1 {
		t.Errorf("history changed: %q", contents(h.history.Messages()))
	}
	out := h.out.String()
	for _, want := range []string{"look missing.txt: file not found", lookUsage, "no question given"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSession_LookListings(t *testing.T) {
	h := newHarness(t, "look data\nlook dyn\n")
	h.looker.collections = []string{"physics", "recipes"}
	h.run(t)

	out := h.out.String()
	if !strings.Contains(out, "collections: physics, recipes") {
		t.Errorf("collections not listed:\n%s", out)
	}
	if !strings.Contains(out, "no aliases") {
		t.Errorf("empty alias list not reported:\n%s", out)
	}
	if len(h.chat.calls) != 0 {
		t.Error("listing ran a turn")
	}
}

func TestSession_Update(t *testing.T) {
	h := newHarness(t, "update\nlook notes.txt\nfirst?\nupdate\nsecond?\n")
	h.run(t)

	out := h.out.String()
	if !strings.Contains(out, "no valid file loaded") {
		t.Errorf("missing notice:\n%s", out)
	}
	if !strings.Contains(out, "look notes.txt\n") {
		t.Errorf("update should echo the look command:\n%s", out)
	}
	if len(h.looker.calls) != 2 || h.looker.calls[1] != (lookCall{"path", "notes.txt", "second?"}) {
		t.Fatalf("look calls = %+v", h.looker.calls)
	}
	last := h.chat.last()
	if got := last[len(last)-2].Content; got != prompts.UpdatedFileContent("second?", "notes.txt", "bananas are yellow") {
		t.Errorf("update synthetic = %q", got)
	}
	if last[len(last)-1].Content != "second?" {
		t.Errorf("update prompt = %q", last[len(last)-1].Content)
	}
}

func TestSession_News(t *testing.T) {
	h := newHarness(t, "news reuters 3\n")
	h.run(t)

	if len(h.news.queries) != 1 {
		t.Fatalf("news queries = %+v", h.news.queries)
	}
	q := h.news.queries[0]
	if len(q.Sources) != 1 || q.Sources[0] != "reuters" || q.Count != 3 {
		t.Errorf("query = %+v", q)
	}
	yesterday := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	assertMessages(t, h.chat.last(),
		"system:sys",
		"user:"+prompts.NewsContent(news.FormatDigest(h.news.articles)),
		"user:"+prompts.NewsSummaryPrompt(yesterday),
	)
}

func TestSession_NewsFailures(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		articles []news.Article
		err      error
		want     string
	}{
		{"no key", "news\n", nil, news.ErrNoAPIKey, "https://newsapi.org/"},
		{"no articles", "news\n", []news.Article{}, nil, "check news.api_key"},
		{"bad count", "news cnn many\n", nil, nil, `news count "many" is not a number`},
		{"help", "news help\n", nil, nil, "23. usa-today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.input)
			h.news.articles, h.news.err = tt.articles, tt.err
			h.run(t)

			if !strings.Contains(strings.ToLower(h.out.String()), strings.ToLower(tt.want)) {
				t.Errorf("output missing %q:\n%s", tt.want, h.out.String())
			}
			if len(h.chat.calls) != 0 || h.history.Len() != 1 {
				t.Error("failed news directive ran a turn")
			}
		})
	}
}

func TestSession_Search(t *testing.T) {
	h := newHarness(t, "search Who Maintains Go?\n", func(c *Config) { c.SearchCount = 5 })
	h.run(t)

	if len(h.search.queries) != 1 || h.search.queries[0] != "Who Maintains Go?" {
		t.Fatalf("queries = %q", h.search.queries)
	}
	if h.search.opts[0].Count != 5 {
		t.Errorf("count = %d, want 5", h.search.opts[0].Count)
	}
	assertMessages(t, h.chat.last(),
		"system:sys",
		"user:"+prompts.SearchContent(search.FormatResults(h.search.results)),
		"user:"+prompts.SearchAnswerPrompt("Who Maintains Go?"),
	)
}

func TestSession_SearchFailures(t *testing.T) {
	h := newHarness(t, "search\nsearch golang\n")
	h.search.err = search.ErrNoAPIKey
	h.run(t)

	out := h.out.String()
	if !strings.Contains(out, "usage: search <query>") || !strings.Contains(out, "https://serper.dev/") {
		t.Errorf("output:\n%s", out)
	}
	if len(h.chat.calls) != 0 {
		t.Error("failed search ran a turn")
	}
}

func TestSession_SearchHintFollowsProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		notWant  string
	}{
		{provider: "brave", want: "search.brave.api_key", notWant: "serper"},
		{provider: "searxng", want: "search.searxng.url", notWant: "serper"},
		{provider: "serper", want: "search.serper.api_key", notWant: "brave"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			h := newHarness(t, "search golang\n")
			h.search.provider = tt.provider
			h.search.results = nil
			h.run(t)

			out := h.out.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("hint does not mention %q:\n%s", tt.want, out)
			}
			if strings.Contains(strings.ToLower(out), tt.notWant) {
				t.Errorf("hint mentions %q:\n%s", tt.notWant, out)
			}
		})
	}
}

func TestSession_Reset(t *testing.T) {
	h := newHarness(t, "look notes.txt\nq\nreset\n")
	h.run(t)

	if h.history.Len() != 1 || h.history.SystemPrompt() != "sys" {
		t.Errorf("history after reset: %q", contents(h.history.Messages()))
	}
	if !strings.Contains(h.out.String(), "context cleared") {
		t.Error("reset notice missing")
	}
	if h.session.LastResult() != nil {
		t.Error("reset should drop the last result")
	}
	if h.session.LoadedPath() != "notes.txt" {
		t.Errorf("reset should keep the loaded path, got %q", h.session.LoadedPath())
	}
}

func TestSession_QuitStopsReading(t *testing.T) {
	for _, word := range []string{"quit", "BYE"} {
		h := newHarness(t, "hi\n"+word+"\nnever sent\n")
		h.run(t)
		if len(h.chat.calls) != 1 {
			t.Errorf("%s: chat called %d times, want 1", word, len(h.chat.calls))
		}
	}
}

func TestSession_MultiLineInput(t *testing.T) {
	h := newHarness(t, "explain this +++\nfunc main() {}\nEND\n")
	h.run(t)
	assertMessages(t, h.chat.last(), "system:sys", "user:explain this\nfunc main() {}")
}

func TestSession_HistoryCap(t *testing.T) {
	h := newHarness(t, "one\ntwo\nthree\n", func(c *Config) {
		c.History = memory.NewHistory("sys", 2)
	})
	h.run(t)

	msgs := h.session.cfg.History.Messages()
	assertMessages(t, msgs, "system:sys", "user:three", "assistant:Hello")
}

func TestSession_RecordsTranscript(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := memory.NewSQLiteStoreWithDB(db)
	if err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, "search go\nhello\nreset\nagain\n", func(c *Config) { c.Recorder = store })
	h.search.err = errors.New("down")
	h.run(t)

	ctx := context.Background()
	sessions, err := store.Sessions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2 (reset starts a new one)", len(sessions))
	}

	first, err := store.Messages(ctx, sessions[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range first {
		got = append(got, m.Role+":"+m.Content)
	}
	want := []string{"system:sys", "user:hello", "assistant:Hello"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("first transcript = %q, want %q", got, want)
	}
	if h.session.TranscriptID() != sessions[0].ID {
		t.Errorf("TranscriptID() = %q, want newest session %q", h.session.TranscriptID(), sessions[0].ID)
	}
}

type fakeUsage struct {
	records []usage.Record
}

func (f *fakeUsage) Record(_ context.Context, rec usage.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func TestSession_RecordsUsagePerTurn(t *testing.T) {
	u := &fakeUsage{}
	h := newHarness(t, "search go\nhello\n", func(c *Config) {
		c.Usage = u
		c.Provider = "openai"
		c.Pricing = map[string]config.PricingEntry{"test-model": {InputPerMillion: 1_000_000, OutputPerMillion: 0}}
	})
	h.run(t)

	if len(u.records) != 2 {
		t.Fatalf("got %d usage records, want 2", len(u.records))
	}
	first, second := u.records[0], u.records[1]
	if first.Directive != "search" || second.Directive != "chat" {
		t.Errorf("directives = %q, %q", first.Directive, second.Directive)
	}
	if first.Model != "test-model" || first.Provider != "openai" {
		t.Errorf("first record = %+v", first)
	}
	// system, synthetic results and the question.
	if first.InputTokens != 300 || first.OutputTokens != 2 {
		t.Errorf("first tokens = %d in / %d out", first.InputTokens, first.OutputTokens)
	}
	if diff := first.CostUSD - 300; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("first cost = %f, want 300", first.CostUSD)
	}
	if !first.Timestamp.Equal(time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
}

func TestSession_FailedTurnRecordsNoUsage(t *testing.T) {
	u := &fakeUsage{}
	h := newHarness(t, "hello\n", func(c *Config) { c.Usage = u })
	h.chat.err = errors.New("model offline")
	h.run(t)

	if len(u.records) != 0 {
		t.Errorf("failed turn recorded usage: %+v", u.records)
	}
}

type fakeHealth struct {
	state connwatch.State
	err   error
}

func (f fakeHealth) State() connwatch.State { return f.state }
func (f fakeHealth) LastError() error       { return f.err }

func TestSession_WarnsWhenModelDown(t *testing.T) {
	h := newHarness(t, "hello\n", func(c *Config) {
		c.Health = fakeHealth{state: connwatch.StateDown, err: errors.New("connection refused")}
	})
	h.run(t)

	out := h.out.String()
	if !strings.Contains(out, "model endpoint is not responding (connection refused); trying anyway") {
		t.Errorf("missing down notice:\n%s", out)
	}
	if len(h.chat.calls) != 1 {
		t.Errorf("turn should still be attempted, got %d calls", len(h.chat.calls))
	}
}

func TestSession_NoWarningWhileUnknown(t *testing.T) {
	h := newHarness(t, "hello\n", func(c *Config) {
		c.Health = fakeHealth{state: connwatch.StateUnknown, err: errors.New("still starting")}
	})
	h.run(t)

	if strings.Contains(h.out.String(), "not responding") {
		t.Errorf("unexpected notice while state unknown:\n%s", h.out.String())
	}
}
