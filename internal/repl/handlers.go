package repl

import (
	"context"
	"fmt"
	"strings"

	"github.com/spinach-rag/spinach/internal/news"
	"github.com/spinach-rag/spinach/internal/prompts"
	"github.com/spinach-rag/spinach/internal/retrieval"
	"github.com/spinach-rag/spinach/internal/search"
)

const lookUsage = "usage: look <file|url> | look dyn <alias> | look data <collection>"

// look handles `look <target>`, `look dyn <alias>` and
// `look data <collection>`.
func (s *Session) look(ctx context.Context, d Directive) (string, string, bool) {
	if s.cfg.Looker == nil {
		s.errorf("look is not available")
		return "", "", false
	}

	req := ParseLook(d)
	switch req.Mode {
	case LookUsage:
		s.notice(lookUsage)
		return "", "", false
	case LookListAliases:
		names, err := s.cfg.Looker.Aliases()
		if err != nil {
			s.errorf("list aliases: %v", err)
			return "", "", false
		}
		s.listNames("aliases", names, "add one with `spinach add <path>`")
		return "", "", false
	case LookListCollections:
		names, err := s.cfg.Looker.Collections(ctx)
		if err != nil {
			s.errorf("list collections: %v", err)
			return "", "", false
		}
		s.listNames("collections", names, "build one with `spinach create <path> <name>`")
		return "", "", false
	}

	question, ok := s.askQuestion()
	if !ok {
		return "", "", false
	}

	var (
		res *retrieval.Result
		err error
	)
	switch req.Mode {
	case LookAlias:
		res, err = s.cfg.Looker.LookAlias(ctx, req.Target, question)
	case LookCollection:
		res, err = s.cfg.Looker.LookCollection(ctx, req.Target, question)
	default:
		res, err = s.cfg.Looker.Look(ctx, req.Target, question)
	}
	if err != nil {
		s.errorf("look %s: %v", req.Target, err)
		return "", "", false
	}

	s.last = res
	s.logger.Debug("lookup complete",
		"target", req.Target,
		"chunks", len(res.Chunks),
		"top", res.Top,
		"score", res.Score,
	)

	if req.Mode == LookPath {
		s.loadedPath = req.Target
		return prompts.FileContent(req.Target, res.Best()), question, true
	}
	s.loadedPath = ""
	return prompts.AnonymousFileContent(res.Best()), question, true
}

// update re-reads the loaded file from disk and asks a new question.
func (s *Session) update(ctx context.Context) (string, string, bool) {
	if s.loadedPath == "" || s.cfg.Looker == nil {
		s.notice("no valid file loaded")
		return "", "", false
	}

	fmt.Fprintln(s.cfg.Out, "look "+s.loadedPath)
	question, ok := s.askQuestion()
	if !ok {
		return "", "", false
	}

	res, err := s.cfg.Looker.Look(ctx, s.loadedPath, question)
	if err != nil {
		s.errorf("look %s: %v", s.loadedPath, err)
		return "", "", false
	}
	s.last = res
	return prompts.UpdatedFileContent(question, s.loadedPath, res.Best()), question, true
}

func (s *Session) news(ctx context.Context, d Directive) (string, string, bool) {
	req, err := ParseNews(d.Args)
	if err != nil {
		s.errorf("%v", err)
		return "", "", false
	}
	if req.Help {
		s.newsHelp()
		return "", "", false
	}
	if s.cfg.News == nil {
		s.newsHint()
		return "", "", false
	}

	articles, err := s.cfg.News.Fetch(ctx, req.Query)
	if err != nil || len(articles) == 0 {
		if err != nil {
			s.errorf("%v", err)
			s.logger.Warn("news fetch failed", "error", err)
		}
		s.newsHint()
		return "", "", false
	}

	yesterday := s.cfg.Now().AddDate(0, 0, -1)
	return prompts.NewsContent(news.FormatDigest(articles)), prompts.NewsSummaryPrompt(yesterday), true
}

func (s *Session) newsHelp() {
	fmt.Fprintln(s.cfg.Out, `You can get the top headlines of specific sources with "news <source> [count]".`)
	fmt.Fprintln(s.cfg.Out, `A bare "news" uses the sources in news.sources (by default associated-press, politico, the-hill and financial-times).`)
	fmt.Fprintln(s.cfg.Out, `"news search [source] <query> [count]" searches all articles by relevancy.`)
	fmt.Fprintln(s.cfg.Out, "Available sources:")
	for i, src := range news.KnownSources {
		fmt.Fprintf(s.cfg.Out, "%d. %s\n", i+1, src)
	}
}

func (s *Session) newsHint() {
	s.hint(
		"No news returned. Check news.api_key in config.yaml.",
		"Spinach uses NewsAPI for retrieving news.",
		"If you do not have an API key you can get one at https://newsapi.org/",
	)
}

func (s *Session) search(ctx context.Context, d Directive) (string, string, bool) {
	query := d.Rest
	if query == "" {
		s.notice("usage: search <query>")
		return "", "", false
	}
	if s.cfg.Search == nil {
		s.searchHint()
		return "", "", false
	}

	results, err := s.cfg.Search.Search(ctx, query, search.Options{Count: s.cfg.SearchCount})
	if err != nil || len(results) == 0 {
		if err != nil {
			s.errorf("%v", err)
			s.logger.Warn("search failed", "error", err)
		}
		s.searchHint()
		return "", "", false
	}

	return prompts.SearchContent(search.FormatResults(results)), prompts.SearchAnswerPrompt(query), true
}

func (s *Session) searchHint() {
	switch s.cfg.Search.Primary() {
	case "brave":
		s.hint(
			"No search results returned. Check search.brave.api_key in config.yaml.",
			"Spinach is configured to use the Brave Search API.",
			"If you do not have an API key you can get one at https://brave.com/search/api/",
		)
	case "searxng":
		s.hint(
			"No search results returned. Check search.searxng.url in config.yaml.",
			"Spinach is configured to use a SearXNG instance, which must have the JSON format enabled.",
		)
	default:
		s.hint(
			"No search results returned. Check search.serper.api_key in config.yaml.",
			"Spinach uses the Serper API for searching Google.",
			"If you do not have an API key you can get one at https://serper.dev/",
		)
	}
}

func (s *Session) listNames(kind string, names []string, empty string) {
	if len(names) == 0 {
		s.notice(fmt.Sprintf("no %s; %s", kind, empty))
		return
	}
	fmt.Fprintf(s.cfg.Out, "%s: %s\n", kind, strings.Join(names, ", "))
}
