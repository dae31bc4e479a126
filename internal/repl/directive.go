package repl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spinach-rag/spinach/internal/news"
)

// Kind identifies what an input line asks the loop to do.
type Kind int

// Input kinds. Anything that is not a directive is chat.
const (
	KindChat Kind = iota
	KindLook
	KindNews
	KindSearch
	KindUpdate
	KindReset
	KindQuit
)

var keywords = map[string]Kind{
	"look":   KindLook,
	"news":   KindNews,
	"search": KindSearch,
	"update": KindUpdate,
	"reset":  KindReset,
	"quit":   KindQuit,
	"bye":    KindQuit,
}

func (k Kind) String() string {
	switch k {
	case KindLook:
		return "look"
	case KindNews:
		return "news"
	case KindSearch:
		return "search"
	case KindUpdate:
		return "update"
	case KindReset:
		return "reset"
	case KindQuit:
		return "quit"
	default:
		return "chat"
	}
}

// Directive is a parsed input line.
type Directive struct {
	Kind Kind
	// Args are the whitespace-separated words after the keyword.
	Args []string
	// Rest is the raw text after the keyword, trimmed, case preserved.
	Rest string
	// Raw is the whole input.
	Raw string
}

// Parse classifies input by its first word, case-insensitively.
func Parse(input string) Directive {
	d := Directive{Kind: KindChat, Raw: input}
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return d
	}
	kind, ok := keywords[strings.ToLower(fields[0])]
	if !ok {
		return d
	}
	d.Kind = kind
	d.Args = fields[1:]

	trimmed := strings.TrimSpace(input)
	d.Rest = strings.TrimSpace(trimmed[len(fields[0]):])
	return d
}

// LookMode selects what a look directive reads.
type LookMode int

// Look modes.
const (
	LookPath LookMode = iota
	LookAlias
	LookCollection
	LookListAliases
	LookListCollections
	LookUsage
)

// LookRequest is a parsed look directive.
type LookRequest struct {
	Mode LookMode
	// Target is the path, URL, alias or collection name.
	Target string
}

// ParseLook interprets the arguments of a look directive.
func ParseLook(d Directive) LookRequest {
	if len(d.Args) == 0 {
		return LookRequest{Mode: LookUsage}
	}

	sub := strings.ToLower(d.Args[0])
	name := strings.TrimSpace(d.Rest[len(d.Args[0]):])
	switch sub {
	case "dyn":
		if name == "" {
			return LookRequest{Mode: LookListAliases}
		}
		return LookRequest{Mode: LookAlias, Target: name}
	case "data":
		if name == "" {
			return LookRequest{Mode: LookListCollections}
		}
		return LookRequest{Mode: LookCollection, Target: name}
	}
	return LookRequest{Mode: LookPath, Target: d.Rest}
}

// NewsRequest is a parsed news directive.
type NewsRequest struct {
	Help  bool
	Query news.Query
}

var (
	errNewsSearchUsage = errors.New("usage: news search [source] <query> [count]")
	errNewsUsage       = errors.New("usage: news [count] | news <source> [count] | news search [source] <query> [count] | news help")
)

// ParseNews interprets the arguments of a news directive. Sources are
// lower-cased; search terms keep their case.
func ParseNews(args []string) (NewsRequest, error) {
	if len(args) == 0 {
		return NewsRequest{}, nil
	}

	first := strings.ToLower(args[0])
	switch first {
	case "help":
		return NewsRequest{Help: true}, nil

	case "search":
		rest := args[1:]
		if len(rest) == 0 {
			return NewsRequest{}, errNewsSearchUsage
		}
		var q news.Query
		if len(rest) > 1 {
			if n, ok := parseCount(rest[len(rest)-1]); ok {
				if n <= 0 {
					return NewsRequest{}, fmt.Errorf("news count must be positive, got %d", n)
				}
				q.Count = n
				rest = rest[:len(rest)-1]
			}
		}
		if news.IsKnownSource(rest[0]) {
			// A source with no query term is not a search.
			if len(rest) == 1 {
				return NewsRequest{}, errNewsSearchUsage
			}
			q.Sources = []string{strings.ToLower(rest[0])}
			rest = rest[1:]
		}
		q.Search = strings.Join(rest, " ")
		return NewsRequest{Query: q}, nil
	}

	if n, ok := parseCount(first); ok {
		if len(args) > 1 {
			return NewsRequest{}, errNewsUsage
		}
		if n <= 0 {
			return NewsRequest{}, fmt.Errorf("news count must be positive, got %d", n)
		}
		return NewsRequest{Query: news.Query{Count: n}}, nil
	}

	q := news.Query{Sources: splitSources(first)}
	switch len(args) {
	case 1:
	case 2:
		n, ok := parseCount(args[1])
		if !ok {
			return NewsRequest{}, fmt.Errorf("news count %q is not a number", args[1])
		}
		if n <= 0 {
			return NewsRequest{}, fmt.Errorf("news count must be positive, got %d", n)
		}
		q.Count = n
	default:
		return NewsRequest{}, errNewsUsage
	}
	return NewsRequest{Query: q}, nil
}

func parseCount(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// splitSources accepts a comma-separated list of source ids.
func splitSources(s string) []string {
	var out []string
	for _, src := range strings.Split(s, ",") {
		if src = strings.TrimSpace(src); src != "" {
			out = append(out, src)
		}
	}
	return out
}
