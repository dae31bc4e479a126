package news

import (
	"slices"
	"strings"
)

// KnownSources are the NewsAPI source ids offered by `news help` and
// recognized as source names in news directives.
var KnownSources = []string{
	"abc-news",
	"associated-press",
	"axios",
	"breitbart-news",
	"bloomberg",
	"business-insider",
	"cbs-news",
	"cnbc",
	"cnn",
	"espn",
	"financial-times",
	"fox-news",
	"fox-sports",
	"msnbc",
	"nbc-news",
	"nbc-sports",
	"politico",
	"reuters",
	"the-hill",
	"the-wall-street-journal",
	"the-washington-post",
	"techcrunch",
	"usa-today",
}

// IsKnownSource reports whether name (case-insensitive) is in KnownSources.
func IsKnownSource(name string) bool {
	return slices.Contains(KnownSources, strings.ToLower(name))
}
