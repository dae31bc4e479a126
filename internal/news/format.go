package news

import (
	"strconv"
	"strings"
)

// FormatDigest renders articles as a numbered plain-text digest. Empty
// fields are omitted.
func FormatDigest(articles []Article) string {
	var b strings.Builder
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(a.Title)
		writeField(&b, "Source", a.Source)
		if !a.PublishedAt.IsZero() {
			writeField(&b, "Published", a.PublishedAt.UTC().Format("2006-01-02 15:04 MST"))
		}
		writeField(&b, "Description", a.Description)
		writeField(&b, "Content", a.Content)
		writeField(&b, "URL", a.URL)
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	b.WriteString("\n   ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
}
