package prompts

import (
	"fmt"
	"time"
)

// newsSummaryTemplate replaces the user's `news ...` input. The single
// format verb receives the date the articles are assumed to be from.
const newsSummaryTemplate = `Summarize the news articles above. Number each article (for example: 1. First article 2. Second article) and supply the URL of the article at the end of its summary. The articles are from %s. Summarize them in as much detail as you can while making sure not to make anything up.`

// NewsSummaryPrompt returns the summary instruction for articles
// published around date.
func NewsSummaryPrompt(date time.Time) string {
	return fmt.Sprintf(newsSummaryTemplate, date.Format("Monday, January 2, 2006"))
}
