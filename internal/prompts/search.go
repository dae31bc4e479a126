package prompts

import "fmt"

// searchAnswerTemplate replaces the user's `search ...` input. The
// single format verb receives the original query.
const searchAnswerTemplate = `From the search results given, try your best to answer the question and provide sources. If you cannot discern a proper answer, return the URLs with a summary of each. The question or search was: %s`

// SearchAnswerPrompt returns the answer instruction for query.
func SearchAnswerPrompt(query string) string {
	return fmt.Sprintf(searchAnswerTemplate, query)
}
