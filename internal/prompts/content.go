package prompts

import "fmt"

// Synthetic messages carry retrieved content into the history just
// before the prompt they support.
const (
	fileContentTemplate        = "Here is the content of the file `%s`:\n```\n%s\n```\n"
	anonFileContentTemplate    = "Here is the content of the file \n```\n%s\n```\n"
	newsContentTemplate        = "Here is the content of the news \n```\n%s\n```\n"
	searchContentTemplate      = "Here is the content of the search results \n```\n%s\n```\n"
	updatedFileContentTemplate = "%s here is the content of the file name %s:%s"
)

// FileContent wraps the best chunk of a named file or URL.
func FileContent(target, chunk string) string {
	return fmt.Sprintf(fileContentTemplate, target, chunk)
}

// AnonymousFileContent wraps a chunk whose source is an alias or a
// prebuilt collection, where the path is not shown to the model.
func AnonymousFileContent(chunk string) string {
	return fmt.Sprintf(anonFileContentTemplate, chunk)
}

// NewsContent wraps a news digest.
func NewsContent(digest string) string {
	return fmt.Sprintf(newsContentTemplate, digest)
}

// SearchContent wraps formatted web search results.
func SearchContent(results string) string {
	return fmt.Sprintf(searchContentTemplate, results)
}

// UpdatedFileContent carries the question together with a freshly
// re-read chunk of the loaded file.
func UpdatedFileContent(question, path, chunk string) string {
	return fmt.Sprintf(updatedFileContentTemplate, question, path, chunk)
}
