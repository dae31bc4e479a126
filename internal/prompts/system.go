package prompts

// baseSystemTemplate is the default system prompt, used when config.yaml
// sets no system_prompt. It is always the first message of the history.
const baseSystemTemplate = `You are a helpful assistant.

- Do not repeat yourself.
- Do not repeat back the prompt that was given to you.
- When asked for a quiz, do not give the answers. Give the answers when grading the user's answers.
- Some messages carry content retrieved for you (a file excerpt, news articles or search results) inside a fenced block. Treat that content as the material for the request that follows it.`

// BaseSystemPrompt returns the default system prompt.
func BaseSystemPrompt() string {
	return baseSystemTemplate
}
