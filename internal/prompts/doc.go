// Package prompts contains the prompt text Spinach sends to the chat model.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation and can be validated by tests. Only
// the system prompt can be overridden from config.yaml.
//
// Convention: each prompt category gets its own file (system.go, content.go,
// news.go, search.go) with an exported function that accepts the dynamic
// parts and returns the fully interpolated prompt string.
package prompts
