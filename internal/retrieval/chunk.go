package retrieval

import "strings"

// SplitWords splits text on whitespace and groups the words into chunks
// of size words. Consecutive chunks start size-overlap words apart, so
// each chunk repeats the last overlap words of the one before it. The
// final chunk may be shorter. Empty text yields no chunks.
func SplitWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
