package prompts

import (
	"strings"
	"testing"
	"time"
)

func TestBaseSystemPrompt(t *testing.T) {
	p := BaseSystemPrompt()
	for _, want := range []string{"Do not repeat yourself", "repeat back the prompt", "helpful assistant", "quiz"} {
		if !strings.Contains(p, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestContentTemplates(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"file", FileContent("notes.txt", "alpha beta"), "Here is the content of the file `notes.txt`:\n```\nalpha beta\n```\n"},
		{"anonymous", AnonymousFileContent("alpha"), "Here is the content of the file \n```\nalpha\n```\n"},
		{"news", NewsContent("1. Headline"), "Here is the content of the news \n```\n1. Headline\n```\n"},
		{"search", SearchContent("1. Go"), "Here is the content of the search results \n```\n1. Go\n```\n"},
		{"update", UpdatedFileContent("what changed?", "/tmp/a.txt", "new text"), "what changed? here is the content of the file name /tmp/a.txt:new text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewsSummaryPrompt(t *testing.T) {
	p := NewsSummaryPrompt(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	if !strings.Contains(p, "Saturday, October 17, 2026") {
		t.Errorf("prompt missing date: %s", p)
	}
	if !strings.Contains(p, "URL") || !strings.Contains(p, "not to make anything up") {
		t.Errorf("prompt missing instructions: %s", p)
	}
}

func TestSearchAnswerPrompt(t *testing.T) {
	p := SearchAnswerPrompt("who won the 2022 world cup")
	if !strings.HasSuffix(p, "The question or search was: who won the 2022 world cup") {
		t.Errorf("prompt = %s", p)
	}
	if !strings.Contains(p, "provide sources") {
		t.Error("prompt should ask for sources")
	}
}
