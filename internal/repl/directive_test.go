package repl

import (
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
		rest  string
	}{
		{"hello world", KindChat, ""},
		{"look ~/notes.txt", KindLook, "~/notes.txt"},
		{"LOOK Data Physics", KindLook, "Data Physics"},
		{"news", KindNews, ""},
		{"  search   Who Won the Cup ", KindSearch, "Who Won the Cup"},
		{"update", KindUpdate, ""},
		{"Reset", KindReset, ""},
		{"quit", KindQuit, ""},
		{"BYE now", KindQuit, "now"},
		{"lookup tables", KindChat, ""},
		{"", KindChat, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d := Parse(tt.input)
			if d.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", d.Kind, tt.kind)
			}
			if d.Rest != tt.rest {
				t.Errorf("Rest = %q, want %q", d.Rest, tt.rest)
			}
			if d.Raw != tt.input {
				t.Errorf("Raw = %q", d.Raw)
			}
		})
	}
}

func TestParseLook(t *testing.T) {
	tests := []struct {
		input  string
		mode   LookMode
		target string
	}{
		{"look", LookUsage, ""},
		{"look notes.txt", LookPath, "notes.txt"},
		{"look ~/My Documents/a b.txt", LookPath, "~/My Documents/a b.txt"},
		{"look https://go.dev/doc/", LookPath, "https://go.dev/doc/"},
		{"look dyn recipes", LookAlias, "recipes"},
		{"look DYN work/report", LookAlias, "work/report"},
		{"look dyn", LookListAliases, ""},
		{"look data physics", LookCollection, "physics"},
		{"look data", LookListCollections, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req := ParseLook(Parse(tt.input))
			if req.Mode != tt.mode || req.Target != tt.target {
				t.Errorf("ParseLook(%q) = %+v, want mode %v target %q", tt.input, req, tt.mode, tt.target)
			}
		})
	}
}

func TestParseNews(t *testing.T) {
	tests := []struct {
		input   string
		help    bool
		sources []string
		search  string
		count   int
		wantErr bool
	}{
		{input: "news"},
		{input: "news 5", count: 5},
		{input: "news help", help: true},
		{input: "news HELP", help: true},
		{input: "news CNN", sources: []string{"cnn"}},
		{input: "news reuters 3", sources: []string{"reuters"}, count: 3},
		{input: "news cnn,axios", sources: []string{"cnn", "axios"}},
		{input: "news search reuters Climate", sources: []string{"reuters"}, search: "Climate"},
		{input: "news search reuters climate 4", sources: []string{"reuters"}, search: "climate", count: 4},
		{input: "news search Mars Rover", search: "Mars Rover"},
		{input: "news search mars 2", search: "mars", count: 2},
		{input: "news search reuters", wantErr: true},
		{input: "news search cnn 5", wantErr: true},
		{input: "news search CNN 5", wantErr: true},
		{input: "news search", wantErr: true},
		{input: "news cnn five", wantErr: true},
		{input: "news 0", wantErr: true},
		{input: "news 5 cnn", wantErr: true},
		{input: "news cnn 2 extra", wantErr: true},
		{input: "news search mars -1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req, err := ParseNews(Parse(tt.input).Args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if req.Help != tt.help {
				t.Errorf("Help = %v", req.Help)
			}
			if !slices.Equal(req.Query.Sources, tt.sources) {
				t.Errorf("Sources = %v, want %v", req.Query.Sources, tt.sources)
			}
			if req.Query.Search != tt.search {
				t.Errorf("Search = %q, want %q", req.Query.Search, tt.search)
			}
			if req.Query.Count != tt.count {
				t.Errorf("Count = %d, want %d", req.Query.Count, tt.count)
			}
		})
	}
}
