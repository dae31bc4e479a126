package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hidden elements never contribute text.
var hidden = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
}

// blocks start a new paragraph in the extracted text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Table: true, atom.Tr: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Figure: true, atom.Figcaption: true, atom.Hr: true, atom.Br: true,
}

// textWriter accumulates paragraphs of visible text.
type textWriter struct {
	title string
	paras []string
	cur   strings.Builder
}

func (w *textWriter) word(s string) {
	for _, f := range strings.Fields(s) {
		if w.cur.Len() > 0 {
			w.cur.WriteByte(' ')
		}
		w.cur.WriteString(f)
	}
}

func (w *textWriter) breakPara() {
	if w.cur.Len() > 0 {
		w.paras = append(w.paras, w.cur.String())
		w.cur.Reset()
	}
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.word(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Title {
			if w.title == "" && n.FirstChild != nil {
				w.title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
			}
			return
		}
		if hidden[n.DataAtom] {
			return
		}
	}

	block := n.Type == html.ElementNode && blocks[n.DataAtom]
	if block {
		w.breakPara()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.breakPara()
	}
}

// extractHTML returns the page title and its visible text, one paragraph
// per block element, separated by blank lines.
func extractHTML(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// html.Parse only fails on reader errors; keep the raw text.
		return "", strings.Join(strings.Fields(raw), " ")
	}
	var w textWriter
	w.walk(doc)
	w.breakPara()
	return w.title, strings.Join(w.paras, "\n\n")
}
