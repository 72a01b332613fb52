//go:build !nohtml

package extractors

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

const htmlAvailable = true

// skipped elements contribute no text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Object:   true,
}

// block elements start and end a line.
var block = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// renderHTML decodes r using the charset from contentType, a BOM or a
// meta tag, then flattens the body into lines of text.
func renderHTML(r io.Reader, contentType string) (renderedPage, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return renderedPage{}, fmt.Errorf("detect charset: %w", err)
	}
	root, err := html.Parse(utf8Reader)
	if err != nil {
		return renderedPage{}, fmt.Errorf("parse html: %w", err)
	}

	var page renderedPage
	if t := findFirst(root, atom.Title); t != nil {
		page.Title = collapseSpace(textOf(t))
	}

	var w lineWriter
	walkText(root, &w)
	page.Text = w.String()
	return page, nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// preText collects the descendant text of a preformatted block verbatim.
func preText(n *html.Node, sb *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			sb.WriteString(c.Data)
		case c.Type != html.ElementNode || skipped[c.DataAtom]:
		case c.DataAtom == atom.Br:
			sb.WriteByte('\n')
		default:
			preText(c, sb)
		}
	}
}

func walkText(n *html.Node, w *lineWriter) {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		w.words(n.Data)
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if block[n.DataAtom] {
			w.breakLine()
			defer w.breakLine()
		}
		if n.DataAtom == atom.Pre {
			var sb strings.Builder
			preText(n, &sb)
			w.raw(sb.String())
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, w)
	}
}

// lineWriter accumulates words into lines and drops empty lines.
type lineWriter struct {
	lines []string
	cur   []string
}

func (w *lineWriter) words(s string) {
	w.cur = append(w.cur, strings.Fields(s)...)
}

func (w *lineWriter) raw(s string) {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, " \t\r"); line != "" {
			w.lines = append(w.lines, line)
		}
	}
}

func (w *lineWriter) breakLine() {
	if len(w.cur) > 0 {
		w.lines = append(w.lines, strings.Join(w.cur, " "))
		w.cur = w.cur[:0]
	}
}

func (w *lineWriter) String() string {
	w.breakLine()
	return strings.Join(w.lines, "\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
