// Package docs implements the docs capability group. Documents are
// HTML files in a WebDAV collection; markdown input is rendered with
// goldmark and reads return the document's visible text.
package docs

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// document is a parsed document file.
type document struct {
	Title string
	Body  string // inner HTML of <body>
}

func (d document) render() []byte {
	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(d.Title))
	b.WriteString("</title>\n</head>\n<body>\n")
	b.WriteString(strings.TrimSpace(d.Body))
	b.WriteString("\n</body>\n</html>\n")
	return b.Bytes()
}

func parseDocument(data []byte) (document, error) {
	root, err := xhtml.Parse(bytes.NewReader(data))
	if err != nil {
		return document{}, fmt.Errorf("parse document: %w", err)
	}
	var d document
	if n := find(root, atom.Title); n != nil {
		d.Title = strings.TrimSpace(textOf(n))
	}
	if body := find(root, atom.Body); body != nil {
		var b bytes.Buffer
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			if err := xhtml.Render(&b, c); err != nil {
				return document{}, fmt.Errorf("render body: %w", err)
			}
		}
		d.Body = b.String()
	}
	return d, nil
}

// Text returns the visible text of the body, one line per block.
func (d document) Text() string {
	nodes, err := xhtml.ParseFragment(strings.NewReader(d.Body), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Pre: true, atom.Blockquote: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Br: true, atom.Hr: true,
}

func writeText(b *strings.Builder, n *xhtml.Node) {
	switch n.Type {
	case xhtml.TextNode:
		b.WriteString(n.Data)
		return
	case xhtml.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if n.Type == xhtml.ElementNode && blocks[n.DataAtom] {
		b.WriteByte('\n')
	}
}

func find(n *xhtml.Node, a atom.Atom) *xhtml.Node {
	if n.Type == xhtml.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}

func textOf(n *xhtml.Node) string {
	var b strings.Builder
	writeText(&b, n)
	return b.String()
}

// toHTML converts user text to a body fragment. Markdown is rendered
// with goldmark; plain text keeps its lines as paragraphs.
func toHTML(text string, markdown bool) (string, error) {
	if markdown {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(text), &buf); err != nil {
			return "", fmt.Errorf("render markdown: %w", err)
		}
		return buf.String(), nil
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			b.WriteString("<p>" + html.EscapeString(line) + "</p>\n")
		}
	}
	return b.String(), nil
}
