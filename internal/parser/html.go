package parser

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dgallion1/huntgest/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. When Selector is set, only elements
// matching it contribute text.
type HTMLParser struct {
	Selector string
}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := findTitle(doc)
	if title == "" {
		title = trimExt(filename)
	}

	b := newSectionBuilder()
	var inline strings.Builder
	flushInline := func() {
		b.block(inline.String())
		inline.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				if inline.Len() > 0 {
					inline.WriteString("\n")
				}
				inline.WriteString(t)
			}
			return
		case html.ElementNode:
			if level := headingLevel(n.Data); level > 0 {
				flushInline()
				b.heading(level, textContent(n))
				return
			}
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "noscript", "form", "svg":
				return
			case "tr":
				flushInline()
				b.block(rowText(n))
				return
			case "p", "li", "dd", "dt", "pre", "blockquote", "figcaption", "td", "th":
				flushInline()
				b.block(textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	switch sel := parseSelector(p.Selector); {
	case len(sel) > 0:
		for _, n := range findMatching(doc, sel) {
			walk(n)
			flushInline()
		}
	case findBody(doc) != nil:
		walk(findBody(doc))
	default:
		walk(doc)
	}
	flushInline()
	return b.tree(title), nil
}

// rowText joins the cells of a table row with " | ".
func rowText(tr *html.Node) string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, strings.Join(strings.Fields(textContent(c)), " "))
		}
	}
	return strings.Join(cells, " | ")
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// selector matches an element by tag, class, or both.
type selector struct {
	tag   string
	class string
}

// parseSelector reads a comma-separated list of "tag", ".class" or
// "tag.class" items. A bare word containing no dot is treated as a class
// name when it is not a known HTML tag.
func parseSelector(s string) []selector {
	var out []selector
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		tag, class, found := strings.Cut(item, ".")
		if !found {
			if isKnownTag(item) {
				out = append(out, selector{tag: strings.ToLower(item)})
			} else {
				out = append(out, selector{class: item})
			}
			continue
		}
		out = append(out, selector{tag: strings.ToLower(tag), class: class})
	}
	return out
}

func isKnownTag(s string) bool {
	switch strings.ToLower(s) {
	case "article", "main", "section", "div", "body", "p", "span", "table", "pre", "ul", "ol":
		return true
	}
	return false
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.class == "" {
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "class" && slices.Contains(strings.Fields(a.Val), s.class) {
			return true
		}
	}
	return false
}

// findMatching returns the outermost elements matching any selector, in
// document order.
func findMatching(n *html.Node, sel []selector) []*html.Node {
	for _, s := range sel {
		if s.matches(n) {
			return []*html.Node{n}
		}
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findMatching(c, sel)...)
	}
	return out
}
