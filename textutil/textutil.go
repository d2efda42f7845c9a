// Package textutil holds small text helpers shared by the pipeline.
package textutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// skipTags are elements whose text never reaches the output
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

// blockTags end a line when they close
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "section": true, "article": true,
}

// StripHTML returns the visible text of an HTML fragment or document.
// Input that fails to parse is returned with whitespace collapsed.
func StripHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return CollapseWhitespace(raw)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return CollapseWhitespace(b.String())
}

// CollapseWhitespace trims each line, squeezes runs of spaces and drops
// blank lines beyond the first in a row.
func CollapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Truncate returns at most max runes of s
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// TruncateWithMarker truncates s to max runes and appends marker when it cut anything
func TruncateWithMarker(s string, max int, marker string) string {
	cut := Truncate(s, max)
	if len(cut) == len(s) {
		return s
	}
	return cut + marker
}

// Len is the rune length of s
func Len(s string) int {
	return utf8.RuneCountInString(s)
}
