package textutil

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ConvertHTMLTables replaces every top-level <table> element embedded in
// content with an equivalent Markdown table. Text outside tables is copied
// through byte for byte.
func ConvertHTMLTables(content string) string {
	if !strings.Contains(strings.ToLower(content), "<table") {
		return content
	}
	lineSep := LineSeparator(content)

	var out, table strings.Builder
	depth := 0
	tokenizer := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			if tokenizer.Err() != io.EOF {
				return content
			}
			break
		}
		// TagName lowercases the token buffer in place, so copy Raw first.
		raw := append([]byte(nil), tokenizer.Raw()...)

		name, _ := tokenizer.TagName()
		isTable := atom.Lookup(name) == atom.Table
		switch {
		case tt == html.StartTagToken && isTable:
			depth++
			table.Write(raw)
			continue
		case tt == html.EndTagToken && isTable && depth > 0:
			table.Write(raw)
			depth--
			if depth == 0 {
				out.WriteString(tableToMarkdown(table.String(), lineSep))
				out.WriteString(lineSep + lineSep)
				table.Reset()
			}
			continue
		}

		if depth > 0 {
			table.Write(raw)
		} else {
			out.Write(raw)
		}
	}
	if depth > 0 {
		// Unterminated table: keep the original markup.
		out.WriteString(table.String())
	}
	return out.String()
}

func tableToMarkdown(markup, lineSep string) string {
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return markup
	}

	var rows []*html.Node
	for _, n := range nodes {
		collect(n, atom.Tr, &rows)
	}

	lines := make([]string, 0, len(rows)+1)
	for i, row := range rows {
		var cells []*html.Node
		collectCells(row, &cells)
		var b strings.Builder
		b.WriteString("|")
		for _, cell := range cells {
			b.WriteString(" ")
			b.WriteString(nodeText(cell))
			b.WriteString(" |")
		}
		lines = append(lines, b.String())
		if i == 0 {
			lines = append(lines, "|"+strings.Repeat(" --- |", len(cells)))
		}
	}
	return strings.Join(lines, lineSep)
}

func collect(n *html.Node, a atom.Atom, dst *[]*html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == a {
		*dst = append(*dst, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, a, dst)
	}
}

func collectCells(n *html.Node, dst *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			*dst = append(*dst, c)
			continue
		}
		collectCells(c, dst)
	}
}

func nodeText(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}
